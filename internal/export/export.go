// Package export copies application archives into documents, either to a
// user-chosen destination or into a private staging area for sharing.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/naming"
	"github.com/blackwell-systems/apkextract/internal/progress"
	"github.com/blackwell-systems/apkextract/internal/store"
)

var (
	ErrSourceNotFound = errors.New("source archive not found")
	ErrWriteFailure   = errors.New("failed to write document")
	ErrCopyFailed     = errors.New("copy failed")
)

// Progress titles.
const (
	TitleSave  = "Saving apps"
	TitleShare = "Preparing apps for sharing"
)

// ArchiveOpener opens the archive of an installed package.
type ArchiveOpener interface {
	OpenArchive(ctx context.Context, path string) (io.ReadCloser, error)
}

// History records export runs. *store.Store implements it.
type History interface {
	InsertExportRun(kind string, total int) (int64, error)
	FinishExportRun(id int64, errMsg string) error
	InsertExportedDocument(doc *store.ExportedDocument) error
}

// Options configures an Engine.
type Options struct {
	Opener    ArchiveOpener
	Documents docs.Provider
	Staging   *docs.FSProvider // share staging area
	Tracker   *progress.Tracker
	History   History // optional
	Workers   int     // concurrent share copies
	Logger    zerolog.Logger
}

// Engine runs export and share jobs.
type Engine struct {
	opener  ArchiveOpener
	docs    docs.Provider
	staging *docs.FSProvider
	tracker *progress.Tracker
	history History
	workers int
	log     zerolog.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Tracker == nil {
		opts.Tracker = progress.New()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Engine{
		opener:  opts.Opener,
		docs:    opts.Documents,
		staging: opts.Staging,
		tracker: opts.Tracker,
		history: opts.History,
		workers: opts.Workers,
		log:     opts.Logger,
	}
}

// Tracker returns the progress tracker the engine reports to.
func (e *Engine) Tracker() *progress.Tracker { return e.tracker }

// Result is the outcome of an export or share job.
type Result struct {
	Message   string           // empty on success
	Err       error            // the error behind Message
	Last      *android.Package // last item attempted
	Total     int
	Documents []docs.URI
}

// OK reports whether the job finished without error.
func (r Result) OK() bool { return r.Err == nil }

// ExportMany copies the archive of each item, in order, into a new document
// under dest named by tmpl. It stops at the first failure; documents written
// before it are kept.
func (e *Engine) ExportMany(ctx context.Context, items []*android.Package, tmpl naming.Template, dest docs.URI) Result {
	res := Result{Total: len(items)}
	runID := e.beginRun(store.RunKindExport, len(items))

	e.tracker.Begin(TitleSave, len(items))
	defer e.tracker.Reset()

	for _, item := range items {
		res.Last = item
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		e.tracker.SetProcess(item.DisplayName())
		u, err := e.exportOne(ctx, runID, item, tmpl, dest)
		if err != nil {
			res.Err = err
			break
		}
		res.Documents = append(res.Documents, u)
		e.tracker.Advance()
	}

	if res.Err != nil {
		res.Message = fmt.Sprintf("%s: %v", res.Last.DisplayName(), res.Err)
		e.log.Error().Err(res.Err).
			Str("package", res.Last.Name).
			Int("exported", len(res.Documents)).
			Int("total", res.Total).
			Msg("export stopped")
	}
	e.finishRun(runID, res.Message)
	return res
}

func (e *Engine) exportOne(ctx context.Context, runID int64, item *android.Package, tmpl naming.Template, dest docs.URI) (docs.URI, error) {
	src, err := e.openSource(ctx, item)
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := tmpl.Apply(item)
	u, err := e.docs.CreateDocument(ctx, dest, docs.MimeAPK, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	n, sum, err := e.copyTo(ctx, u, src)
	if err != nil {
		if derr := e.docs.Delete(ctx, u); derr != nil {
			e.log.Warn().Err(derr).Str("uri", u.String()).Msg("failed to delete partial document")
		}
		return "", err
	}

	file := name + ".apk"
	if m, err := e.docs.Query(ctx, u); err == nil {
		file = m.DisplayName
	}
	e.record(runID, item, u, file, n, sum)
	return u, nil
}

func (e *Engine) openSource(ctx context.Context, item *android.Package) (io.ReadCloser, error) {
	src, err := e.opener.OpenArchive(ctx, item.SourceDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, item.SourceDir)
		}
		return nil, fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}
	return src, nil
}

// copyTo streams src into the document u.
func (e *Engine) copyTo(ctx context.Context, u docs.URI, src io.Reader) (int64, string, error) {
	w, err := e.docs.OpenWriter(ctx, u)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return copyInto(w, src)
}

// copyInto copies src into w and closes w, classifying failures by side.
// It returns the byte count and the xxhash64 of the content in hex.
func copyInto(w io.WriteCloser, src io.Reader) (int64, string, error) {
	tw := &trackedWriter{w: w}
	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tw, h), src)
	closeErr := w.Close()

	switch {
	case err != nil && tw.err != nil:
		return n, "", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	case err != nil && errors.Is(err, fs.ErrNotExist):
		return n, "", fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	case err != nil:
		return n, "", fmt.Errorf("%w: %v", ErrCopyFailed, err)
	case closeErr != nil:
		return n, "", fmt.Errorf("%w: %v", ErrWriteFailure, closeErr)
	}
	return n, fmt.Sprintf("%016x", h.Sum64()), nil
}

// trackedWriter remembers whether a failure came from the destination.
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

// ShareMany stages a copy of every selected item for sharing and returns
// the staged URIs. Copies run concurrently. A failed item is logged and
// left out of the result.
func (e *Engine) ShareMany(ctx context.Context, items []*android.Package, tmpl naming.Template) ([]docs.URI, error) {
	var selected []*android.Package
	for _, item := range items {
		if item.Selected {
			selected = append(selected, item)
		}
	}

	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	runID := e.beginRun(store.RunKindShare, len(selected))
	e.tracker.Begin(TitleShare, len(selected))
	defer e.tracker.Reset()

	names := newNameClaims()
	slots := make([]docs.URI, len(selected))
	var wg sync.WaitGroup

	for i, item := range selected {
		i, item := i, item
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			u, err := e.shareOne(ctx, item, names.claim(tmpl.Apply(item)))
			if err != nil {
				e.log.Warn().Err(err).Str("package", item.Name).Msg("skipping share")
			} else {
				slots[i] = u
			}
			e.tracker.SetProcess(item.DisplayName())
			e.tracker.Advance()
		})
		if err != nil {
			wg.Done()
			e.log.Warn().Err(err).Str("package", item.Name).Msg("failed to schedule share")
		}
	}
	wg.Wait()

	uris := make([]docs.URI, 0, len(slots))
	for _, u := range slots {
		if u != "" {
			uris = append(uris, u)
		}
	}
	e.finishRun(runID, "")
	return uris, nil
}

func (e *Engine) shareOne(ctx context.Context, item *android.Package, name string) (docs.URI, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := e.openSource(ctx, item)
	if err != nil {
		return "", err
	}
	defer src.Close()

	file := name + ".apk"
	f, err := e.staging.Fs().OpenFile("/"+file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if _, _, err := copyInto(f, src); err != nil {
		_ = e.staging.Fs().Remove("/" + file)
		return "", err
	}
	return e.staging.DocumentFor(e.staging.RootTree(), file)
}

// nameClaims hands out unique staging names within one share run.
type nameClaims struct {
	mu    sync.Mutex
	taken map[string]bool
}

func newNameClaims() *nameClaims {
	return &nameClaims{taken: make(map[string]bool)}
}

func (c *nameClaims) claim(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.taken[name] {
		name = name + "_" + uuid.NewString()
	}
	c.taken[name] = true
	return name
}

// DocumentExists reports whether a previously exported document still
// exists, whichever URI shape it was recorded with.
func (e *Engine) DocumentExists(ctx context.Context, u docs.URI) bool {
	return docs.Exists(ctx, e.docs, u)
}

func (e *Engine) beginRun(kind string, total int) int64 {
	if e.history == nil {
		return 0
	}
	id, err := e.history.InsertExportRun(kind, total)
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to record export run")
		return 0
	}
	return id
}

func (e *Engine) finishRun(id int64, msg string) {
	if e.history == nil || id == 0 {
		return
	}
	if err := e.history.FinishExportRun(id, msg); err != nil {
		e.log.Warn().Err(err).Int64("run", id).Msg("failed to finish export run")
	}
}

func (e *Engine) record(runID int64, item *android.Package, u docs.URI, file string, size int64, sum string) {
	if e.history == nil || runID == 0 {
		return
	}
	doc := &store.ExportedDocument{
		URI:         u.String(),
		Key:         docs.Key(u),
		RunID:       runID,
		PackageName: item.Name,
		Label:       item.DisplayName(),
		VersionCode: item.VersionCode,
		VersionName: item.VersionName,
		FileName:    file,
		SizeBytes:   size,
		Checksum:    sum,
		CreatedAt:   time.Now(),
	}
	if err := e.history.InsertExportedDocument(doc); err != nil {
		e.log.Warn().Err(err).Str("uri", doc.URI).Msg("failed to record exported document")
	}
}
