// Package docs implements a document provider: URI-addressed documents and
// document trees backed by a filesystem.
package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// MIME types used by the provider.
const (
	MimeAPK       = "application/vnd.android.package-archive"
	MimeDirectory = "vnd.android.document/directory"
)

// ErrDocumentMissing is returned when a URI names no existing document.
var ErrDocumentMissing = errors.New("document does not exist")

// Metadata describes one document.
type Metadata struct {
	URI          URI
	DocumentID   string
	DisplayName  string
	MimeType     string
	Size         int64
	LastModified time.Time
}

// IsDir reports whether the document is a directory.
func (m *Metadata) IsDir() bool { return m.MimeType == MimeDirectory }

// Provider is the document store used by the export, install and archive
// components.
type Provider interface {
	CreateDocument(ctx context.Context, parent URI, mimeType, displayName string) (URI, error)
	OpenWriter(ctx context.Context, u URI) (io.WriteCloser, error)
	OpenReader(ctx context.Context, u URI) (io.ReadCloser, error)
	Query(ctx context.Context, u URI) (*Metadata, error)
	List(ctx context.Context, tree URI) ([]*Metadata, error)
	Delete(ctx context.Context, u URI) error
}

// FSProvider serves documents from an afero filesystem. Document IDs have
// the form "<volume>:<relative path>"; the volume root is "<volume>:".
type FSProvider struct {
	fs        afero.Fs
	authority string
	volume    string
}

// NewFSProvider creates a provider over fsys. fsys is typically a
// BasePathFs rooted at the storage directory.
func NewFSProvider(fsys afero.Fs, authority, volume string) *FSProvider {
	return &FSProvider{fs: fsys, authority: authority, volume: volume}
}

// Fs returns the underlying filesystem.
func (p *FSProvider) Fs() afero.Fs { return p.fs }

// Authority returns the provider authority.
func (p *FSProvider) Authority() string { return p.authority }

// RootTree returns the tree URI of the volume root.
func (p *FSProvider) RootTree() URI {
	return BuildTreeURI(p.authority, p.volume+":")
}

// TreeFor returns the tree URI of a directory relative to the volume root.
func (p *FSProvider) TreeFor(rel string) URI {
	return BuildTreeURI(p.authority, p.docID(rel))
}

// DocumentFor returns the URI of a file relative to the volume root, inside
// the tree rooted at tree.
func (p *FSProvider) DocumentFor(tree URI, rel string) (URI, error) {
	return BuildDocumentURIUsingTree(tree, p.docID(rel))
}

func (p *FSProvider) docID(rel string) string {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	return p.volume + ":" + rel
}

// pathOf resolves the filesystem path a URI points at: the document part
// when present, otherwise the tree root.
func (p *FSProvider) pathOf(u URI) (string, error) {
	if a := u.Authority(); a != p.authority {
		return "", fmt.Errorf("%w: unknown authority %q", ErrInvalidURI, a)
	}

	var id string
	var err error
	if IsDocumentURI(u) {
		id, err = DocumentID(u)
	} else {
		id, err = TreeDocumentID(u)
	}
	if err != nil {
		return "", err
	}
	return p.pathOfID(id)
}

func (p *FSProvider) pathOfID(id string) (string, error) {
	vol, rel, ok := strings.Cut(id, ":")
	if !ok || vol != p.volume {
		return "", fmt.Errorf("%w: unknown document id %q", ErrInvalidURI, id)
	}
	// Cleaning a rooted path never climbs above the volume root.
	return path.Clean("/" + rel), nil
}

func missing(u URI, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDocumentMissing, u)
	}
	return err
}

// CreateDocument creates an empty document named displayName under parent.
// Package archives get an ".apk" extension; an existing name gets a
// " (n)" suffix.
func (p *FSProvider) CreateDocument(ctx context.Context, parent URI, mimeType, displayName string) (URI, error) {
	dir, err := p.pathOf(parent)
	if err != nil {
		return "", err
	}

	info, err := p.fs.Stat(dir)
	if err != nil {
		return "", missing(parent, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("parent %s is not a directory", parent)
	}

	ext := ""
	if mimeType == MimeAPK {
		ext = ".apk"
		displayName = strings.TrimSuffix(displayName, ext)
	}

	name := displayName + ext
	for n := 1; ; n++ {
		exists, err := afero.Exists(p.fs, path.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", name, err)
		}
		if !exists {
			break
		}
		name = fmt.Sprintf("%s (%d)%s", displayName, n, ext)
	}

	full := path.Join(dir, name)
	f, err := p.fs.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create document %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to create document %s: %w", name, err)
	}

	return p.uriFor(parent, full)
}

// uriFor builds the URI of the file at full, keeping the parent's tree when
// it has one.
func (p *FSProvider) uriFor(parent URI, full string) (URI, error) {
	id := p.docID(full)
	if IsTreeURI(parent) {
		return BuildDocumentURIUsingTree(parent, id)
	}
	return BuildDocumentURI(p.authority, id), nil
}

// OpenWriter opens an existing document for writing, truncating it.
func (p *FSProvider) OpenWriter(ctx context.Context, u URI) (io.WriteCloser, error) {
	full, err := p.pathOf(u)
	if err != nil {
		return nil, err
	}
	f, err := p.fs.OpenFile(full, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, missing(u, err)
	}
	return f, nil
}

// OpenReader opens a document for reading.
func (p *FSProvider) OpenReader(ctx context.Context, u URI) (io.ReadCloser, error) {
	full, err := p.pathOf(u)
	if err != nil {
		return nil, err
	}
	f, err := p.fs.Open(full)
	if err != nil {
		return nil, missing(u, err)
	}
	return f, nil
}

// Query returns the metadata of a document.
func (p *FSProvider) Query(ctx context.Context, u URI) (*Metadata, error) {
	full, err := p.pathOf(u)
	if err != nil {
		return nil, err
	}
	info, err := p.fs.Stat(full)
	if err != nil {
		return nil, missing(u, err)
	}
	return p.metadata(u, full, info), nil
}

func (p *FSProvider) metadata(u URI, full string, info fs.FileInfo) *Metadata {
	m := &Metadata{
		URI:          u,
		DocumentID:   p.docID(full),
		DisplayName:  info.Name(),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}
	if full == "/" {
		m.DisplayName = p.volume
	}
	m.MimeType = p.detectMime(full, info)
	return m
}

func (p *FSProvider) detectMime(full string, info fs.FileInfo) string {
	if info.IsDir() {
		return MimeDirectory
	}
	if strings.EqualFold(path.Ext(full), ".apk") {
		return MimeAPK
	}

	f, err := p.fs.Open(full)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// List returns the children of a directory, sorted by name.
func (p *FSProvider) List(ctx context.Context, tree URI) ([]*Metadata, error) {
	dir, err := p.pathOf(tree)
	if err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return nil, missing(tree, err)
	}

	out := make([]*Metadata, 0, len(infos))
	for _, info := range infos {
		full := path.Join(dir, info.Name())
		u, err := p.uriFor(tree, full)
		if err != nil {
			return nil, err
		}
		out = append(out, p.metadata(u, full, info))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// Delete removes a document.
func (p *FSProvider) Delete(ctx context.Context, u URI) error {
	full, err := p.pathOf(u)
	if err != nil {
		return err
	}
	if full == "/" {
		return fmt.Errorf("refusing to delete volume root %s", u)
	}
	if _, err := p.fs.Stat(full); err != nil {
		return missing(u, err)
	}
	if err := p.fs.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to delete %s: %w", u, err)
	}
	return nil
}

// Exists reports whether u names an existing document. The URI may be a
// single-document URI, a tree URI or a document inside a tree. Any error
// counts as absent.
func Exists(ctx context.Context, p Provider, u URI) bool {
	canonical, err := Canonical(u)
	if err != nil {
		return false
	}
	_, err = p.Query(ctx, canonical)
	return err == nil
}
