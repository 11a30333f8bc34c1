// Package install streams package archives through staged installer
// sessions and reports their progress and outcome.
package install

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/progress"
)

var (
	ErrSessionCreate  = errors.New("failed to create install session")
	ErrInstallFailure = errors.New("install failed")
	ErrNotArchive     = errors.New("not a package archive")
)

// TitleInstall is the progress title while an archive is streamed.
const TitleInstall = "Installing"

// headerSize is enough for filetype to recognise the archive.
const headerSize = 262

// Installer is the OS package installer.
type Installer interface {
	RegisterCallback(cb android.SessionCallback)
	UnregisterCallback(cb android.SessionCallback)
	CreateSession(ctx context.Context, size int64) (int, error)
	OpenWrite(ctx context.Context, sessionID int, splitName string, size int64) (io.WriteCloser, error)
	Commit(ctx context.Context, sessionID int) error
	Abandon(ctx context.Context, sessionID int) error
}

// State is the lifecycle state of a Session.
type State int

const (
	StateCreated State = iota
	StateStreaming
	StateCommitted
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateCommitted:
		return "committed"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) terminal() bool { return s == StateSucceeded || s == StateFailed }

// Result is the terminal outcome of a session.
type Result struct {
	PackageName string
	Success     bool
}

// Options configures an Engine.
type Options struct {
	Installer Installer
	Documents docs.Provider
	Tracker   *progress.Tracker

	// ResolveName maps the source archive to the package name shown in
	// progress and results. It is called lazily, at most once per session.
	ResolveName func(u docs.URI) string

	// OnResult is called once per committed session with its outcome.
	OnResult func(Result)

	Logger zerolog.Logger
}

// Engine installs archives.
type Engine struct {
	installer   Installer
	docs        docs.Provider
	tracker     *progress.Tracker
	resolveName func(docs.URI) string
	onResult    func(Result)
	log         zerolog.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Tracker == nil {
		opts.Tracker = progress.New()
	}
	e := &Engine{
		installer:   opts.Installer,
		docs:        opts.Documents,
		tracker:     opts.Tracker,
		resolveName: opts.ResolveName,
		onResult:    opts.OnResult,
		log:         opts.Logger,
	}
	if e.resolveName == nil {
		e.resolveName = e.displayName
	}
	return e
}

// displayName falls back to the document name without its extension.
func (e *Engine) displayName(u docs.URI) string {
	m, err := e.docs.Query(context.Background(), u)
	if err != nil {
		return u.String()
	}
	return strings.TrimSuffix(m.DisplayName, ".apk")
}

// Install streams the archive at u into a new installer session and
// commits it. It returns once the session is committed; the outcome arrives
// asynchronously and is available from Session.Wait and OnResult.
func (e *Engine) Install(ctx context.Context, u docs.URI) (*Session, error) {
	src, err := e.docs.OpenReader(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	br := bufio.NewReaderSize(src, 32*1024)
	head, _ := br.Peek(headerSize)
	if !filetype.Is(head, "zip") {
		return nil, fmt.Errorf("%w: %s", ErrNotArchive, u)
	}

	size := int64(-1)
	if m, err := e.docs.Query(ctx, u); err == nil {
		size = m.Size
	}

	id, err := e.installer.CreateSession(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}

	s := &Session{ID: id, source: u, engine: e, state: StateCreated, done: make(chan struct{})}
	e.log.Debug().Int("session", id).Int64("size", size).Str("uri", u.String()).Msg("install session created")

	e.tracker.Begin(TitleInstall, 100)
	e.installer.RegisterCallback(s)
	s.setState(StateStreaming)

	if err := e.stream(ctx, id, br, size); err != nil {
		s.abort(ctx)
		return nil, err
	}

	if err := e.installer.Commit(ctx, id); err != nil {
		s.abort(ctx)
		return nil, fmt.Errorf("%w: commit: %v", ErrInstallFailure, err)
	}
	s.setState(StateCommitted)
	return s, nil
}

func (e *Engine) stream(ctx context.Context, id int, src io.Reader, size int64) error {
	w, err := e.installer.OpenWrite(ctx, id, "base.apk", size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailure, err)
	}
	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: src}); err != nil {
		w.Close()
		return fmt.Errorf("%w: %v", ErrInstallFailure, err)
	}
	// Close flushes the session write and waits for it to land.
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailure, err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Session is one installer transaction.
type Session struct {
	ID int

	source docs.URI
	engine *Engine

	mu          sync.Mutex
	state       State
	progress    float64
	packageName string
	result      Result
	done        chan struct{}
	doneOnce    sync.Once
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the last reported progress in [0, 1].
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// PackageName resolves the target package name on first use.
func (s *Session) PackageName() string {
	s.mu.Lock()
	name := s.packageName
	s.mu.Unlock()
	if name != "" {
		return name
	}

	name = s.engine.resolveName(s.source)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packageName == "" {
		s.packageName = name
	}
	return s.packageName
}

// setState moves the session forward. A terminal state is final, since the
// outcome may arrive before Install has marked the session committed.
func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.terminal() || st < s.state {
		return
	}
	s.state = st
}

// OnProgressChanged implements android.SessionCallback.
func (s *Session) OnProgressChanged(sessionID int, p float64) {
	if sessionID != s.ID {
		return
	}
	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return
	}
	s.progress = p
	s.mu.Unlock()

	s.engine.tracker.Set(s.PackageName(), int(p*100))
}

// OnFinished implements android.SessionCallback.
func (s *Session) OnFinished(sessionID int, success bool) {
	if sessionID != s.ID {
		return
	}
	res, ok := s.finish(success)
	if !ok {
		return
	}

	ev := s.engine.log.Info()
	if !success {
		ev = s.engine.log.Error()
	}
	ev.Int("session", s.ID).Str("package", res.PackageName).Bool("success", success).Msg("install finished")

	if s.engine.onResult != nil {
		s.engine.onResult(res)
	}
}

// finish moves the session to its terminal state once, unregisters it and
// leaves the progress tracker idle.
func (s *Session) finish(success bool) (Result, bool) {
	name := s.PackageName()

	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return Result{}, false
	}
	if success {
		s.state = StateSucceeded
	} else {
		s.state = StateFailed
	}
	s.result = Result{PackageName: name, Success: success}
	res := s.result
	s.mu.Unlock()

	s.engine.installer.UnregisterCallback(s)
	s.engine.tracker.Reset()
	s.doneOnce.Do(func() { close(s.done) })
	return res, true
}

// abort abandons an uncommitted session.
func (s *Session) abort(ctx context.Context) {
	if err := s.engine.installer.Abandon(context.WithoutCancel(ctx), s.ID); err != nil {
		s.engine.log.Warn().Err(err).Int("session", s.ID).Msg("failed to abandon session")
	}
	s.finish(false)
}

// Cancel abandons the session if it has not been committed yet and leaves
// the progress tracker idle. A committed session can no longer be stopped;
// Cancel then only stops reporting its progress.
func (s *Session) Cancel(ctx context.Context) {
	switch st := s.State(); {
	case st.terminal():
		return
	case st < StateCommitted:
		s.abort(ctx)
	default:
		s.finish(false)
	}
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the outcome is known or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
