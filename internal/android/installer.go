package android

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// SessionCallback receives installer session events. Events are delivered
// asynchronously and in order from a single dispatch goroutine.
type SessionCallback interface {
	OnProgressChanged(sessionID int, progress float64)
	OnFinished(sessionID int, success bool)
}

type sessionEvent struct {
	sessionID int
	progress  float64
	finished  bool
	success   bool
}

var sessionIDPattern = regexp.MustCompile(`\[(\d+)\]`)

// Installer drives staged install sessions on the device with
// `pm install-create`, `pm install-write` and `pm install-commit`.
type Installer struct {
	client *Client

	mu        sync.Mutex
	callbacks []SessionCallback

	events chan sessionEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewInstaller creates an Installer and starts its event dispatcher. Call
// Close to stop it.
func NewInstaller(client *Client) *Installer {
	in := &Installer{
		client: client,
		events: make(chan sessionEvent, 64),
		stopCh: make(chan struct{}),
	}
	in.wg.Add(1)
	go in.dispatch()
	return in
}

// Close stops the dispatcher. Pending events are dropped.
func (in *Installer) Close() error {
	close(in.stopCh)
	in.wg.Wait()
	return nil
}

// RegisterCallback adds a session callback.
func (in *Installer) RegisterCallback(cb SessionCallback) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.callbacks = append(in.callbacks, cb)
}

// UnregisterCallback removes a previously registered callback.
func (in *Installer) UnregisterCallback(cb SessionCallback) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, c := range in.callbacks {
		if c == cb {
			in.callbacks = append(in.callbacks[:i], in.callbacks[i+1:]...)
			return
		}
	}
}

func (in *Installer) dispatch() {
	defer in.wg.Done()
	for {
		select {
		case ev := <-in.events:
			in.mu.Lock()
			callbacks := make([]SessionCallback, len(in.callbacks))
			copy(callbacks, in.callbacks)
			in.mu.Unlock()

			for _, cb := range callbacks {
				if ev.finished {
					cb.OnFinished(ev.sessionID, ev.success)
				} else {
					cb.OnProgressChanged(ev.sessionID, ev.progress)
				}
			}
		case <-in.stopCh:
			return
		}
	}
}

func (in *Installer) emit(ev sessionEvent) {
	select {
	case in.events <- ev:
	case <-in.stopCh:
	}
}

// CreateSession opens a new install session. size is the total archive
// length, or -1 when unknown.
func (in *Installer) CreateSession(ctx context.Context, size int64) (int, error) {
	args := []string{"pm", "install-create", "-r"}
	if size >= 0 {
		args = append(args, "-S", strconv.FormatInt(size, 10))
	}

	output, err := in.client.shell(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("pm install-create failed: %w", err)
	}

	// "Success: created install session [1234]"
	m := sessionIDPattern.FindSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("pm install-create returned no session: %s", strings.TrimSpace(string(output)))
	}
	id, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q: %w", m[1], err)
	}
	return id, nil
}

// OpenWrite returns a writer streaming into the session under splitName.
// Closing the writer flushes the stream to the device and reports any
// failure. Progress is reported in the [0, 0.8] range while writing.
func (in *Installer) OpenWrite(ctx context.Context, sessionID int, splitName string, size int64) (io.WriteCloser, error) {
	args := []string{"exec-in", "pm", "install-write"}
	if size >= 0 {
		args = append(args, "-S", strconv.FormatInt(size, 10))
	}
	args = append(args, strconv.Itoa(sessionID), splitName, "-")

	pr, pw := io.Pipe()
	w := &sessionWriter{
		pw:        pw,
		done:      make(chan error, 1),
		installer: in,
		sessionID: sessionID,
		size:      size,
	}

	go func() {
		output, err := in.client.runner.Feed(ctx, pr, in.client.args(args...)...)
		if err == nil && !strings.Contains(string(output), "Success") {
			err = fmt.Errorf("pm install-write failed: %s", strings.TrimSpace(string(output)))
		}
		// Unblock a writer still pushing data into a dead process.
		pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

// Commit submits the session. The outcome is delivered through
// OnFinished once the package manager has processed the archive.
func (in *Installer) Commit(ctx context.Context, sessionID int) error {
	in.emit(sessionEvent{sessionID: sessionID, progress: 0.9})

	// The commit outlives the caller's cancellation once submitted.
	ctx = context.WithoutCancel(ctx)
	go func() {
		output, err := in.client.shell(ctx, "pm", "install-commit", strconv.Itoa(sessionID))
		success := err == nil && strings.Contains(string(output), "Success")
		if success {
			in.emit(sessionEvent{sessionID: sessionID, progress: 1})
		}
		in.emit(sessionEvent{sessionID: sessionID, finished: true, success: success})
	}()

	return nil
}

// Abandon discards an uncommitted session.
func (in *Installer) Abandon(ctx context.Context, sessionID int) error {
	if _, err := in.client.shell(ctx, "pm", "install-abandon", strconv.Itoa(sessionID)); err != nil {
		return fmt.Errorf("pm install-abandon %d failed: %w", sessionID, err)
	}
	return nil
}

// sessionWriter counts written bytes to report streaming progress.
type sessionWriter struct {
	pw        *io.PipeWriter
	done      chan error
	installer *Installer
	sessionID int
	size      int64
	written   int64
	lastStep  int
}

func (w *sessionWriter) Write(p []byte) (int, error) {
	n, err := w.pw.Write(p)
	w.written += int64(n)

	if w.size > 0 {
		// Report in 5% steps of the write phase.
		step := int(w.written * 20 / w.size)
		if step > w.lastStep {
			w.lastStep = step
			frac := float64(w.written) / float64(w.size)
			if frac > 1 {
				frac = 1
			}
			w.installer.emit(sessionEvent{sessionID: w.sessionID, progress: 0.8 * frac})
		}
	}
	return n, err
}

func (w *sessionWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}
