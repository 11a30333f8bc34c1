package export

import (
	"context"
	"sync"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/naming"
	"github.com/blackwell-systems/apkextract/internal/progress"
)

// Task is a running export or share job.
type Task struct {
	cancel  context.CancelFunc
	done    chan struct{}
	tracker *progress.Tracker
	once    sync.Once
	result  Result
}

func (e *Engine) start(ctx context.Context, run func(context.Context) Result) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{}), tracker: e.tracker}
	go func() {
		defer close(t.done)
		defer cancel()
		t.result = run(ctx)
	}()
	return t
}

// StartExport runs ExportMany in the background.
func (e *Engine) StartExport(ctx context.Context, items []*android.Package, tmpl naming.Template, dest docs.URI) *Task {
	return e.start(ctx, func(ctx context.Context) Result {
		return e.ExportMany(ctx, items, tmpl, dest)
	})
}

// StartShare runs ShareMany in the background. The staged URIs are in the
// result's Documents.
func (e *Engine) StartShare(ctx context.Context, items []*android.Package, tmpl naming.Template) *Task {
	return e.start(ctx, func(ctx context.Context) Result {
		uris, err := e.ShareMany(ctx, items, tmpl)
		res := Result{Err: err, Documents: uris}
		for _, item := range items {
			if item.Selected {
				res.Total++
			}
		}
		if err != nil {
			res.Message = err.Error()
		}
		return res
	})
}

// Cancel stops the task, waits for it to wind down and leaves the progress
// tracker idle.
func (t *Task) Cancel() {
	t.once.Do(func() {
		t.cancel()
		<-t.done
		t.tracker.Reset()
	})
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes and returns its result.
func (t *Task) Wait() Result {
	<-t.done
	return t.result
}
