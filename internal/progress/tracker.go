// Package progress holds the shared progress state of the running
// long-lived task. Only the active task mutates it; observers subscribe.
package progress

import (
	"sync"

	"github.com/blackwell-systems/apkextract/internal/notify"
)

// State is a snapshot of the progress of the active task.
type State struct {
	Title    string // what is being done, e.g. "Saving apps"
	Process  string // the current item, e.g. an application label
	Progress int    // completed units
	Tasks    int    // total units
	Shown    bool   // whether a task is in flight
}

// Tracker owns a State and broadcasts every change.
type Tracker struct {
	mu    sync.Mutex
	state State
	subs  notify.Broadcaster[State]
}

// New creates an idle Tracker.
func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) update(fn func(*State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.state)
	// Publish never blocks, so publishing under the lock keeps order.
	t.subs.Publish(t.state)
}

// Begin starts a task of tasks units.
func (t *Tracker) Begin(title string, tasks int) {
	t.update(func(s *State) {
		*s = State{Title: title, Tasks: tasks, Shown: true}
	})
}

// SetProcess names the item currently being processed.
func (t *Tracker) SetProcess(process string) {
	t.update(func(s *State) { s.Process = process })
}

// Advance marks one more unit as done.
func (t *Tracker) Advance() {
	t.update(func(s *State) {
		if s.Progress < s.Tasks {
			s.Progress++
		}
	})
}

// Set replaces the current item and completed units, used by
// percentage-driven tasks. The title set by Begin is kept.
func (t *Tracker) Set(process string, progress int) {
	t.update(func(s *State) {
		s.Process = process
		s.Progress = progress
		s.Shown = true
	})
}

// Reset returns the tracker to idle.
func (t *Tracker) Reset() {
	t.update(func(s *State) { *s = State{} })
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe returns a channel receiving the latest state after each change.
func (t *Tracker) Subscribe() (<-chan State, func()) {
	return t.subs.Subscribe()
}
