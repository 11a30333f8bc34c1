package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/apkextract/internal/android"
)

// EventType is the kind of package change.
type EventType int

const (
	Installed EventType = iota
	Uninstalled
)

func (t EventType) String() string {
	if t == Uninstalled {
		return "uninstalled"
	}
	return "installed"
}

// Event is a package change on the device.
type Event struct {
	Type    EventType
	Package string
}

// Lister enumerates installed packages.
type Lister interface {
	ListInstalled(ctx context.Context) ([]*android.Package, error)
}

type listing struct {
	sourceDir string
	flags     uint32
}

// Watcher polls the device package list and reports changes on Events.
type Watcher struct {
	lister   Lister
	interval time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	known map[string]listing

	events chan Event
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	ticker *time.Ticker
}

// New creates a new Watcher instance.
func New(lister Lister, interval time.Duration, log zerolog.Logger) (*Watcher, error) {
	if lister == nil {
		return nil, fmt.Errorf("lister cannot be nil")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		lister:   lister,
		interval: interval,
		log:      log,
		events:   make(chan Event, 64),
		stopCh:   make(chan struct{}),
	}, nil
}

// Events returns the event channel. It is closed by Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start takes the baseline listing and begins polling. Packages present at
// start produce no events.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.poll(ctx); err != nil {
		return fmt.Errorf("failed to take initial package listing: %w", err)
	}

	w.ticker = time.NewTicker(w.interval)

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ticker.C:
			events, err := w.poll(ctx)
			if err != nil {
				w.log.Warn().Err(err).Msg("package listing failed")
				continue
			}
			for _, ev := range events {
				select {
				case w.events <- ev:
				case <-w.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// poll lists the packages and returns the changes since the last listing.
// The first call only records the baseline.
func (w *Watcher) poll(ctx context.Context) ([]Event, error) {
	pkgs, err := w.lister.ListInstalled(ctx)
	if err != nil {
		return nil, err
	}

	current := make(map[string]listing, len(pkgs))
	for _, p := range pkgs {
		current[p.Name] = listing{sourceDir: p.SourceDir, flags: p.Flags}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.known
	w.known = current
	if prev == nil {
		return nil, nil
	}

	var events []Event
	for name, now := range current {
		before, ok := prev[name]
		switch {
		case !ok:
			events = append(events, Event{Type: Installed, Package: name})
		case before == now:
		case before.flags&android.FlagUpdatedSystem != 0 && now.flags&android.FlagUpdatedSystem == 0:
			// The update was removed; the device reports this as an uninstall.
			events = append(events, Event{Type: Uninstalled, Package: name})
		default:
			events = append(events, Event{Type: Installed, Package: name})
		}
	}
	for name := range prev {
		if _, ok := current[name]; !ok {
			events = append(events, Event{Type: Uninstalled, Package: name})
		}
	}
	return events, nil
}

// Stop halts the watcher and closes the event channel.
func (w *Watcher) Stop() error {
	w.once.Do(func() {
		close(w.stopCh)

		if w.ticker != nil {
			w.ticker.Stop()
		}

		w.wg.Wait()
		close(w.events)
	})
	return nil
}

// Target receives package events.
type Target interface {
	OnPackageInstalled(ctx context.Context, name string) error
	OnPackageUninstalled(ctx context.Context, name string) error
}

// Forward delivers events to target until the channel closes or ctx is
// done. Failures are logged; the next rebuild repairs any drift.
func Forward(ctx context.Context, events <-chan Event, target Target, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var err error
			if ev.Type == Uninstalled {
				err = target.OnPackageUninstalled(ctx, ev.Package)
			} else {
				err = target.OnPackageInstalled(ctx, ev.Package)
			}
			if err != nil {
				log.Warn().Err(err).Str("package", ev.Package).Stringer("event", ev.Type).Msg("failed to apply package event")
				continue
			}
			log.Debug().Str("package", ev.Package).Stringer("event", ev.Type).Msg("package event applied")
		}
	}
}
