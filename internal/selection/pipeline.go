package selection

import (
	"context"
	"sync"
	"time"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/inventory"
	"github.com/blackwell-systems/apkextract/internal/notify"
	"github.com/blackwell-systems/apkextract/internal/prefs"
)

// DefaultDebounce is how long query changes settle before the list is
// recomputed.
const DefaultDebounce = 500 * time.Millisecond

// Pipeline recomputes the displayed list whenever the snapshot, the options
// or the search query change. Query changes are coalesced.
type Pipeline struct {
	mu       sync.Mutex
	snap     *inventory.Snapshot
	opts     Options
	override func(*Options)
	query    string
	debounce time.Duration
	timer    *time.Timer
	current  []*android.Package
	subs     notify.Broadcaster[[]*android.Package]
}

// NewPipeline creates a pipeline over an empty snapshot with default
// options. A non-positive debounce uses DefaultDebounce.
func NewPipeline(debounce time.Duration) *Pipeline {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Pipeline{
		snap:     &inventory.Snapshot{},
		opts:     DefaultOptions(),
		debounce: debounce,
	}
}

// recompute publishes a fresh list. Callers hold mu.
func (p *Pipeline) recompute() {
	opts := p.opts
	if p.override != nil {
		p.override(&opts)
	}
	p.current = Compute(p.snap, opts, p.query)
	p.subs.Publish(p.current)
}

// SetSnapshot replaces the inventory snapshot.
func (p *Pipeline) SetSnapshot(snap *inventory.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
	p.recompute()
}

// SetOptions replaces the selection, filter and sort options.
func (p *Pipeline) SetOptions(o Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = o
	p.recompute()
}

// SetOverride installs fn, applied to a copy of the options before every
// recompute. Options set later, including those Run reads from the
// preferences, pass through it too.
func (p *Pipeline) SetOverride(fn func(*Options)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = fn
	p.recompute()
}

// SetQuery schedules a search for q once no further query arrives within
// the debounce window.
func (p *Pipeline) SetQuery(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.query = q
		p.recompute()
	})
}

// Current returns the latest computed list.
func (p *Pipeline) Current() []*android.Package {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Updates returns a channel receiving the latest list after each change.
func (p *Pipeline) Updates() (<-chan []*android.Package, func()) {
	return p.subs.Subscribe()
}

// Close stops a pending query and closes subscriber channels.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.subs.Close()
}

// OptionsFrom reads the current list options from the preference store.
func OptionsFrom(r *prefs.Repository) Options {
	return Options{
		Types: Types{
			UpdatedSystem: r.UpdatedSystemApps(),
			System:        r.SystemApps(),
			User:          r.UserApps(),
		},
		Filters: Filters{
			Installer: r.FilterInstaller(),
			Category:  r.FilterCategory(),
			Others:    r.FilterOthers(),
		},
		Sort: SortOptions{
			Key:            r.SortOrder(),
			FavoritesFirst: r.SortFavorites(),
			Ascending:      r.SortAscending(),
		},
	}
}

// listKeys are the preferences that change the displayed list.
var listKeys = map[string]bool{
	prefs.KeyUpdatedSystemApps: true,
	prefs.KeySystemApps:        true,
	prefs.KeyUserApps:          true,
	prefs.KeyAppSort:           true,
	prefs.KeySortFavorites:     true,
	prefs.KeyAppSortAsc:        true,
	prefs.KeyFilterInstaller:   true,
	prefs.KeyFilterCategory:    true,
	prefs.KeyFilterOthers:      true,
}

// Run feeds inventory snapshots and preference changes into p until ctx is
// done. Favorite changes are pushed into the inventory, whose next snapshot
// then reaches the pipeline.
func (p *Pipeline) Run(ctx context.Context, inv *inventory.Inventory, r *prefs.Repository) {
	snaps, cancelSnaps := inv.Subscribe()
	defer cancelSnaps()
	changes, cancelChanges := r.Subscribe()
	defer cancelChanges()

	p.SetOptions(OptionsFrom(r))
	p.SetSnapshot(inv.Snapshot())

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			p.SetSnapshot(snap)
		case c, ok := <-changes:
			if !ok {
				return
			}
			switch {
			case c.Key == prefs.KeyFavorites:
				inv.ApplyFavorites(r.Favorites())
			case listKeys[c.Key]:
				p.SetOptions(OptionsFrom(r))
			}
		}
	}
}
