// Package inventory maintains the current set of installed applications,
// partitioned into updated-system, system and user apps, and keeps it
// consistent with install and uninstall events.
//
// Readers get immutable snapshots; every change publishes a new snapshot
// atomically. Writers are serialized.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/notify"
)

// Registry is the operating system package registry.
type Registry interface {
	ListInstalled(ctx context.Context) ([]*android.Package, error)
	PackageInfo(ctx context.Context, name string) (*android.Package, error)
	IsInstalled(ctx context.Context, name string) (bool, error)
	ArchiveSize(ctx context.Context, path string) (int64, error)
}

// FavoritesSource supplies the persisted favorite package names.
type FavoritesSource interface {
	Favorites() []string
}

// Options configures an Inventory.
type Options struct {
	Registry      Registry
	Favorites     FavoritesSource // optional
	Logger        zerolog.Logger
	Workers       int // concurrent package queries during Rebuild
	SizeCacheSize int
}

// Inventory is the application inventory.
type Inventory struct {
	registry  Registry
	favorites FavoritesSource
	log       zerolog.Logger
	workers   int

	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	subs    notify.Broadcaster[*Snapshot]

	sizes *lru.Cache[string, int64]
}

// New creates an empty Inventory. Call Rebuild to populate it.
func New(opts Options) (*Inventory, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.SizeCacheSize <= 0 {
		opts.SizeCacheSize = 512
	}

	sizes, err := lru.New[string, int64](opts.SizeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create size cache: %w", err)
	}

	inv := &Inventory{
		registry:  opts.Registry,
		favorites: opts.Favorites,
		log:       opts.Logger,
		workers:   opts.Workers,
		sizes:     sizes,
	}
	inv.current.Store(&Snapshot{})
	return inv, nil
}

// Snapshot returns the current snapshot. It never returns nil.
func (inv *Inventory) Snapshot() *Snapshot {
	return inv.current.Load()
}

// Subscribe returns a channel receiving the latest published snapshot.
func (inv *Inventory) Subscribe() (<-chan *Snapshot, func()) {
	return inv.subs.Subscribe()
}

// publish stores next and notifies subscribers. Callers hold writeMu.
func (inv *Inventory) publish(next *Snapshot) {
	inv.current.Store(next)
	inv.subs.Publish(next)
}

func (inv *Inventory) favoriteSet() map[string]bool {
	set := make(map[string]bool)
	if inv.favorites == nil {
		return set
	}
	for _, name := range inv.favorites.Favorites() {
		set[name] = true
	}
	return set
}

// Rebuild enumerates the installed packages and publishes a fresh snapshot.
// Packages whose details cannot be queried are left out and logged. An
// error is returned only when the enumeration itself fails; the previous
// snapshot then stays in place.
func (inv *Inventory) Rebuild(ctx context.Context) error {
	listed, err := inv.registry.ListInstalled(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate packages: %w", err)
	}

	resolved := make([]*android.Package, len(listed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inv.workers)

	for i, base := range listed {
		i, base := i, base
		g.Go(func() error {
			info, err := inv.registry.PackageInfo(gctx, base.Name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				inv.log.Warn().Err(err).Str("package", base.Name).Msg("skipping package")
				return nil
			}
			resolved[i] = merge(base, info)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("rebuild interrupted: %w", err)
	}

	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()

	prev := inv.Snapshot()
	favorites := inv.favoriteSet()
	next := &Snapshot{}
	for _, pkg := range resolved {
		if pkg == nil {
			continue
		}
		pkg.Favorite = favorites[pkg.Name]
		if old, _, ok := prev.Find(pkg.Name); ok {
			pkg.Selected = old.Selected
		}
		list := next.list(pkg.Partition())
		*list = append(*list, pkg)
	}

	inv.publish(next)
	inv.log.Debug().
		Int("updated_system", len(next.UpdatedSystem)).
		Int("system", len(next.System)).
		Int("user", len(next.User)).
		Msg("inventory rebuilt")
	return nil
}

// merge combines a listing record with its detailed record.
func merge(base, info *android.Package) *android.Package {
	pkg := info.Clone()
	if pkg.SourceDir == "" {
		pkg.SourceDir = base.SourceDir
	}
	if pkg.Flags == 0 {
		pkg.Flags = base.Flags
	}
	pkg.Enabled = pkg.Enabled && base.Enabled
	if pkg.Label == "" || pkg.Label == pkg.Name {
		pkg.Label = base.Label
	}
	return pkg
}

// Add inserts or refreshes a record. The record lands in the partition its
// flags name and leaves any other partition; an updated system app thereby
// replaces its system entry.
func (inv *Inventory) Add(pkg *android.Package) {
	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()

	rec := pkg.Clone()
	rec.Favorite = inv.favoriteSet()[rec.Name]

	prev := inv.Snapshot()
	if old, _, ok := prev.Find(rec.Name); ok {
		rec.Selected = old.Selected
	}

	next := prev.clone()
	part := rec.Partition()
	for _, other := range []android.Partition{
		android.PartitionUpdatedSystem, android.PartitionSystem, android.PartitionUser,
	} {
		if other != part {
			next.remove(other, rec.Name)
		}
	}
	next.upsert(part, rec)
	inv.publish(next)
}

// Remove drops a record. Removing an updated system app reverts it to the
// system partition with the updated-system flag cleared.
func (inv *Inventory) Remove(pkg *android.Package) {
	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()

	prev := inv.Snapshot()
	next := prev.clone()

	if old, part, ok := prev.Find(pkg.Name); ok && part == android.PartitionUpdatedSystem {
		next.remove(android.PartitionUpdatedSystem, pkg.Name)
		reverted := old.Clone()
		reverted.Flags &^= android.FlagUpdatedSystem
		reverted.Flags |= android.FlagSystem
		next.upsert(android.PartitionSystem, reverted)
	} else {
		removed := next.remove(android.PartitionUser, pkg.Name)
		removed = next.remove(android.PartitionSystem, pkg.Name) || removed
		if !removed {
			return
		}
	}
	inv.sizes.Remove(pkg.Name)
	inv.publish(next)
}

// OnPackageInstalled handles an install or update event.
func (inv *Inventory) OnPackageInstalled(ctx context.Context, name string) error {
	info, err := inv.registry.PackageInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to resolve installed package %s: %w", name, err)
	}
	inv.Add(info)
	return nil
}

// OnPackageUninstalled handles an uninstall event. The registry is asked
// again, since an update and a reinstall also emit uninstall events: a
// package that is gone is removed, an updated system app that lost its
// update falls back to the system partition, anything else is ignored.
func (inv *Inventory) OnPackageUninstalled(ctx context.Context, name string) error {
	installed, err := inv.registry.IsInstalled(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to verify uninstall of %s: %w", name, err)
	}

	existing, part, known := inv.Snapshot().Find(name)
	if !installed {
		if known {
			inv.Remove(existing)
		}
		return nil
	}

	info, err := inv.registry.PackageInfo(ctx, name)
	if err != nil {
		if errors.Is(err, android.ErrPackageNotFound) && known {
			inv.Remove(existing)
			return nil
		}
		return fmt.Errorf("failed to resolve package %s: %w", name, err)
	}

	if known && part == android.PartitionUpdatedSystem && info.Partition() != android.PartitionUpdatedSystem {
		inv.Add(info)
		return nil
	}

	inv.log.Debug().Str("package", name).Msg("uninstall event for a package still installed, ignoring")
	return nil
}

// SetFavorite publishes a snapshot where the record's favorite mark is
// changed. Persisting the favorite is the caller's job.
func (inv *Inventory) SetFavorite(name string, favorite bool) {
	inv.update(func(p *android.Package) *android.Package {
		if p.Name != name || p.Favorite == favorite {
			return nil
		}
		c := p.Clone()
		c.Favorite = favorite
		return c
	})
}

// ApplyFavorites re-marks every record from the given favorite set.
func (inv *Inventory) ApplyFavorites(names []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	inv.update(func(p *android.Package) *android.Package {
		if p.Favorite == set[p.Name] {
			return nil
		}
		c := p.Clone()
		c.Favorite = set[p.Name]
		return c
	})
}

// SetSelected changes the selection mark of one record.
func (inv *Inventory) SetSelected(name string, selected bool) {
	inv.update(func(p *android.Package) *android.Package {
		if p.Name != name || p.Selected == selected {
			return nil
		}
		c := p.Clone()
		c.Selected = selected
		return c
	})
}

// SelectAll marks or unmarks every record in names, or every record when
// names is nil.
func (inv *Inventory) SelectAll(names []string, selected bool) {
	var set map[string]bool
	if names != nil {
		set = make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
	}
	inv.update(func(p *android.Package) *android.Package {
		if (set != nil && !set[p.Name]) || p.Selected == selected {
			return nil
		}
		c := p.Clone()
		c.Selected = selected
		return c
	})
}

func (inv *Inventory) update(fn func(*android.Package) *android.Package) {
	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()
	inv.publish(inv.Snapshot().mapRecords(fn))
}

// ArchiveSize returns the archive size of a package, computing it on first
// use. Results are cached per package version.
func (inv *Inventory) ArchiveSize(ctx context.Context, name string) (int64, error) {
	pkg, _, ok := inv.Snapshot().Find(name)
	if !ok {
		return -1, fmt.Errorf("%w: %s", android.ErrPackageNotFound, name)
	}

	key := sizeKey(pkg)
	if size, ok := inv.sizes.Get(key); ok {
		return size, nil
	}

	size, err := inv.registry.ArchiveSize(ctx, pkg.SourceDir)
	if err != nil {
		return -1, fmt.Errorf("failed to size archive of %s: %w", name, err)
	}
	inv.sizes.Add(key, size)
	return size, nil
}

// WithSizes returns copies of pkgs with SizeBytes filled in. Sizes that
// cannot be computed stay -1.
func (inv *Inventory) WithSizes(ctx context.Context, pkgs []*android.Package) []*android.Package {
	out := make([]*android.Package, len(pkgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inv.workers)

	for i, p := range pkgs {
		i, p := i, p
		g.Go(func() error {
			c := p.Clone()
			size, err := inv.ArchiveSize(gctx, p.Name)
			if err != nil {
				inv.log.Debug().Err(err).Str("package", p.Name).Msg("archive size unavailable")
				size = -1
			}
			c.SizeBytes = size
			out[i] = c
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func sizeKey(p *android.Package) string {
	return p.Name + "@" + strconv.FormatInt(p.UpdatedAt.UnixNano(), 10)
}

// Handle gives shared access to one lazily built Inventory. The first Get
// constructs and populates it; later calls reuse it.
type Handle struct {
	opts Options
	once sync.Once
	inv  *Inventory
	err  error
}

// NewHandle creates a Handle.
func NewHandle(opts Options) *Handle {
	return &Handle{opts: opts}
}

// Get returns the shared Inventory, building it on first use.
func (h *Handle) Get(ctx context.Context) (*Inventory, error) {
	h.once.Do(func() {
		h.inv, h.err = New(h.opts)
		if h.err != nil {
			return
		}
		h.err = h.inv.Rebuild(ctx)
	})
	return h.inv, h.err
}
