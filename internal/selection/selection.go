// Package selection turns an inventory snapshot and the user's list
// preferences into the ordered list of applications to display.
//
// The stages are pure and run in a fixed order: type selection, filtering,
// sorting, then free-text search.
package selection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/inventory"
)

// Sort keys.
const (
	SortName = iota
	SortPackageName
	SortInstallTime
	SortUpdateTime
)

// Other-filter values.
const (
	OtherLauncher   = "launcher"
	OtherNoLauncher = "no_launcher"
	OtherEnabled    = "enabled"
	OtherDisabled   = "disabled"
)

// Types selects which partitions are listed.
type Types struct {
	UpdatedSystem bool
	System        bool // honoured only together with UpdatedSystem
	User          bool
}

// DefaultTypes lists user apps only.
var DefaultTypes = Types{User: true}

// Filters restricts the list. Nil or empty fields impose no restriction.
type Filters struct {
	Installer *string
	Category  *string
	Others    []string
}

// SortOptions orders the list.
type SortOptions struct {
	Key            int
	FavoritesFirst bool
	Ascending      bool
}

// Options is everything the pipeline needs besides the snapshot and query.
type Options struct {
	Types   Types
	Filters Filters
	Sort    SortOptions
}

// DefaultOptions mirrors the preference defaults.
func DefaultOptions() Options {
	return Options{
		Types: DefaultTypes,
		Sort:  SortOptions{Key: SortName, FavoritesFirst: true, Ascending: true},
	}
}

// SelectTypes picks the partitions enabled in t, updated-system first.
func SelectTypes(snap *inventory.Snapshot, t Types) []*android.Package {
	var out []*android.Package
	if t.UpdatedSystem {
		out = append(out, snap.UpdatedSystem...)
		if t.System {
			out = append(out, snap.System...)
		}
	}
	if t.User {
		out = append(out, snap.User...)
	}
	return out
}

// Filter keeps the records matching every set filter.
func Filter(list []*android.Package, f Filters) []*android.Package {
	out := make([]*android.Package, 0, len(list))
	for _, p := range list {
		if f.Installer != nil && p.Installer != *f.Installer {
			continue
		}
		if f.Category != nil && p.Category != *f.Category {
			continue
		}
		if !matchOthers(p, f.Others) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchOthers(p *android.Package, others []string) bool {
	for _, o := range others {
		switch o {
		case OtherLauncher:
			if !p.HasLauncher {
				return false
			}
		case OtherNoLauncher:
			if p.HasLauncher {
				return false
			}
		case OtherEnabled:
			if !p.Enabled {
				return false
			}
		case OtherDisabled:
			if p.Enabled {
				return false
			}
		}
	}
	return true
}

// Sort returns a sorted copy of list. It panics on an unknown sort key.
func Sort(list []*android.Package, o SortOptions) []*android.Package {
	less := comparator(o.Key)
	out := append([]*android.Package(nil), list...)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !o.Ascending {
			a, b = b, a
		}
		if c := less(a, b); c != 0 {
			return c < 0
		}
		return a.Name < b.Name
	})

	if o.FavoritesFirst {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Favorite && !out[j].Favorite
		})
	}
	return out
}

func comparator(key int) func(a, b *android.Package) int {
	switch key {
	case SortName:
		return func(a, b *android.Package) int {
			return strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName()))
		}
	case SortPackageName:
		return func(a, b *android.Package) int { return strings.Compare(a.Name, b.Name) }
	case SortInstallTime:
		// Newest first.
		return func(a, b *android.Package) int { return b.InstalledAt.Compare(a.InstalledAt) }
	case SortUpdateTime:
		return func(a, b *android.Package) int { return b.UpdatedAt.Compare(a.UpdatedAt) }
	default:
		panic(fmt.Sprintf("selection: unknown sort key %d", key))
	}
}

// Search keeps records whose label or package name contains query,
// ignoring case. A blank query returns list unchanged.
func Search(list []*android.Package, query string) []*android.Package {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	out := make([]*android.Package, 0, len(list))
	for _, p := range list {
		if strings.Contains(strings.ToLower(p.DisplayName()), q) ||
			strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out
}

// Compute runs every stage.
func Compute(snap *inventory.Snapshot, o Options, query string) []*android.Package {
	list := SelectTypes(snap, o.Types)
	list = Filter(list, o.Filters)
	list = Sort(list, o.Sort)
	return Search(list, query)
}
