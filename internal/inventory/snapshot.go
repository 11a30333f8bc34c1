package inventory

import (
	"github.com/blackwell-systems/apkextract/internal/android"
)

// Snapshot is an immutable view of the installed applications split by
// partition. Each package appears in at most one partition.
type Snapshot struct {
	UpdatedSystem []*android.Package
	System        []*android.Package
	User          []*android.Package
}

// All returns every record, updated-system first, then system, then user.
func (s *Snapshot) All() []*android.Package {
	out := make([]*android.Package, 0, s.Len())
	out = append(out, s.UpdatedSystem...)
	out = append(out, s.System...)
	out = append(out, s.User...)
	return out
}

// Len returns the total number of records.
func (s *Snapshot) Len() int {
	return len(s.UpdatedSystem) + len(s.System) + len(s.User)
}

// Find looks up a record by package name.
func (s *Snapshot) Find(name string) (*android.Package, android.Partition, bool) {
	for _, part := range []android.Partition{
		android.PartitionUpdatedSystem, android.PartitionSystem, android.PartitionUser,
	} {
		for _, p := range *s.list(part) {
			if p.Name == name {
				return p, part, true
			}
		}
	}
	return nil, 0, false
}

func (s *Snapshot) list(part android.Partition) *[]*android.Package {
	switch part {
	case android.PartitionUpdatedSystem:
		return &s.UpdatedSystem
	case android.PartitionSystem:
		return &s.System
	default:
		return &s.User
	}
}

// clone copies the partition slices; the records themselves are shared.
func (s *Snapshot) clone() *Snapshot {
	return &Snapshot{
		UpdatedSystem: append([]*android.Package(nil), s.UpdatedSystem...),
		System:        append([]*android.Package(nil), s.System...),
		User:          append([]*android.Package(nil), s.User...),
	}
}

// remove drops name from part and reports whether it was present.
func (s *Snapshot) remove(part android.Partition, name string) bool {
	list := s.list(part)
	for i, p := range *list {
		if p.Name == name {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// upsert replaces the record named pkg.Name in part, or appends it.
func (s *Snapshot) upsert(part android.Partition, pkg *android.Package) {
	list := s.list(part)
	for i, p := range *list {
		if p.Name == pkg.Name {
			(*list)[i] = pkg
			return
		}
	}
	*list = append(*list, pkg)
}

// mapRecords returns a copy where fn may replace records. fn returns nil to
// keep the original.
func (s *Snapshot) mapRecords(fn func(*android.Package) *android.Package) *Snapshot {
	next := s.clone()
	for _, list := range []*[]*android.Package{&next.UpdatedSystem, &next.System, &next.User} {
		for i, p := range *list {
			if r := fn(p); r != nil {
				(*list)[i] = r
			}
		}
	}
	return next
}
