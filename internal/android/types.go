package android

import (
	"errors"
	"time"
)

// ApplicationInfo flag bits as reported by the package manager.
const (
	FlagSystem        uint32 = 1 << 0
	FlagUpdatedSystem uint32 = 1 << 7
)

// ErrPackageNotFound is returned when the package manager has no record of
// the requested package.
var ErrPackageNotFound = errors.New("package not found")

// Partition is the category an application belongs to.
type Partition int

const (
	PartitionUser Partition = iota
	PartitionSystem
	PartitionUpdatedSystem
)

func (p Partition) String() string {
	switch p {
	case PartitionSystem:
		return "system"
	case PartitionUpdatedSystem:
		return "updated-system"
	default:
		return "user"
	}
}

// Package represents an installed Android application.
type Package struct {
	Name        string // package name, unique on the device
	Label       string
	SourceDir   string // path of the base archive on the device
	VersionName string
	VersionCode int64
	InstalledAt time.Time
	UpdatedAt   time.Time
	Installer   string
	Category    string
	Flags       uint32
	Enabled     bool
	HasLauncher bool
	Favorite    bool
	Selected    bool
	SizeBytes   int64 // -1 until computed
}

// Partition derives the partition from the flag bits. The updated-system
// bit wins over the system bit.
func (p *Package) Partition() Partition {
	switch {
	case p.Flags&FlagUpdatedSystem != 0:
		return PartitionUpdatedSystem
	case p.Flags&FlagSystem != 0:
		return PartitionSystem
	default:
		return PartitionUser
	}
}

// IsSystem reports whether the package ships with the system image.
func (p *Package) IsSystem() bool {
	return p.Flags&FlagSystem != 0
}

// DisplayName returns the label, falling back to the package name.
func (p *Package) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Name
}

// Clone returns a shallow copy. Records are immutable once published, so
// mutations always go through a clone.
func (p *Package) Clone() *Package {
	c := *p
	return &c
}
