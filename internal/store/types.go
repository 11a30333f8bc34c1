package store

import "time"

// Run kinds recorded in export_runs.
const (
	RunKindExport = "export"
	RunKindShare  = "share"
)

// ExportRun records one batch export or share operation.
type ExportRun struct {
	ID         int64
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Total      int
	Error      string
}

// ExportedDocument records an archive written to a document.
type ExportedDocument struct {
	URI         string
	Key         string // provider authority and document id, see docs.Key
	RunID       int64
	PackageName string
	Label       string
	VersionCode int64
	VersionName string
	FileName    string
	SizeBytes   int64
	Checksum    string // xxhash64 of the content, hex
	CreatedAt   time.Time
}
