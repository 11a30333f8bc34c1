// Package archives lists the package archives already present in the save
// directory, resolves what application they hold and evicts records whose
// backing document disappeared.
package archives

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/prefs"
	"github.com/blackwell-systems/apkextract/internal/store"
)

// Record is an archive file in the save directory. The application fields
// stay nil until resolved.
type Record struct {
	URI          docs.URI
	FileName     string
	LastModified time.Time
	Size         int64

	Label       *string
	PackageName *string
	VersionCode *int64
	VersionName *string
}

// Resolved reports whether application metadata is known.
func (r *Record) Resolved() bool { return r.PackageName != nil }

// MetadataSource looks up what was written to a document, by docs.Key.
// *store.Store implements it.
type MetadataSource interface {
	GetExportedDocument(key string) (*store.ExportedDocument, error)
	DeleteExportedDocument(key string) error
}

// Options configures a Catalog.
type Options struct {
	Documents docs.Provider
	Metadata  MetadataSource // optional
	CacheSize int
	Logger    zerolog.Logger
}

// Catalog reads archive records from a document tree.
type Catalog struct {
	docs  docs.Provider
	meta  MetadataSource
	cache *lru.Cache[string, *store.ExportedDocument]
	log   zerolog.Logger
}

// NewCatalog creates a Catalog.
func NewCatalog(opts Options) (*Catalog, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	cache, err := lru.New[string, *store.ExportedDocument](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &Catalog{docs: opts.Documents, meta: opts.Metadata, cache: cache, log: opts.Logger}, nil
}

// List returns the archives directly under tree ordered by order, one of
// the prefs.APKSort* values.
func (c *Catalog) List(ctx context.Context, tree docs.URI, order string) ([]*Record, error) {
	items, err := c.docs.List(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	var records []*Record
	for _, m := range items {
		if m.IsDir() {
			continue
		}
		if m.MimeType != docs.MimeAPK && !strings.HasSuffix(strings.ToLower(m.DisplayName), ".apk") {
			continue
		}
		records = append(records, &Record{
			URI:          m.URI,
			FileName:     m.DisplayName,
			LastModified: m.LastModified,
			Size:         m.Size,
		})
	}
	Sort(records, order)
	return records, nil
}

// Sort orders records in place. An unknown order sorts by size, largest
// first.
func Sort(records []*Record, order string) {
	var less func(a, b *Record) bool
	switch order {
	case prefs.APKSortSizeAsc:
		less = func(a, b *Record) bool { return a.Size < b.Size }
	case prefs.APKSortName:
		less = func(a, b *Record) bool { return strings.ToLower(a.FileName) < strings.ToLower(b.FileName) }
	case prefs.APKSortLastModified:
		less = func(a, b *Record) bool { return a.LastModified.After(b.LastModified) }
	default:
		less = func(a, b *Record) bool { return a.Size > b.Size }
	}
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

// Resolve returns a copy of r with the application metadata filled in when
// it is known. Lookups are cached.
func (c *Catalog) Resolve(ctx context.Context, r *Record) *Record {
	out := *r
	if c.meta == nil {
		return &out
	}

	key := docs.Key(r.URI)
	doc, ok := c.cache.Get(key)
	if !ok {
		var err error
		doc, err = c.meta.GetExportedDocument(key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			doc = nil
		case err != nil:
			c.log.Debug().Err(err).Str("uri", r.URI.String()).Msg("archive metadata lookup failed")
			return &out
		}
		c.cache.Add(key, doc)
	}
	if doc == nil {
		return &out
	}

	label, pkg, code, version := doc.Label, doc.PackageName, doc.VersionCode, doc.VersionName
	out.Label = &label
	out.PackageName = &pkg
	out.VersionCode = &code
	out.VersionName = &version
	return &out
}

// ResolveAll resolves every record.
func (c *Catalog) ResolveAll(ctx context.Context, records []*Record) []*Record {
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = c.Resolve(ctx, r)
	}
	return out
}

// Prune splits records into those whose document still exists and those
// that vanished. Vanished records are forgotten.
func (c *Catalog) Prune(ctx context.Context, records []*Record) (kept, removed []*Record) {
	for _, r := range records {
		if docs.Exists(ctx, c.docs, r.URI) {
			kept = append(kept, r)
			continue
		}
		removed = append(removed, r)
		key := docs.Key(r.URI)
		c.cache.Remove(key)
		if c.meta != nil {
			if err := c.meta.DeleteExportedDocument(key); err != nil {
				c.log.Warn().Err(err).Str("uri", r.URI.String()).Msg("failed to forget archive")
			}
		}
	}
	return kept, removed
}

// PackageName returns the package recorded for the document at u, or ""
// when nothing is known about it.
func (c *Catalog) PackageName(ctx context.Context, u docs.URI) string {
	r := c.Resolve(ctx, &Record{URI: u})
	if r.PackageName == nil {
		return ""
	}
	return *r.PackageName
}
