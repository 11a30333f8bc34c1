package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/archives"
	"github.com/blackwell-systems/apkextract/internal/config"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/export"
	"github.com/blackwell-systems/apkextract/internal/inventory"
	"github.com/blackwell-systems/apkextract/internal/logger"
	"github.com/blackwell-systems/apkextract/internal/naming"
	"github.com/blackwell-systems/apkextract/internal/prefs"
	"github.com/blackwell-systems/apkextract/internal/progress"
	"github.com/blackwell-systems/apkextract/internal/store"
)

// Document authorities served by the CLI.
const (
	documentsAuthority = "apkextract.documents"
	documentsVolume    = "primary"
	shareAuthority     = "apkextract.share"
	shareVolume        = "share"
)

// session bundles what a command needs. Nothing here talks to the device
// until a method that needs it is called.
type session struct {
	cfg     *config.Config
	log     zerolog.Logger
	db      *store.Store
	prefs   *prefs.Repository
	aliases *config.AliasConfig

	storage *docs.FSProvider // local filesystem, absolute paths
	staging *docs.FSProvider // share staging directory
	tracker *progress.Tracker

	client   *android.Client
	inv      *inventory.Handle
	exporter *export.Engine
	catalog  *archives.Catalog
}

func openSession() (*session, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Get()

	path, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.CreateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}

	aliases := &config.AliasConfig{}
	if dir, err := config.Dir(); err == nil {
		if aliases, err = config.LoadAliases(dir); err != nil {
			log.Warn().Err(err).Msg("failed to read aliases")
		}
	}

	if err := os.MkdirAll(cfg.Share.Dir, 0755); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create share directory: %w", err)
	}

	s := &session{
		cfg:     cfg,
		log:     log,
		db:      db,
		prefs:   prefs.New(db, log),
		aliases: aliases,
		storage: docs.NewFSProvider(afero.NewOsFs(), documentsAuthority, documentsVolume),
		staging: docs.NewFSProvider(afero.NewBasePathFs(afero.NewOsFs(), cfg.Share.Dir), shareAuthority, shareVolume),
		tracker: progress.New(),
		client:  android.NewClient(android.NewExecRunner(cfg.ADB.Path), cfg.ADB.Serial),
	}

	s.inv = inventory.NewHandle(inventory.Options{
		Registry:  s.client,
		Favorites: s.prefs,
		Logger:    log,
		Workers:   cfg.Inventory.Workers,
	})
	s.exporter = export.New(export.Options{
		Opener:    s.client,
		Documents: s.storage,
		Staging:   s.staging,
		Tracker:   s.tracker,
		History:   db,
		Workers:   cfg.Share.Workers,
		Logger:    log,
	})
	s.catalog, err = archives.NewCatalog(archives.Options{
		Documents: s.storage,
		Metadata:  db,
		Logger:    log,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *session) Close() error {
	s.prefs.Close()
	return s.db.Close()
}

// inventory builds the application inventory on first use.
func (s *session) inventory(ctx context.Context) (*inventory.Inventory, error) {
	inv, err := s.inv.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read installed applications: %w", err)
	}
	return inv, nil
}

// localPath expands a leading ~ and makes p absolute.
func localPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// treeURI turns a directory argument, either a content URI or a local
// path, into a tree URI.
func (s *session) treeURI(arg string) (docs.URI, error) {
	if strings.HasPrefix(arg, docs.Scheme+"://") {
		return docs.ParseURI(arg)
	}
	abs, err := localPath(arg)
	if err != nil {
		return "", err
	}
	return s.storage.TreeFor(abs), nil
}

// documentURI turns a file argument into a document URI.
func (s *session) documentURI(arg string) (docs.URI, error) {
	if strings.HasPrefix(arg, docs.Scheme+"://") {
		return docs.ParseURI(arg)
	}
	abs, err := localPath(arg)
	if err != nil {
		return "", err
	}
	return s.storage.DocumentFor(s.storage.RootTree(), abs)
}

// saveDir returns the export destination: the flag value when given,
// otherwise the configured preference.
func (s *session) saveDir(flag string) (docs.URI, error) {
	if flag != "" {
		return s.treeURI(flag)
	}
	dir, ok := s.prefs.SaveDir()
	if !ok {
		return "", errors.New("no save directory configured (pass --dir or run 'apkextract prefs set dir <path>')")
	}
	return docs.ParseURI(dir)
}

// localDir returns the filesystem path behind a tree URI served by the
// local provider.
func (s *session) localDir(tree docs.URI) (string, bool) {
	if tree.Authority() != documentsAuthority {
		return "", false
	}
	id, err := docs.TreeDocumentID(tree)
	if err != nil {
		return "", false
	}
	_, rel, ok := strings.Cut(id, ":")
	if !ok {
		return "", false
	}
	return "/" + rel, true
}

// template returns the file name template, from entries when given.
func (s *session) template(entries []string) (naming.Template, error) {
	if len(entries) == 0 {
		return s.prefs.SaveNameTemplate(), nil
	}
	return naming.Parse(entries)
}

// lookup finds the named applications, resolving aliases. Every name must
// be installed.
func lookup(snap *inventory.Snapshot, aliases *config.AliasConfig, names []string) ([]*android.Package, error) {
	var found []*android.Package
	var missing []string
	for _, name := range aliases.ResolveAll(names) {
		pkg, _, ok := snap.Find(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		found = append(found, pkg)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("not installed: %s", strings.Join(missing, ", "))
	}
	return found, nil
}

// pruneHistory forgets exported documents that no longer exist and returns
// how many were removed.
func (s *session) pruneHistory(ctx context.Context) (int, error) {
	runs, err := s.db.ListExportRuns(0)
	if err != nil {
		return 0, err
	}

	var records []*archives.Record
	for _, run := range runs {
		exported, err := s.db.ListExportedDocuments(run.ID)
		if err != nil {
			return 0, err
		}
		for _, d := range exported {
			records = append(records, &archives.Record{URI: docs.URI(d.URI), FileName: d.FileName})
		}
	}

	_, removed := s.catalog.Prune(ctx, records)
	return len(removed), nil
}
