package app

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/blackwell-systems/apkextract/internal/archives"
	"github.com/blackwell-systems/apkextract/internal/config"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/prefs"
	"github.com/blackwell-systems/apkextract/internal/store"
)

// withTempHome points the home and config directories at a temporary
// directory and drops any loaded configuration.
func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	old := appCfg
	appCfg = nil
	t.Cleanup(func() { appCfg = old })
	return home
}

// captureStdout returns what fn prints to os.Stdout.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		b, _ := io.ReadAll(r)
		done <- b
	}()

	runErr := fn()
	w.Close()
	os.Stdout = orig
	return string(<-done), runErr
}

// runCLI runs the root command with a fresh database under a temporary
// home directory.
func runCLI(t *testing.T, dbFile string, args ...string) (string, error) {
	t.Helper()

	RootCmd.SetErr(bytes.NewBuffer(nil))
	RootCmd.SetArgs(append([]string{"--db", dbFile}, args...))
	t.Cleanup(func() {
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
		dbPath = ""
	})

	return captureStdout(t, Execute)
}

// newTestSession builds a session over a temporary database and an
// in-memory document store. It has no device.
func newTestSession(t *testing.T) (*session, afero.Fs) {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	if err := db.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	fs := afero.NewMemMapFs()
	s := &session{
		log:     zerolog.Nop(),
		db:      db,
		prefs:   prefs.New(db, zerolog.Nop()),
		aliases: &config.AliasConfig{Aliases: map[string]string{}},
		storage: docs.NewFSProvider(fs, documentsAuthority, documentsVolume),
	}
	t.Cleanup(func() { s.Close() })

	s.catalog, err = archives.NewCatalog(archives.Options{Documents: s.storage, Metadata: db, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return s, fs
}
