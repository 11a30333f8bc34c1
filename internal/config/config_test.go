package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/apkextract", dir)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	v, err := New()
	require.NoError(t, err)
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "adb", cfg.ADB.Path)
	assert.Equal(t, 4, cfg.Share.Workers)
	assert.Equal(t, 8, cfg.Inventory.Workers)
	assert.Equal(t, 5*time.Second, cfg.Watch.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.Debounce)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "apkextract.db", filepath.Base(cfg.Database.Path))
}

func TestLoad_FileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
adb:
  serial: emulator-5554
share:
  workers: 2
watch:
  interval: 30s
`), 0644))
	t.Setenv("APKEXTRACT_LOGGING_LEVEL", "debug")

	v, err := New()
	require.NoError(t, err)
	cfg, err := Load(v, file)
	require.NoError(t, err)

	assert.Equal(t, "emulator-5554", cfg.ADB.Serial)
	assert.Equal(t, 2, cfg.Share.Workers)
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	_, err = Load(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
