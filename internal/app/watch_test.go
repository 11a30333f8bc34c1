package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/export"
	"github.com/blackwell-systems/apkextract/internal/inventory"
	"github.com/blackwell-systems/apkextract/internal/prefs"
)

func TestWatchCommand(t *testing.T) {
	if watchCmd.Use != "watch" {
		t.Errorf("expected Use to be 'watch', got '%s'", watchCmd.Use)
	}

	if watchCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if watchCmd.Long == "" {
		t.Error("expected Long description to be set")
	}

	if watchCmd.Example == "" {
		t.Error("expected Example to be set")
	}

	if watchCmd.RunE == nil {
		t.Error("expected RunE to be set")
	}
}

func TestWatchCommandFlags(t *testing.T) {
	tests := []struct {
		flagName     string
		shouldHidden bool
	}{
		{flagName: "daemon"},
		{flagName: "daemon-child", shouldHidden: true},
		{flagName: "pid-file"},
		{flagName: "log-file"},
		{flagName: "stop"},
	}

	for _, tt := range tests {
		t.Run(tt.flagName, func(t *testing.T) {
			flag := watchCmd.Flags().Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("expected flag '%s' to be registered", tt.flagName)
			}

			if !tt.shouldHidden && flag.Usage == "" {
				t.Errorf("expected flag '%s' to have usage text", tt.flagName)
			}

			if flag.Hidden != tt.shouldHidden {
				t.Errorf("expected flag '%s' hidden to be %v, got %v", tt.flagName, tt.shouldHidden, flag.Hidden)
			}
		})
	}
}

func TestWatchCommandFlagDefaults(t *testing.T) {
	for _, name := range []string{"daemon", "stop"} {
		if f := watchCmd.Flags().Lookup(name); f != nil && f.DefValue != "false" {
			t.Errorf("expected %s flag default to be 'false', got '%s'", name, f.DefValue)
		}
	}
	for _, name := range []string{"pid-file", "log-file"} {
		if f := watchCmd.Flags().Lookup(name); f != nil && f.DefValue != "" {
			t.Errorf("expected %s flag default to be empty, got '%s'", name, f.DefValue)
		}
	}
}

func TestWatchCommandLongDescription(t *testing.T) {
	longDesc := strings.ToLower(watchCmd.Long)

	for _, keyword := range []string{"auto_backup_service", "auto_backup_list", "foreground", "daemon", "stop"} {
		if !strings.Contains(longDesc, keyword) {
			t.Errorf("expected long description to mention '%s'", keyword)
		}
	}
}

func TestStartWatchDaemon_AlreadyRunningIsIdempotent(t *testing.T) {
	// The test process itself is alive, so its PID reads as a running daemon.
	tmpDir := t.TempDir()
	pidFile := fmt.Sprintf("%s/watch.pid", tmpDir)
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	origPIDFile := watchPIDFile
	watchPIDFile = pidFile
	defer func() { watchPIDFile = origPIDFile }()

	out, err := captureStdout(t, func() error { return startWatchDaemon(watchCmd) })
	if err != nil {
		t.Errorf("expected nil when daemon already running, got: %v", err)
	}
	if !strings.Contains(out, "already running") {
		t.Errorf("expected 'already running' message, got: %q", out)
	}
}

func TestStopWatchDaemon_NotRunning(t *testing.T) {
	origPIDFile := watchPIDFile
	watchPIDFile = fmt.Sprintf("%s/missing.pid", t.TempDir())
	defer func() { watchPIDFile = origPIDFile }()

	out, err := captureStdout(t, stopWatchDaemon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Daemon is not running\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestWatchDaemonStopConflict(t *testing.T) {
	origDaemon, origStop := watchDaemon, watchStop
	origPIDFile, origLogFile := watchPIDFile, watchLogFile
	watchDaemon, watchStop = true, true
	defer func() {
		watchDaemon, watchStop = origDaemon, origStop
		watchPIDFile, watchLogFile = origPIDFile, origLogFile
	}()

	tmpDir := t.TempDir()
	watchPIDFile = fmt.Sprintf("%s/nonexistent.pid", tmpDir)
	watchLogFile = fmt.Sprintf("%s/watch.log", tmpDir)

	err := runWatch(watchCmd, nil)
	if err == nil {
		t.Fatal("expected an error when --daemon and --stop are both set")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("expected error to contain 'mutually exclusive', got: %q", err.Error())
	}
}

func TestDaemonArgs(t *testing.T) {
	origPIDFile := watchPIDFile
	watchPIDFile = "/tmp/w.pid"
	defer func() { watchPIDFile = origPIDFile }()

	flags := RootCmd.PersistentFlags()
	if err := flags.Set("serial", "emulator-5554"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	defer func() {
		flags.Set("serial", "")
		flags.Lookup("serial").Changed = false
	}()

	got := strings.Join(daemonArgs(watchCmd), " ")
	want := "--pid-file /tmp/w.pid --serial emulator-5554"
	if got != want {
		t.Errorf("daemonArgs = %q, want %q", got, want)
	}
}

type fakeRegistry struct {
	pkgs map[string]*android.Package
}

func (f *fakeRegistry) ListInstalled(ctx context.Context) ([]*android.Package, error) {
	var out []*android.Package
	for _, p := range f.pkgs {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRegistry) PackageInfo(ctx context.Context, name string) (*android.Package, error) {
	p, ok := f.pkgs[name]
	if !ok {
		return nil, fmt.Errorf("package %s not found", name)
	}
	return p, nil
}

func (f *fakeRegistry) IsInstalled(ctx context.Context, name string) (bool, error) {
	_, ok := f.pkgs[name]
	return ok, nil
}

func (f *fakeRegistry) ArchiveSize(ctx context.Context, path string) (int64, error) {
	return 4, nil
}

type fakeOpener struct{}

func (fakeOpener) OpenArchive(ctx context.Context, path string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("PK\x03\x04")), nil
}

func newBackupTarget(t *testing.T, reg *fakeRegistry) (*backupTarget, *session) {
	t.Helper()
	s, fs := newTestSession(t)
	if err := fs.MkdirAll("/backups", 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	inv, err := inventory.New(inventory.Options{Registry: reg, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("inventory.New: %v", err)
	}

	exp := export.New(export.Options{
		Opener:    fakeOpener{},
		Documents: s.storage,
		History:   s.db,
		Logger:    zerolog.Nop(),
	})
	return &backupTarget{inv: inv, exporter: exp, prefs: s.prefs, log: zerolog.Nop()}, s
}

func TestBackupTarget_SavesListedApps(t *testing.T) {
	reg := &fakeRegistry{pkgs: map[string]*android.Package{
		"com.example.maps": {Name: "com.example.maps", Label: "Maps", VersionName: "2.0", SourceDir: "/data/app/maps/base.apk"},
		"com.example.mail": {Name: "com.example.mail", Label: "Mail", VersionName: "1.0", SourceDir: "/data/app/mail/base.apk"},
	}}
	target, s := newBackupTarget(t, reg)

	mustSet := func(key, value string) {
		t.Helper()
		if err := s.prefs.Set(key, value); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
	mustSet(prefs.KeyAutoBackupService, "true")
	mustSet(prefs.KeyAutoBackupList, "com.example.maps")
	mustSet(prefs.KeySaveDir, s.storage.TreeFor("/backups").String())

	ctx := context.Background()
	for _, name := range []string{"com.example.maps", "com.example.mail"} {
		if err := target.OnPackageInstalled(ctx, name); err != nil {
			t.Fatalf("OnPackageInstalled(%s): %v", name, err)
		}
	}

	if n := target.inv.Snapshot().Len(); n != 2 {
		t.Errorf("expected 2 apps in inventory, got %d", n)
	}

	listed, err := s.storage.List(ctx, s.storage.TreeFor("/backups"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one backup, got %d", len(listed))
	}
	if !strings.Contains(listed[0].DisplayName, "Maps") {
		t.Errorf("expected backup of Maps, got %s", listed[0].DisplayName)
	}

	runs, err := s.db.ListExportRuns(0)
	if err != nil {
		t.Fatalf("ListExportRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected one export run, got %d", len(runs))
	}
}

func TestBackupTarget_ServiceOff(t *testing.T) {
	reg := &fakeRegistry{pkgs: map[string]*android.Package{
		"com.example.maps": {Name: "com.example.maps", Label: "Maps", SourceDir: "/data/app/maps/base.apk"},
	}}
	target, s := newBackupTarget(t, reg)
	if err := s.prefs.Set(prefs.KeyAutoBackupList, "com.example.maps"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ctx := context.Background()
	if err := target.OnPackageInstalled(ctx, "com.example.maps"); err != nil {
		t.Fatalf("OnPackageInstalled: %v", err)
	}

	listed, err := s.storage.List(ctx, s.storage.TreeFor("/backups"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("expected no backups with the service off, got %d", len(listed))
	}
}

func TestBackupTarget_Uninstall(t *testing.T) {
	reg := &fakeRegistry{pkgs: map[string]*android.Package{
		"com.example.maps": {Name: "com.example.maps", Label: "Maps"},
	}}
	target, _ := newBackupTarget(t, reg)

	ctx := context.Background()
	if err := target.OnPackageInstalled(ctx, "com.example.maps"); err != nil {
		t.Fatalf("OnPackageInstalled: %v", err)
	}

	delete(reg.pkgs, "com.example.maps")
	if err := target.OnPackageUninstalled(ctx, "com.example.maps"); err != nil {
		t.Fatalf("OnPackageUninstalled: %v", err)
	}
	if n := target.inv.Snapshot().Len(); n != 0 {
		t.Errorf("expected empty inventory, got %d", n)
	}
}
