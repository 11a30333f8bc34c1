package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/export"
	"github.com/blackwell-systems/apkextract/internal/inventory"
	"github.com/blackwell-systems/apkextract/internal/output"
	"github.com/blackwell-systems/apkextract/internal/prefs"
	"github.com/blackwell-systems/apkextract/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Follow package changes on the device",
		Long: `Poll the device package list and keep the inventory in step with
installs, updates and removals.

When the auto_backup_service preference is on, every install or update of an
app in auto_backup_list is saved to the save directory. Export history entries
for archives deleted from a local save directory are forgotten as the files
disappear.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process
  • Stop: Stop a running daemon

The poll interval is watch.interval in the config file (default 5s).`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  apkextract watch

  # Run as background daemon
  apkextract watch --daemon

  # Stop running daemon
  apkextract watch --stop

  # Use custom PID and log files
  apkextract watch --daemon --pid-file /tmp/watch.pid --log-file /tmp/watch.log`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.apkextract/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.apkextract/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")

	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}

	if watchLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = defaultLog
	}

	if watchDaemon && watchStop {
		return fmt.Errorf("--daemon and --stop are mutually exclusive")
	}

	switch {
	case watchStop:
		return stopWatchDaemon()
	case watchDaemon:
		return startWatchDaemon(cmd)
	case watchDaemonChild:
		return watcher.RunDaemon(watchPIDFile, runWatchLoop)
	}
	return runWatchForeground(cmd)
}

func stopWatchDaemon() error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon...")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")

	return nil
}

// daemonArgs carries the global flags given to this process over to the
// daemon child.
func daemonArgs(cmd *cobra.Command) []string {
	args := []string{"--pid-file", watchPIDFile}
	for _, name := range []string{"db", "serial", "config", "log-level"} {
		f := cmd.Root().PersistentFlags().Lookup(name)
		if f != nil && f.Changed {
			args = append(args, "--"+name, f.Value.String())
		}
	}
	return args
}

func startWatchDaemon(cmd *cobra.Command) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		fmt.Printf("Daemon already running (PID file: %s). Nothing to do.\n", watchPIDFile)
		return nil
	}

	spinner := output.NewSpinner("Starting daemon...")
	spinner.Start()
	if err := watcher.StartDaemon(watchPIDFile, watchLogFile, daemonArgs(cmd)...); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Printf("\nPackage watcher daemon started\n")
	fmt.Printf("  PID file: %s\n", watchPIDFile)
	fmt.Printf("  Log file: %s\n", watchLogFile)
	fmt.Printf("\nTo stop: apkextract watch --stop\n")

	return nil
}

func runWatchForeground(cmd *cobra.Command) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fmt.Println("Watching for package changes (press Ctrl+C to stop)...")
	fmt.Println()

	err := runWatchLoop(ctx)
	fmt.Println()
	fmt.Println("✓ Watcher stopped")
	return err
}

// runWatchLoop forwards package events until ctx is done.
func runWatchLoop(ctx context.Context) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	inv, err := s.inventory(ctx)
	if err != nil {
		return err
	}

	w, err := watcher.New(s.client, s.cfg.Watch.Interval, s.log)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if dirs := s.watchSaveDir(); dirs != nil {
		pruneCtx, stopPrune := context.WithCancel(ctx)
		done := make(chan struct{})
		dirs.Start()
		go func() {
			defer close(done)
			s.pruneOnChange(pruneCtx, dirs)
		}()
		defer func() {
			stopPrune()
			<-done
			dirs.Stop()
		}()
	}

	s.log.Info().
		Int("apps", inv.Snapshot().Len()).
		Dur("interval", s.cfg.Watch.Interval).
		Msg("watching package changes")

	target := &backupTarget{
		inv:      inv,
		exporter: s.exporter,
		prefs:    s.prefs,
		log:      s.log,
	}
	watcher.Forward(ctx, w.Events(), target, s.log)
	return nil
}

// watchSaveDir watches the save directory when it is on the local
// filesystem. It returns nil otherwise.
func (s *session) watchSaveDir() *watcher.DirWatcher {
	dir, ok := s.prefs.SaveDir()
	if !ok {
		return nil
	}
	path, ok := s.localDir(docs.URI(dir))
	if !ok {
		return nil
	}
	dw, err := watcher.NewDirWatcher(path, s.log)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", path).Msg("save directory not watched")
		return nil
	}
	return dw
}

func (s *session) pruneOnChange(ctx context.Context, dw *watcher.DirWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-dw.Changes():
			n, err := s.pruneHistory(ctx)
			if err != nil {
				s.log.Warn().Err(err).Msg("failed to prune export history")
				continue
			}
			if n > 0 {
				s.log.Info().Int("removed", n).Msg("forgot deleted archives")
			}
		}
	}
}

// backupTarget applies package events to the inventory and saves apps on
// the auto-backup list after they are installed or updated.
type backupTarget struct {
	inv      *inventory.Inventory
	exporter *export.Engine
	prefs    *prefs.Repository
	log      zerolog.Logger
}

func (t *backupTarget) OnPackageInstalled(ctx context.Context, name string) error {
	if err := t.inv.OnPackageInstalled(ctx, name); err != nil {
		return err
	}
	if !t.prefs.AutoBackupService() || !slices.Contains(t.prefs.AutoBackupList(), name) {
		return nil
	}

	dir, ok := t.prefs.SaveDir()
	if !ok {
		t.log.Warn().Str("package", name).Msg("auto backup skipped: no save directory")
		return nil
	}
	pkg, _, ok := t.inv.Snapshot().Find(name)
	if !ok {
		return nil
	}

	res := t.exporter.ExportMany(ctx, []*android.Package{pkg}, t.prefs.SaveNameTemplate(), docs.URI(dir))
	if !res.OK() {
		return fmt.Errorf("auto backup failed: %w", res.Err)
	}
	t.log.Info().Str("package", name).Str("version", pkg.VersionName).Msg("saved auto backup")
	return nil
}

func (t *backupTarget) OnPackageUninstalled(ctx context.Context, name string) error {
	return t.inv.OnPackageUninstalled(ctx, name)
}
