package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/output"
	"github.com/blackwell-systems/apkextract/internal/selection"
)

var (
	exportDir      string
	exportAll      bool
	exportTemplate []string

	exportCmd = &cobra.Command{
		Use:   "export [package...]",
		Short: "Save application archives to the save directory",
		Long: `Copy the archive of each named application into the save directory.

Files are named by the save-name template (see 'apkextract prefs get
app_save_name'); a name that already exists gets a " (n)" suffix. Apps are
saved in order and the export stops at the first failure. Archives saved
before the failure are kept.

Package arguments may be aliases from ~/.config/apkextract/aliases.`,
		Example: `  # Save one app
  apkextract export com.example.maps

  # Save every app in the current list view to another directory
  apkextract export --all --dir /mnt/backup/apks

  # Name files by package and version code
  apkextract export com.example.maps --template 0:packageName,1:versionCode`,
		RunE: runExport,
	}
)

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "destination directory or tree URI (default: saved preference)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every app in the current list view")
	exportCmd.Flags().StringSliceVar(&exportTemplate, "template", nil, "file name template entries, e.g. 0:name,1:versionName")
}

// signalContext is cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// chooseApps returns the named apps, or the current list view with all.
func chooseApps(ctx context.Context, s *session, names []string, all bool) ([]*android.Package, error) {
	if all == (len(names) > 0) {
		return nil, errors.New("name at least one package, or pass --all")
	}

	inv, err := s.inventory(ctx)
	if err != nil {
		return nil, err
	}
	if all {
		return selection.Compute(inv.Snapshot(), selection.OptionsFrom(s.prefs), ""), nil
	}
	return lookup(inv.Snapshot(), s.aliases, names)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	dest, err := s.saveDir(exportDir)
	if err != nil {
		return err
	}
	tmpl, err := s.template(exportTemplate)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	apps, err := chooseApps(ctx, s, args, exportAll)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		fmt.Println("Nothing to export.")
		return nil
	}

	stopBar := output.FollowTracker(ctx, s.tracker, os.Stderr)
	task := s.exporter.StartExport(ctx, apps, tmpl, dest)
	res := task.Wait()
	if ctx.Err() != nil {
		task.Cancel()
	}
	stopBar()

	if !res.OK() {
		return errors.New(res.Message)
	}

	fmt.Printf("✓ Saved %d app(s) to %s\n", len(res.Documents), dest)
	return nil
}
