package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/output"
)

var (
	shareAll      bool
	shareTemplate []string

	shareCmd = &cobra.Command{
		Use:   "share [package...]",
		Short: "Stage application archives for sharing",
		Long: `Copy the archives of the named applications into the share staging
directory (share.dir in the config, default ~/.apkextract/share) and print
their document URIs.

Copies run concurrently. An app that cannot be copied is skipped and
logged; the others are still staged.`,
		Example: `  # Stage two apps
  apkextract share com.example.maps com.example.mail

  # Stage every app in the current list view
  apkextract share --all`,
		RunE: runShare,
	}
)

func init() {
	shareCmd.Flags().BoolVar(&shareAll, "all", false, "share every app in the current list view")
	shareCmd.Flags().StringSliceVar(&shareTemplate, "template", nil, "file name template entries, e.g. 0:name,1:versionName")
}

func runShare(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	tmpl, err := s.template(shareTemplate)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	apps, err := chooseApps(ctx, s, args, shareAll)
	if err != nil {
		return err
	}

	inv, err := s.inventory(ctx)
	if err != nil {
		return err
	}
	names := make([]string, len(apps))
	for i, a := range apps {
		names[i] = a.Name
	}
	inv.SelectAll(names, true)

	stopBar := output.FollowTracker(ctx, s.tracker, os.Stderr)
	task := s.exporter.StartShare(ctx, inv.Snapshot().All(), tmpl)
	res := task.Wait()
	if ctx.Err() != nil {
		task.Cancel()
	}
	stopBar()

	if !res.OK() {
		return fmt.Errorf("share failed: %s", res.Message)
	}
	if len(res.Documents) == 0 {
		return fmt.Errorf("none of the %d selected app(s) could be staged", len(apps))
	}

	for _, u := range res.Documents {
		fmt.Println(u)
	}
	fmt.Printf("\n✓ Staged %d of %d app(s) in %s\n", len(res.Documents), len(apps), s.cfg.Share.Dir)
	return nil
}
