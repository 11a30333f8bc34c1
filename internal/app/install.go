package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/android"
	"github.com/blackwell-systems/apkextract/internal/docs"
	"github.com/blackwell-systems/apkextract/internal/install"
	"github.com/blackwell-systems/apkextract/internal/output"
)

var installCmd = &cobra.Command{
	Use:   "install <archive>",
	Short: "Install an archive onto the device",
	Long: `Stream an archive into a staged installer session on the device and
commit it. The archive may be a local path or a document URI.

The command waits for the device to report the outcome. Interrupting it
abandons the session.`,
	Example: `  # Reinstall a saved archive
  apkextract install ~/APKs/Maps_com.example.maps_1120.apk`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

// installName names the package being installed: the package recorded when
// the archive was exported, else the file name without its extension.
func (s *session) installName(u docs.URI) string {
	ctx := context.Background()
	if name := s.catalog.PackageName(ctx, u); name != "" {
		return name
	}
	m, err := s.storage.Query(ctx, u)
	if err != nil {
		return u.String()
	}
	return strings.TrimSuffix(m.DisplayName, ".apk")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	u, err := s.documentURI(args[0])
	if err != nil {
		return err
	}

	installer := android.NewInstaller(s.client)
	defer installer.Close()

	engine := install.New(install.Options{
		Installer:   installer,
		Documents:   s.storage,
		Tracker:     s.tracker,
		ResolveName: s.installName,
		Logger:      s.log,
	})

	stopBar := output.FollowTracker(ctx, s.tracker, os.Stderr)
	defer stopBar()

	sess, err := engine.Install(ctx, u)
	if err != nil {
		return err
	}

	res, err := sess.Wait(ctx)
	if err != nil {
		sess.Cancel(context.Background())
		return fmt.Errorf("install of %s interrupted: %w", sess.PackageName(), err)
	}
	stopBar()

	if !res.Success {
		return fmt.Errorf("%w: %s", install.ErrInstallFailure, res.PackageName)
	}

	// Keep the inventory in step, then report what the device now has.
	inv, err := s.inventory(ctx)
	if err == nil {
		err = inv.OnPackageInstalled(ctx, res.PackageName)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("package", res.PackageName).Msg("installed package not found")
		fmt.Printf("✓ Installed %s\n", res.PackageName)
		return nil
	}
	if pkg, _, ok := inv.Snapshot().Find(res.PackageName); ok {
		fmt.Printf("✓ Installed %s %s (%s)\n", pkg.DisplayName(), pkg.VersionName, pkg.Name)
		return nil
	}
	fmt.Printf("✓ Installed %s\n", res.PackageName)
	return nil
}
