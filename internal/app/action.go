package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/actions"
	"github.com/blackwell-systems/apkextract/internal/docs"
)

var (
	actionSwipe string

	actionCmd = &cobra.Command{
		Use:   "action [action] <package>",
		Short: "Run an app action (save, share, open, settings, uninstall)",
		Long: `Run one of the per-app actions.

Actions:
  save_apk       save the archive to the save directory
  share_apk      stage the archive for sharing
  open_settings  open the app's settings screen on the device
  open_app       launch the app (needs a launcher entry)
  uninstall_app  uninstall (user apps and updated system apps)

With --swipe the action is the one configured for that swipe direction.
Without an action, the actions available for the app are listed.`,
		Example: `  # What can be done with an app?
  apkextract action com.example.maps

  # Launch it
  apkextract action open_app com.example.maps

  # Run the right-swipe action
  apkextract action --swipe right com.example.maps`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runAction,
	}
)

func init() {
	actionCmd.Flags().StringVar(&actionSwipe, "swipe", "", "use the action configured for a swipe: left or right")
}

// chooseAction resolves the action from the arguments or the swipe
// preference. ok is false when only a package was named.
func chooseAction(s *session, args []string) (a actions.Action, pkg string, ok bool, err error) {
	pkg = args[len(args)-1]

	switch {
	case actionSwipe != "" && len(args) == 2:
		return "", "", false, errors.New("pass an action or --swipe, not both")
	case actionSwipe != "":
		var pref string
		switch strings.ToLower(actionSwipe) {
		case "left":
			pref = s.prefs.SwipeLeft()
		case "right":
			pref = s.prefs.SwipeRight()
		default:
			return "", "", false, fmt.Errorf("invalid --swipe %q (valid: left, right)", actionSwipe)
		}
		a, err = actions.FromPreference(pref)
		return a, pkg, err == nil, err
	case len(args) == 2:
		a, err = actions.FromPreference(args[0])
		return a, pkg, err == nil, err
	}
	return "", pkg, false, nil
}

func runAction(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	a, name, ok, err := chooseAction(s, args)
	if err != nil {
		return err
	}

	inv, err := s.inventory(ctx)
	if err != nil {
		return err
	}
	found, err := lookup(inv.Snapshot(), s.aliases, []string{name})
	if err != nil {
		return err
	}
	pkg := found[0]

	d := actions.Standard(s.exporter, s.client)
	if !ok {
		fmt.Printf("Actions for %s:\n", pkg.DisplayName())
		for _, av := range d.Available(pkg) {
			fmt.Printf("  %s\n", av)
		}
		return nil
	}

	params := actions.Params{
		Template: s.prefs.SaveNameTemplate(),
		Notify:   func(msg string) { fmt.Println("✓ " + msg) },
	}
	if dir, ok := s.prefs.SaveDir(); ok {
		params.SaveDir = docs.URI(dir)
	}

	if err := d.Dispatch(ctx, a, pkg, params); err != nil {
		return err
	}
	if a == actions.Uninstall {
		if err := inv.OnPackageUninstalled(ctx, pkg.Name); err != nil {
			s.log.Debug().Err(err).Str("package", pkg.Name).Msg("inventory not updated after uninstall")
		}
	}
	return nil
}
