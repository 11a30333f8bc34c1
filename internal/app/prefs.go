package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/output"
	"github.com/blackwell-systems/apkextract/internal/prefs"
)

var (
	prefsFavoriteRemove bool

	prefsCmd = &cobra.Command{
		Use:   "prefs",
		Short: "Show and change preferences",
		Long: `Show and change the preferences stored in the database.

Preferences drive the default list view (types, filters, sort), the save
directory, the file name template and the watcher's automatic backups.`,
	}

	prefsListCmd = &cobra.Command{
		Use:   "list",
		Short: "Show every preference",
		Args:  cobra.NoArgs,
		RunE:  runPrefsList,
	}

	prefsGetCmd = &cobra.Command{
		Use:   "get <key>",
		Short: "Print one preference",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrefsGet,
	}

	prefsSetCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one preference",
		Long: `Change one preference. Sets are comma separated. An empty filter value
removes the filter. The save directory accepts a local path.`,
		Example: `  apkextract prefs set dir ~/APKs
  apkextract prefs set updated_system_apps true
  apkextract prefs set app_save_name 0:name,1:versionName
  apkextract prefs set filter_installer ""`,
		Args: cobra.ExactArgs(2),
		RunE: runPrefsSet,
	}

	prefsFavoriteCmd = &cobra.Command{
		Use:   "favorite <package...>",
		Short: "Mark or unmark favorite apps",
		Example: `  apkextract prefs favorite com.example.maps
  apkextract prefs favorite --remove com.example.maps`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPrefsFavorite,
	}
)

func init() {
	prefsFavoriteCmd.Flags().BoolVar(&prefsFavoriteRemove, "remove", false, "remove from favorites")

	prefsCmd.AddCommand(prefsListCmd)
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsFavoriteCmd)
}

func runPrefsList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	values := make(map[string]string, len(prefs.Keys))
	for key := range prefs.Keys {
		v, err := s.prefs.Get(key)
		if err != nil {
			return err
		}
		values[key] = v
	}
	fmt.Print(output.RenderPreferenceTable(values, prefs.Keys))
	return nil
}

func runPrefsGet(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := s.prefs.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	key, value := args[0], args[1]
	if key == prefs.KeySaveDir && value != "" {
		tree, err := s.treeURI(value)
		if err != nil {
			return err
		}
		value = tree.String()
	}

	if err := s.prefs.Set(key, value); err != nil {
		return err
	}
	fmt.Printf("✓ %s = %s\n", key, value)
	return nil
}

func runPrefsFavorite(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range s.aliases.ResolveAll(args) {
		if err := s.prefs.EditFavorites(name, !prefsFavoriteRemove); err != nil {
			return fmt.Errorf("failed to update favorites: %w", err)
		}
	}
	if prefsFavoriteRemove {
		fmt.Printf("✓ Removed %d app(s) from favorites\n", len(args))
	} else {
		fmt.Printf("✓ Added %d app(s) to favorites\n", len(args))
	}
	return nil
}
