package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/output"
	"github.com/blackwell-systems/apkextract/internal/prefs"
)

var (
	archivesDir  string
	archivesSort string

	archivesCmd = &cobra.Command{
		Use:   "archives",
		Short: "Inspect saved archives",
		Long: `Inspect the archives in the save directory.

Application details come from the export history; archives copied into the
directory by other means are listed without them.`,
	}

	archivesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List archives in the save directory",
		Example: `  # Largest first (the default order)
  apkextract archives list

  # Most recently modified first
  apkextract archives list --sort last_modified`,
		Args: cobra.NoArgs,
		RunE: runArchivesList,
	}

	archivesPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Forget exported archives that no longer exist",
		Long: `Remove export history entries whose document has been deleted or
moved. The archives themselves are not touched.`,
		Args: cobra.NoArgs,
		RunE: runArchivesPrune,
	}
)

func init() {
	archivesListCmd.Flags().StringVar(&archivesDir, "dir", "", "directory or tree URI (default: saved preference)")
	archivesListCmd.Flags().StringVar(&archivesSort, "sort", "", "file_size_desc, file_size_asc, file_name or last_modified (default: saved preference)")

	archivesCmd.AddCommand(archivesListCmd)
	archivesCmd.AddCommand(archivesPruneCmd)
}

func validAPKSort(order string) bool {
	switch order {
	case prefs.APKSortSizeDesc, prefs.APKSortSizeAsc, prefs.APKSortName, prefs.APKSortLastModified:
		return true
	}
	return false
}

func runArchivesList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	order := archivesSort
	if order == "" {
		order = s.prefs.APKSort()
	} else if !validAPKSort(order) {
		return fmt.Errorf("invalid --sort %q", order)
	}

	tree, err := s.saveDir(archivesDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	records, err := s.catalog.List(ctx, tree, order)
	if err != nil {
		return err
	}
	records = s.catalog.ResolveAll(ctx, records)

	fmt.Print(output.RenderArchiveTable(records))
	return nil
}

func runArchivesPrune(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.pruneHistory(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to prune export history: %w", err)
	}
	fmt.Printf("✓ Forgot %d missing archive(s)\n", removed)
	return nil
}
