package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/apkextract/internal/output"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent export and share runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.db.ListExportRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read export history: %w", err)
	}
	fmt.Print(output.RenderExportRunTable(runs))
	return nil
}
