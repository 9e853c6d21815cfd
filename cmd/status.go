package cmd

import (
	"github.com/spf13/cobra"
)

var historyLimit int

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Show backup storage usage",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(cmd *cobra.Command, args []string, e *engine) error {
		usage, err := e.manager.GetDiskUsage(cmd.Context())
		if err != nil {
			return err
		}
		return renderDiskUsage(e.printer, usage, e.manager.Directory())
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent backup attempts",
	Long: `Show the most recent backup attempts recorded in the database, including
failed ones, newest first.`,
	Args: cobra.NoArgs,
	RunE: withEngine(func(cmd *cobra.Command, args []string, e *engine) error {
		entries, err := e.manager.RecentHistory(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		return renderHistory(e.printer, entries)
	}),
}

func init() {
	rootCmd.AddCommand(diskCmd, historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries to show")
}
