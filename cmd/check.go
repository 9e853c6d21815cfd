package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that backups can be taken with the current setup",
	Long: `Validate the backup engine configuration, make sure the backup directory
exists and is writable, and check that the encryption key and the selected
cloud provider are usable when the settings enable them.

The command exits non-zero when backups cannot be taken.`,
	Args: cobra.NoArgs,
	RunE: withEngine(func(cmd *cobra.Command, args []string, e *engine) error {
		result, err := e.manager.Preflight(cmd.Context())
		if err != nil {
			return err
		}
		if err := renderPreflight(e.printer, e.server, result); err != nil {
			return err
		}
		if !result.Ready {
			return errors.New("backup engine is not ready")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
