package cmd

import (
	"fmt"

	"mrp-backup/internal/backup"
	"mrp-backup/internal/display"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Replace the live data with the contents of a backup",
	Long: `Restore the live inventory/MRP data from a backup.

The backup is verified first. A PRE_RESTORE snapshot of the current data is
taken before anything is changed, and all tables are replaced in a single
transaction. If the restore fails, the error names the PRE_RESTORE file to
recover from.

Examples:
  mrp-backup restore mrp-backup-20260310-020000.000-scheduled.bak
  mrp-backup restore mrp-backup-20260310-020000.000-scheduled.bak --auto-approve`,
	Args: cobra.ExactArgs(1),
	RunE: withEngine(runRestore),
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string, e *engine) error {
	fileName := args[0]
	if err := backup.ValidateFileName(fileName); err != nil {
		return err
	}

	if !e.autoApprove {
		ok, err := e.printer.Confirm(confirmRestore(fileName))
		if err != nil {
			return err
		}
		if !ok {
			e.printer.Info("Restore cancelled")
			return nil
		}
	}

	result, err := e.manager.Restore(cmd.Context(), fileName)
	if err != nil {
		e.printer.Error(err.Error())
		if pre := backup.RestoreRecoveryPoint(err); pre != "" {
			e.printer.Warning(fmt.Sprintf("The state before the restore was saved as %s", pre))
		}
		return err
	}
	return renderRestore(e.printer, result)
}

func confirmRestore(fileName string) display.Confirmation {
	return display.Confirmation{
		Title: "Restore " + fileName,
		Details: []string{
			"All live inventory/MRP data will be replaced by the backup contents",
			"A PRE_RESTORE backup of the current data is taken first",
		},
		Prompt: "Restore now?",
	}
}

func confirmDelete(fileName string) display.Confirmation {
	return display.Confirmation{
		Title:   "Delete " + fileName,
		Details: []string{"The backup file and its checksum sidecar are removed permanently"},
		Prompt:  "Delete?",
	}
}
