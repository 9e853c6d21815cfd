package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mrp-backup/internal/backup"

	"github.com/spf13/cobra"
)

var (
	backupKind        string
	backupDescription string
	downloadOutput    string
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database backups",
	Long: `Create, list, verify, download and delete backups.

Examples:
  # Create a manual backup with a description
  mrp-backup backup create --description "before BOM import"

  # List all backups as JSON
  mrp-backup backup list --format json

  # Check a backup's checksum and payload
  mrp-backup backup verify mrp-backup-20260310-020000.000-scheduled.bak

  # Copy a backup out of the backup directory
  mrp-backup backup download mrp-backup-20260310-020000.000-scheduled.bak --output /mnt/usb/`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new backup",
	Long: `Take a consistent snapshot of every registered table.

Retention, the disk space check and the optional cloud upload run afterwards.
Their failures are reported but do not fail the backup.`,
	Args: cobra.NoArgs,
	RunE: withEngine(runBackupCreate),
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing backups, newest first",
	Args:  cobra.NoArgs,
	RunE:  withEngine(runBackupList),
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify backup integrity",
	Long: `Recompute the checksum of a backup, compare it with the .sha256 sidecar
and check that the payload decrypts and decodes.`,
	Args: cobra.ExactArgs(1),
	RunE: withEngine(runBackupVerify),
}

var backupDownloadCmd = &cobra.Command{
	Use:   "download <file>",
	Short: "Copy a backup to another location",
	Args:  cobra.ExactArgs(1),
	RunE:  withEngine(runBackupDownload),
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <file>",
	Short: "Delete a backup and its checksum sidecar",
	Long: `Delete a backup from the backup directory.

The operation requires confirmation unless --auto-approve is used.`,
	Args: cobra.ExactArgs(1),
	RunE: withEngine(runBackupDelete),
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupVerifyCmd, backupDownloadCmd, backupDeleteCmd)

	backupCreateCmd.Flags().StringVar(&backupKind, "kind", string(backup.KindManual), "backup kind (MANUAL, STARTUP, SCHEDULED, PRE_RESTORE)")
	backupCreateCmd.Flags().StringVar(&backupDescription, "description", "", "backup description")

	backupDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "destination file or directory")
	backupDownloadCmd.MarkFlagRequired("output")
}

func runBackupCreate(cmd *cobra.Command, args []string, e *engine) error {
	kind, err := backup.ParseKind(backupKind)
	if err != nil {
		return err
	}

	result, err := e.manager.CreateBackup(cmd.Context(), kind, backup.SanitizeDescription(backupDescription))
	if err != nil {
		e.printer.Error(err.Error())
		return err
	}
	return renderSnapshotResult(e.printer, result)
}

func runBackupList(cmd *cobra.Command, args []string, e *engine) error {
	snapshots, err := e.manager.ListBackups(cmd.Context())
	if err != nil {
		return err
	}
	return renderSnapshots(e.printer, snapshots)
}

func runBackupVerify(cmd *cobra.Command, args []string, e *engine) error {
	result, err := e.manager.VerifyBackup(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := renderVerification(e.printer, result); err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("backup %s failed verification", args[0])
	}
	return nil
}

func runBackupDownload(cmd *cobra.Command, args []string, e *engine) error {
	fileName := args[0]
	if err := backup.ValidateFileName(fileName); err != nil {
		return err
	}

	src, err := e.manager.OpenBackup(fileName)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := copyToPath(src, downloadOutput, fileName)
	if err != nil {
		return err
	}
	e.printer.Success(fmt.Sprintf("Backup written to %s", dest))
	return nil
}

// copyToPath writes r to output, or to output/fileName when output is a
// directory. The file appears only once it is complete.
func copyToPath(r io.Reader, output, fileName string) (string, error) {
	dest := output
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		dest = filepath.Join(output, fileName)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to copy backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move backup into place: %w", err)
	}
	return dest, nil
}

func runBackupDelete(cmd *cobra.Command, args []string, e *engine) error {
	fileName := args[0]
	if err := backup.ValidateFileName(fileName); err != nil {
		return err
	}

	if !e.autoApprove {
		ok, err := e.printer.Confirm(confirmDelete(fileName))
		if err != nil {
			return err
		}
		if !ok {
			e.printer.Info("Delete cancelled")
			return nil
		}
	}

	if err := e.manager.DeleteBackup(cmd.Context(), fileName); err != nil {
		return err
	}
	e.printer.Success("Deleted " + fileName)
	return nil
}
