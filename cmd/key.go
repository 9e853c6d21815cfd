package cmd

import (
	"fmt"
	"os"

	"mrp-backup/internal/backup"

	"github.com/spf13/cobra"
)

var (
	keyOutput string
	keyForce  bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the backup encryption key",
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new 256-bit encryption key file",
	Long: `Generate a random AES-256 master key and write it hex encoded to a file
readable only by its owner.

Point the engine at it in the --backup-config file:

  encryption:
    key_source: file
    key_path: /etc/mrp-backup/backup.key

Backups encrypted with a key cannot be restored without it. Keep a copy
outside the backup directory.

Examples:
  mrp-backup key generate --output /etc/mrp-backup/backup.key`,
	Args: cobra.NoArgs,
	RunE: runKeyGenerate,
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenerateCmd)

	keyGenerateCmd.Flags().StringVarP(&keyOutput, "output", "o", "", "key file to create")
	keyGenerateCmd.Flags().BoolVar(&keyForce, "force", false, "overwrite an existing key file")
	keyGenerateCmd.MarkFlagRequired("output")
}

func runKeyGenerate(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd, false)
	if err != nil {
		return err
	}
	if err := writeKeyFile(keyOutput, keyForce); err != nil {
		printer.Error(err.Error())
		return err
	}
	printer.Success("Encryption key written to " + keyOutput)
	printer.Warning("Store a copy of this key safely; encrypted backups are unreadable without it")
	return nil
}

// writeKeyFile generates a key into path. An existing file is kept unless force is set.
func writeKeyFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to replace it", path)
		}
	}

	km := backup.NewKeyManager(&backup.EncryptionConfig{KeySource: backup.KeySourceFile, KeyPath: path})
	key, err := km.GenerateKey()
	if err != nil {
		return err
	}
	return km.SaveKeyToFile(key, path)
}
