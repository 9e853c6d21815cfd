package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mrp-backup/internal/backup"
	"mrp-backup/internal/database"
	"mrp-backup/internal/display"
	"mrp-backup/internal/logging"

	"github.com/spf13/cobra"
)

var cfgFile string

// CLI flag variables
var (
	verbose      bool
	quiet        bool
	logFormat    string
	logFile      string
	auditLogFile string

	noColor    bool
	theme      string
	outputFmt  string
	tableStyle string
)

var dbLoader = database.NewConfigLoader()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mrp-backup",
	Short: "Backup and recovery for the inventory/MRP database",
	Long: `mrp-backup takes point-in-time snapshots of the inventory/MRP database,
verifies and restores them, compares them with live data and runs automatic
backups on a schedule.

Snapshots are single files in the backup directory with a .sha256 sidecar.
Static engine configuration (directory, compression, encryption, remote
storage, notifications) is read from --backup-config. The backup policy
(frequency, retention, thresholds) is stored in the database and changed
with "mrp-backup settings set".

Examples:
  # Take a manual backup
  mrp-backup backup create --description "before BOM import"

  # Restore a snapshot after confirming
  mrp-backup restore mrp-backup-20260310-020000.000-scheduled.bak

  # See what changed since the last nightly backup
  mrp-backup compare mrp-backup-20260310-020000.000-scheduled.bak

  # Run the scheduler with a Prometheus endpoint
  mrp-backup serve --metrics-addr :9090`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose && quiet {
			return fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// It cancels the command context on SIGINT and SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./mrp-backup.yaml or $HOME/.config/mrp-backup/mrp-backup.yaml)")
	dbLoader.AddFlags(rootCmd)

	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	flags.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	flags.StringVar(&logFile, "log-file", "", "also write logs to this file")
	flags.StringVar(&auditLogFile, "audit-log", "", "append a JSON audit trail of backup operations to this file")

	flags.BoolVar(&noColor, "no-color", false, "disable color output")
	flags.StringVar(&theme, "theme", "auto", "color theme (dark, light, high-contrast, auto)")
	flags.StringVar(&outputFmt, "format", "table", "output format (table, json, yaml)")
	flags.StringVar(&tableStyle, "table-style", "default", "table style (default, rounded, minimal)")

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}

// newLogger builds the application logger from the logging flags
func newLogger() (*logging.Logger, error) {
	level := logging.LogLevelNormal
	switch {
	case verbose:
		level = logging.LogLevelVerbose
	case quiet:
		level = logging.LogLevelQuiet
	}
	return logging.NewLogger(logging.Config{
		Level:   level,
		Output:  os.Stderr,
		Format:  logFormat,
		LogFile: logFile,
	})
}

// newPrinter builds the terminal printer from the display flags
func newPrinter(cmd *cobra.Command, interactive bool) (*display.Printer, error) {
	return display.NewPrinter(&display.Config{
		ColorEnabled: !noColor,
		Theme:        theme,
		OutputFormat: outputFmt,
		TableStyle:   tableStyle,
		Interactive:  interactive,
		Quiet:        quiet,
		Writer:       cmd.OutOrStdout(),
		Reader:       cmd.InOrStdin(),
	})
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mrp-backup version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
			fmt.Fprintf(out, "Snapshot format: %d\n", backup.FormatVersion)
		},
	}
}

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample backup engine configuration file",
		Long: `Generate a sample backup engine configuration that can be passed with --backup-config.

Examples:
  mrp-backup config > backup.yaml
  mrp-backup backup list --backup-config backup.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.OutOrStdout().Write(backup.GenerateDefaultConfigYAML())
		},
	}
}
