package cmd

import (
	"fmt"

	"mrp-backup/internal/backup"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the backup policy",
	Long: `The backup policy lives in the database and is shared by every process
using it. Changes apply to the running scheduler on its next wake.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current backup settings",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(cmd *cobra.Command, args []string, e *engine) error {
		settings, err := e.manager.GetSettings(cmd.Context())
		if err != nil {
			return err
		}
		return renderSettings(e.printer, settings)
	}),
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change backup settings",
	Long: `Change one or more backup settings. Only the flags given are updated.

Examples:
  mrp-backup settings set --frequency WEEKLY --day-of-week 0 --time 03:30
  mrp-backup settings set --retention-days 14 --max-backups 20
  mrp-backup settings set --notify-failure --webhook-url https://hooks.example.com/backup`,
	Args: cobra.NoArgs,
	RunE: withEngine(runSettingsSet),
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	addSettingsFlags(settingsSetCmd)
}

func addSettingsFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("auto-backup", false, "enable automatic backups")
	f.String("frequency", "", "automatic backup frequency (HOURLY, DAILY, WEEKLY)")
	f.String("time", "", "time of day for daily and weekly backups (HH:MM)")
	f.Int("day-of-week", 0, "day for weekly backups (0=Sunday ... 6=Saturday)")
	f.Int("retention-days", 0, "delete backups older than this many days (0 disables)")
	f.Int("max-backups", 0, "keep at most this many backups (0 disables)")
	f.Bool("cloud-backup", false, "upload new backups to remote storage")
	f.String("cloud-provider", "", "remote storage provider (S3, GCS, AZURE, MINIO)")
	f.Bool("encryption", false, "encrypt new backups")
	f.Bool("notify-success", false, "notify when a backup succeeds")
	f.Bool("notify-failure", false, "notify when a backup fails")
	f.String("webhook-url", "", "webhook notified about backup events (empty clears it)")
	f.Float64("disk-threshold-gb", 0, "warn when backups use more than this many GiB")
}

func runSettingsSet(cmd *cobra.Command, args []string, e *engine) error {
	patch, err := settingsPatchFromFlags(cmd)
	if err != nil {
		return err
	}
	if patch == nil {
		return fmt.Errorf("no settings given, see 'mrp-backup settings set --help'")
	}

	settings, err := e.manager.UpdateSettings(cmd.Context(), patch)
	if err != nil {
		return err
	}
	e.printer.Success("Settings updated")
	return renderSettings(e.printer, settings)
}

// settingsPatchFromFlags builds a patch from the flags set on the command
// line. It returns nil when none were set.
func settingsPatchFromFlags(cmd *cobra.Command) (*backup.SettingsPatch, error) {
	flags := cmd.Flags()
	patch := &backup.SettingsPatch{}
	changed := false

	boolFlag := func(name string, dst **bool) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = &v
		changed = true
		return nil
	}
	intFlag := func(name string, dst **int) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return err
		}
		*dst = &v
		changed = true
		return nil
	}
	stringFlag := func(name string, dst **string) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = &v
		changed = true
		return nil
	}

	var frequency, provider *string
	steps := []func() error{
		func() error { return boolFlag("auto-backup", &patch.AutoBackupEnabled) },
		func() error { return stringFlag("frequency", &frequency) },
		func() error { return stringFlag("time", &patch.TimeOfDay) },
		func() error { return intFlag("day-of-week", &patch.DayOfWeek) },
		func() error { return intFlag("retention-days", &patch.RetentionDays) },
		func() error { return intFlag("max-backups", &patch.MaxBackupCount) },
		func() error { return boolFlag("cloud-backup", &patch.CloudBackupEnabled) },
		func() error { return stringFlag("cloud-provider", &provider) },
		func() error { return boolFlag("encryption", &patch.EncryptionEnabled) },
		func() error { return boolFlag("notify-success", &patch.NotifyOnSuccess) },
		func() error { return boolFlag("notify-failure", &patch.NotifyOnFailure) },
		func() error { return stringFlag("webhook-url", &patch.WebhookURL) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	if frequency != nil {
		f := backup.Frequency(*frequency)
		patch.Frequency = &f
	}
	if provider != nil {
		p := backup.CloudProvider(*provider)
		patch.CloudProvider = &p
	}
	if flags.Changed("disk-threshold-gb") {
		v, err := flags.GetFloat64("disk-threshold-gb")
		if err != nil {
			return nil, err
		}
		patch.DiskThresholdGb = &v
		changed = true
	}

	if !changed {
		return nil, nil
	}
	return patch, nil
}
