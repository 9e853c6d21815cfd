package cmd

import (
	"testing"

	"mrp-backup/internal/backup"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSettingsFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "set"}
	addSettingsFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestSettingsPatchFromFlags_NothingSet(t *testing.T) {
	patch, err := settingsPatchFromFlags(parseSettingsFlags(t))
	require.NoError(t, err)
	assert.Nil(t, patch)
}

func TestSettingsPatchFromFlags_OnlyChangedFields(t *testing.T) {
	patch, err := settingsPatchFromFlags(parseSettingsFlags(t,
		"--frequency", "weekly",
		"--day-of-week", "0",
		"--time", "03:30",
		"--auto-backup=false",
		"--disk-threshold-gb", "2.5",
	))
	require.NoError(t, err)
	require.NotNil(t, patch)

	require.NotNil(t, patch.Frequency)
	assert.Equal(t, backup.Frequency("weekly"), *patch.Frequency)
	require.NotNil(t, patch.DayOfWeek)
	assert.Equal(t, 0, *patch.DayOfWeek)
	require.NotNil(t, patch.TimeOfDay)
	assert.Equal(t, "03:30", *patch.TimeOfDay)
	require.NotNil(t, patch.AutoBackupEnabled)
	assert.False(t, *patch.AutoBackupEnabled)
	require.NotNil(t, patch.DiskThresholdGb)
	assert.Equal(t, 2.5, *patch.DiskThresholdGb)

	assert.Nil(t, patch.RetentionDays)
	assert.Nil(t, patch.MaxBackupCount)
	assert.Nil(t, patch.CloudProvider)
	assert.Nil(t, patch.WebhookURL)
	assert.Nil(t, patch.NotifyOnFailure)
}

func TestSettingsPatchFromFlags_ClearWebhook(t *testing.T) {
	patch, err := settingsPatchFromFlags(parseSettingsFlags(t, "--webhook-url", ""))
	require.NoError(t, err)
	require.NotNil(t, patch)
	require.NotNil(t, patch.WebhookURL)
	assert.Empty(t, *patch.WebhookURL)
}

func TestSettingsPatchFromFlags_AppliesToSettings(t *testing.T) {
	patch, err := settingsPatchFromFlags(parseSettingsFlags(t,
		"--cloud-backup", "--cloud-provider", "minio", "--max-backups", "5",
	))
	require.NoError(t, err)

	settings := &backup.BackupSettings{Frequency: backup.FrequencyDaily, MaxBackupCount: 30}
	patch.Apply(settings)

	assert.True(t, settings.CloudBackupEnabled)
	assert.Equal(t, backup.CloudProviderMinIO, settings.CloudProvider)
	assert.Equal(t, 5, settings.MaxBackupCount)
	assert.Equal(t, backup.FrequencyDaily, settings.Frequency)
}
