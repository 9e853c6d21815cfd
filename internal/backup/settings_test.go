package backup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNames(err error) []string {
	var names []string
	if ve, ok := err.(ValidationErrors); ok {
		for _, e := range ve {
			names = append(names, e.Field)
		}
	}
	return names
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BackupSettings)
		fields []string
	}{
		{"defaults", func(s *BackupSettings) {}, nil},
		{"unknown frequency", func(s *BackupSettings) { s.Frequency = "MONTHLY" }, []string{"frequency"}},
		{"single digit hour", func(s *BackupSettings) { s.TimeOfDay = "2:00" }, []string{"timeOfDay"}},
		{"day of week", func(s *BackupSettings) { s.DayOfWeek = 7 }, []string{"dayOfWeek"}},
		{"negative retention", func(s *BackupSettings) {
			s.RetentionDays = -1
			s.MaxBackupCount = -1
		}, []string{"retentionDays", "maxBackupCount"}},
		{"zero retention rules are allowed", func(s *BackupSettings) {
			s.RetentionDays = 0
			s.MaxBackupCount = 0
		}, nil},
		{"negative disk threshold", func(s *BackupSettings) { s.DiskThresholdGb = -0.5 }, []string{"diskThresholdGb"}},
		{"provider only checked when cloud is on", func(s *BackupSettings) { s.CloudProvider = "FTP" }, nil},
		{"bad provider", func(s *BackupSettings) {
			s.CloudBackupEnabled = true
			s.CloudProvider = "FTP"
		}, []string{"cloudProvider"}},
		{"relative webhook", func(s *BackupSettings) { s.WebhookURL = "/hooks/backup" }, []string{"webhookUrl"}},
		{"ftp webhook", func(s *BackupSettings) { s.WebhookURL = "ftp://example.com/x" }, []string{"webhookUrl"}},
		{"https webhook", func(s *BackupSettings) { s.WebhookURL = "https://hooks.example.com/backup" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.fields, fieldNames(err))
		})
	}
}

func TestSettingsPatch_Apply(t *testing.T) {
	s := DefaultSettings()
	freq := Frequency("weekly")
	tod := " 23:30 "
	provider := CloudProvider("minio")
	day := 3

	patch := &SettingsPatch{Frequency: &freq, TimeOfDay: &tod, CloudProvider: &provider, DayOfWeek: &day}
	patch.Apply(s)

	assert.Equal(t, FrequencyWeekly, s.Frequency)
	assert.Equal(t, "23:30", s.TimeOfDay)
	assert.Equal(t, CloudProviderMinIO, s.CloudProvider)
	assert.Equal(t, 3, s.DayOfWeek)
	// untouched fields keep their values
	assert.Equal(t, 30, s.RetentionDays)
	assert.True(t, s.AutoBackupEnabled)
}

func TestSettingsService_Get(t *testing.T) {
	t.Run("defaults until saved", func(t *testing.T) {
		service := NewSettingsService(newMemorySettings(nil), nil)
		settings, err := service.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DefaultSettings(), settings)

		// callers get a copy
		settings.RetentionDays = 1
		again, _ := service.Get(context.Background())
		assert.Equal(t, 30, again.RetentionDays)
	})

	t.Run("load error", func(t *testing.T) {
		repo := newMemorySettings(nil)
		repo.err = errors.New("table missing")
		_, err := NewSettingsService(repo, nil).Get(context.Background())
		assert.True(t, IsDatabaseError(err))
	})
}

func TestSettingsService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the merged settings", func(t *testing.T) {
		repo := newMemorySettings(nil)
		service := NewSettingsService(repo, nil)
		days := 7

		updated, err := service.Update(ctx, &SettingsPatch{RetentionDays: &days})
		require.NoError(t, err)
		assert.Equal(t, 7, updated.RetentionDays)
		assert.False(t, updated.UpdatedAt.IsZero())
		assert.Equal(t, 1, repo.saves)

		stored, err := service.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, stored.RetentionDays)
		assert.Equal(t, 10, stored.MaxBackupCount)
	})

	t.Run("invalid patch is not saved", func(t *testing.T) {
		repo := newMemorySettings(nil)
		service := NewSettingsService(repo, nil)
		tod := "25:00"

		_, err := service.Update(ctx, &SettingsPatch{TimeOfDay: &tod})
		assert.True(t, IsValidationError(err))
		assert.Zero(t, repo.saves)
	})

	t.Run("nil patch", func(t *testing.T) {
		_, err := NewSettingsService(newMemorySettings(nil), nil).Update(ctx, nil)
		assert.True(t, IsValidationError(err))
	})

	t.Run("extra check", func(t *testing.T) {
		repo := newMemorySettings(nil)
		service := NewSettingsService(repo, nil)
		service.SetCheck(func(s *BackupSettings) error {
			if s.EncryptionEnabled {
				return NewConfigurationError("no encryption key configured", nil)
			}
			return nil
		})
		on := true

		_, err := service.Update(ctx, &SettingsPatch{EncryptionEnabled: &on})
		assert.True(t, IsConfigurationError(err))
		assert.Zero(t, repo.saves)
	})

	t.Run("save error", func(t *testing.T) {
		repo := newMemorySettings(DefaultSettings())
		service := NewSettingsService(repo, nil)
		repo.err = errors.New("read only")
		off := false

		_, err := service.Update(ctx, &SettingsPatch{AutoBackupEnabled: &off})
		assert.True(t, IsDatabaseError(err))
	})
}

func TestSanitizeDescription(t *testing.T) {
	assert.Equal(t, "before the BOM import", SanitizeDescription("  before\tthe \n BOM   import "))
	assert.Empty(t, SanitizeDescription("   "))

	long := SanitizeDescription(strings.Repeat("x", 600))
	assert.Len(t, long, maxDescriptionLength)
	assert.True(t, strings.HasSuffix(long, "..."))
}
