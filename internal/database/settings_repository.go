package database

import (
	"context"
	"database/sql"
	"time"

	"mrp-backup/internal/errors"
)

// SettingsRecord is the singleton row of backup_settings
type SettingsRecord struct {
	AutoBackupEnabled  bool
	Frequency          string
	TimeOfDay          string
	DayOfWeek          int
	RetentionDays      int
	MaxBackupCount     int
	CloudBackupEnabled bool
	CloudProvider      string
	EncryptionEnabled  bool
	NotifyOnSuccess    bool
	NotifyOnFailure    bool
	WebhookURL         string
	DiskThresholdGB    float64
	UpdatedAt          time.Time
}

const settingsRowID = 1

// SettingsRepository loads and stores the singleton settings row
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a repository over backup_settings
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Load returns the stored row, or found=false when none was saved yet
func (r *SettingsRepository) Load(ctx context.Context) (*SettingsRecord, bool, error) {
	var record SettingsRecord
	var webhook sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT auto_backup_enabled, frequency, time_of_day, day_of_week, retention_days, max_backup_count,
			cloud_backup_enabled, cloud_provider, encryption_enabled, notify_on_success, notify_on_failure,
			webhook_url, disk_threshold_gb, updated_at
		FROM backup_settings
		WHERE id = ?`, settingsRowID).Scan(
		&record.AutoBackupEnabled, &record.Frequency, &record.TimeOfDay, &record.DayOfWeek,
		&record.RetentionDays, &record.MaxBackupCount, &record.CloudBackupEnabled, &record.CloudProvider,
		&record.EncryptionEnabled, &record.NotifyOnSuccess, &record.NotifyOnFailure,
		&webhook, &record.DiskThresholdGB, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapError(err, "failed to load backup settings")
	}

	record.WebhookURL = webhook.String
	return &record, true, nil
}

// Save upserts the singleton row
func (r *SettingsRepository) Save(ctx context.Context, record *SettingsRecord) error {
	record.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backup_settings (id, auto_backup_enabled, frequency, time_of_day, day_of_week, retention_days,
			max_backup_count, cloud_backup_enabled, cloud_provider, encryption_enabled, notify_on_success,
			notify_on_failure, webhook_url, disk_threshold_gb, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			auto_backup_enabled = VALUES(auto_backup_enabled),
			frequency = VALUES(frequency),
			time_of_day = VALUES(time_of_day),
			day_of_week = VALUES(day_of_week),
			retention_days = VALUES(retention_days),
			max_backup_count = VALUES(max_backup_count),
			cloud_backup_enabled = VALUES(cloud_backup_enabled),
			cloud_provider = VALUES(cloud_provider),
			encryption_enabled = VALUES(encryption_enabled),
			notify_on_success = VALUES(notify_on_success),
			notify_on_failure = VALUES(notify_on_failure),
			webhook_url = VALUES(webhook_url),
			disk_threshold_gb = VALUES(disk_threshold_gb),
			updated_at = VALUES(updated_at)`,
		settingsRowID, record.AutoBackupEnabled, record.Frequency, record.TimeOfDay, record.DayOfWeek,
		record.RetentionDays, record.MaxBackupCount, record.CloudBackupEnabled, record.CloudProvider,
		record.EncryptionEnabled, record.NotifyOnSuccess, record.NotifyOnFailure,
		nullString(record.WebhookURL), record.DiskThresholdGB, record.UpdatedAt)
	if err != nil {
		return errors.WrapError(err, "failed to save backup settings")
	}
	return nil
}
