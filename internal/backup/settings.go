package backup

import (
	"context"
	"strings"
	"sync"
	"time"

	"mrp-backup/internal/database"
)

// Frequency of automatic backups
type Frequency string

const (
	FrequencyHourly Frequency = "HOURLY"
	FrequencyDaily  Frequency = "DAILY"
	FrequencyWeekly Frequency = "WEEKLY"
)

// CloudProvider names a remote object store
type CloudProvider string

const (
	CloudProviderS3    CloudProvider = "S3"
	CloudProviderGCS   CloudProvider = "GCS"
	CloudProviderAzure CloudProvider = "AZURE"
	CloudProviderMinIO CloudProvider = "MINIO"
)

// BackupSettings is the operator-tunable backup policy. It is re-read fresh
// on every scheduler cycle, so updates apply without a restart.
type BackupSettings struct {
	AutoBackupEnabled  bool          `json:"autoBackupEnabled" yaml:"auto_backup_enabled"`
	Frequency          Frequency     `json:"frequency" yaml:"frequency"`
	TimeOfDay          string        `json:"timeOfDay" yaml:"time_of_day"`
	DayOfWeek          int           `json:"dayOfWeek" yaml:"day_of_week"`
	RetentionDays      int           `json:"retentionDays" yaml:"retention_days"`
	MaxBackupCount     int           `json:"maxBackupCount" yaml:"max_backup_count"`
	CloudBackupEnabled bool          `json:"cloudBackupEnabled" yaml:"cloud_backup_enabled"`
	CloudProvider      CloudProvider `json:"cloudProvider" yaml:"cloud_provider"`
	EncryptionEnabled  bool          `json:"encryptionEnabled" yaml:"encryption_enabled"`
	NotifyOnSuccess    bool          `json:"notifyOnSuccess" yaml:"notify_on_success"`
	NotifyOnFailure    bool          `json:"notifyOnFailure" yaml:"notify_on_failure"`
	WebhookURL         string        `json:"webhookUrl,omitempty" yaml:"webhook_url,omitempty"`
	DiskThresholdGb    float64       `json:"diskThresholdGb" yaml:"disk_threshold_gb"`
	UpdatedAt          time.Time     `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
}

// DefaultSettings returns the policy used until an operator saves one
func DefaultSettings() *BackupSettings {
	return &BackupSettings{
		AutoBackupEnabled: true,
		Frequency:         FrequencyDaily,
		TimeOfDay:         "02:00",
		RetentionDays:     30,
		MaxBackupCount:    10,
		CloudProvider:     CloudProviderS3,
		NotifyOnFailure:   true,
		DiskThresholdGb:   10,
	}
}

// Clone returns an independent copy
func (s *BackupSettings) Clone() *BackupSettings {
	c := *s
	return &c
}

// DiskThresholdBytes converts the GiB threshold to bytes
func (s *BackupSettings) DiskThresholdBytes() int64 {
	return int64(s.DiskThresholdGb * float64(1<<30))
}

// SettingsPatch is a partial update; nil fields are left unchanged
type SettingsPatch struct {
	AutoBackupEnabled  *bool          `json:"autoBackupEnabled,omitempty"`
	Frequency          *Frequency     `json:"frequency,omitempty"`
	TimeOfDay          *string        `json:"timeOfDay,omitempty"`
	DayOfWeek          *int           `json:"dayOfWeek,omitempty"`
	RetentionDays      *int           `json:"retentionDays,omitempty"`
	MaxBackupCount     *int           `json:"maxBackupCount,omitempty"`
	CloudBackupEnabled *bool          `json:"cloudBackupEnabled,omitempty"`
	CloudProvider      *CloudProvider `json:"cloudProvider,omitempty"`
	EncryptionEnabled  *bool          `json:"encryptionEnabled,omitempty"`
	NotifyOnSuccess    *bool          `json:"notifyOnSuccess,omitempty"`
	NotifyOnFailure    *bool          `json:"notifyOnFailure,omitempty"`
	WebhookURL         *string        `json:"webhookUrl,omitempty"`
	DiskThresholdGb    *float64       `json:"diskThresholdGb,omitempty"`
}

// Apply copies the set fields of p onto s
func (p *SettingsPatch) Apply(s *BackupSettings) {
	if p.AutoBackupEnabled != nil {
		s.AutoBackupEnabled = *p.AutoBackupEnabled
	}
	if p.Frequency != nil {
		s.Frequency = Frequency(strings.ToUpper(string(*p.Frequency)))
	}
	if p.TimeOfDay != nil {
		s.TimeOfDay = strings.TrimSpace(*p.TimeOfDay)
	}
	if p.DayOfWeek != nil {
		s.DayOfWeek = *p.DayOfWeek
	}
	if p.RetentionDays != nil {
		s.RetentionDays = *p.RetentionDays
	}
	if p.MaxBackupCount != nil {
		s.MaxBackupCount = *p.MaxBackupCount
	}
	if p.CloudBackupEnabled != nil {
		s.CloudBackupEnabled = *p.CloudBackupEnabled
	}
	if p.CloudProvider != nil {
		s.CloudProvider = CloudProvider(strings.ToUpper(string(*p.CloudProvider)))
	}
	if p.EncryptionEnabled != nil {
		s.EncryptionEnabled = *p.EncryptionEnabled
	}
	if p.NotifyOnSuccess != nil {
		s.NotifyOnSuccess = *p.NotifyOnSuccess
	}
	if p.NotifyOnFailure != nil {
		s.NotifyOnFailure = *p.NotifyOnFailure
	}
	if p.WebhookURL != nil {
		s.WebhookURL = strings.TrimSpace(*p.WebhookURL)
	}
	if p.DiskThresholdGb != nil {
		s.DiskThresholdGb = *p.DiskThresholdGb
	}
}

func settingsFromRecord(r *database.SettingsRecord) *BackupSettings {
	return &BackupSettings{
		AutoBackupEnabled:  r.AutoBackupEnabled,
		Frequency:          Frequency(r.Frequency),
		TimeOfDay:          r.TimeOfDay,
		DayOfWeek:          r.DayOfWeek,
		RetentionDays:      r.RetentionDays,
		MaxBackupCount:     r.MaxBackupCount,
		CloudBackupEnabled: r.CloudBackupEnabled,
		CloudProvider:      CloudProvider(r.CloudProvider),
		EncryptionEnabled:  r.EncryptionEnabled,
		NotifyOnSuccess:    r.NotifyOnSuccess,
		NotifyOnFailure:    r.NotifyOnFailure,
		WebhookURL:         r.WebhookURL,
		DiskThresholdGb:    r.DiskThresholdGB,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (s *BackupSettings) toRecord() *database.SettingsRecord {
	return &database.SettingsRecord{
		AutoBackupEnabled:  s.AutoBackupEnabled,
		Frequency:          string(s.Frequency),
		TimeOfDay:          s.TimeOfDay,
		DayOfWeek:          s.DayOfWeek,
		RetentionDays:      s.RetentionDays,
		MaxBackupCount:     s.MaxBackupCount,
		CloudBackupEnabled: s.CloudBackupEnabled,
		CloudProvider:      string(s.CloudProvider),
		EncryptionEnabled:  s.EncryptionEnabled,
		NotifyOnSuccess:    s.NotifyOnSuccess,
		NotifyOnFailure:    s.NotifyOnFailure,
		WebhookURL:         s.WebhookURL,
		DiskThresholdGB:    s.DiskThresholdGb,
	}
}

// SettingsService is the single writer of BackupSettings. Concurrent updates
// are serialized and the last one wins.
type SettingsService struct {
	repo     SettingsRepository
	defaults *BackupSettings
	// check runs after field validation, e.g. to require a key before enabling encryption
	check func(*BackupSettings) error

	mu sync.Mutex
}

// NewSettingsService creates a settings service. defaults may be nil.
func NewSettingsService(repo SettingsRepository, defaults *BackupSettings) *SettingsService {
	if defaults == nil {
		defaults = DefaultSettings()
	}
	return &SettingsService{repo: repo, defaults: defaults}
}

// SetCheck installs an extra validation run on every update
func (ss *SettingsService) SetCheck(check func(*BackupSettings) error) {
	ss.check = check
}

// Get reads the settings fresh from the repository
func (ss *SettingsService) Get(ctx context.Context) (*BackupSettings, error) {
	record, found, err := ss.repo.Load(ctx)
	if err != nil {
		return nil, NewDatabaseError("failed to load backup settings", err)
	}
	if !found {
		return ss.defaults.Clone(), nil
	}
	return settingsFromRecord(record), nil
}

// Update applies patch to the stored settings and returns the result
func (ss *SettingsService) Update(ctx context.Context, patch *SettingsPatch) (*BackupSettings, error) {
	if patch == nil {
		return nil, NewValidationError("settings patch is required", nil)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	current, err := ss.Get(ctx)
	if err != nil {
		return nil, err
	}

	patch.Apply(current)
	if err := ValidateSettings(current); err != nil {
		return nil, NewValidationError("invalid backup settings", err)
	}
	if ss.check != nil {
		if err := ss.check(current); err != nil {
			return nil, err
		}
	}

	record := current.toRecord()
	if err := ss.repo.Save(ctx, record); err != nil {
		return nil, NewDatabaseError("failed to save backup settings", err)
	}
	current.UpdatedAt = record.UpdatedAt
	return current, nil
}
