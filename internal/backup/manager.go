package backup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"mrp-backup/internal/logging"
)

const defaultHistoryLimit = 20

// Dependencies are the collaborators a Manager cannot build from configuration
type Dependencies struct {
	Store    LiveStore
	History  HistoryStore
	Settings SettingsRepository
	Logger   *logging.Logger
	// AuditLogFile enables the JSON audit trail when set
	AuditLogFile string
	// Uploaders overrides the remote uploader construction, e.g. in tests
	Uploaders UploaderFactory
	// Channels are registered with the dispatcher besides the configured ones
	Channels []NotificationChannel
	// Defaults are used until settings are first saved
	Defaults *BackupSettings
}

// Manager is the entry point of the backup engine. Every admin operation goes
// through it.
type Manager struct {
	config     *BackupSystemConfig
	local      *LocalStore
	lock       *OperationLock
	encryption *EncryptionManager
	validator  *BackupValidator
	writer     *SnapshotWriter
	retention  *RetentionManager
	disk       *DiskMonitor
	compare    *CompareEngine
	restore    *RestoreCoordinator
	runner     *BackupRunner
	scheduler  *Scheduler
	settings   *SettingsService
	history    HistoryStore
	notifier   *NotificationDispatcher
	metrics    *MetricsCollector
	logger     *BackupLogger
	uploaders  UploaderFactory
}

// NewManager wires the engine components from config and deps
func NewManager(config *BackupSystemConfig, deps Dependencies) (*Manager, error) {
	if config == nil {
		return nil, NewConfigurationError("backup system configuration is required", nil)
	}
	if deps.Store == nil || deps.History == nil || deps.Settings == nil {
		return nil, NewConfigurationError("live store, history store and settings repository are required", nil)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid backup configuration", err)
	}

	logger, err := NewBackupLogger(BackupLoggerConfig{Logger: deps.Logger, AuditLogFile: deps.AuditLogFile})
	if err != nil {
		return nil, NewConfigurationError("failed to create backup logger", err)
	}

	local, err := NewLocalStore(config.Directory)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:     config,
		local:      local,
		lock:       NewOperationLock(config.Directory),
		encryption: NewEncryptionManager(&config.Encryption),
		history:    deps.History,
		logger:     logger,
	}
	if config.Metrics.Enabled {
		m.metrics = NewMetricsCollector(config.Metrics.Namespace)
	}

	m.settings = NewSettingsService(deps.Settings, deps.Defaults)
	m.settings.SetCheck(m.checkSettings)
	m.notifier = NewNotificationDispatcher(config.Notifications, m.webhookURL, logger, m.metrics)
	for _, channel := range deps.Channels {
		m.notifier.AddChannel(channel)
	}

	m.validator = NewBackupValidator(local, m.encryption, logger)
	m.writer = NewSnapshotWriter(deps.Store, local, m.encryption, config)
	m.retention = NewRetentionManager(local, logger)
	m.disk = NewDiskMonitor(local, m.notifier, m.metrics, logger)
	m.compare = NewCompareEngine(deps.Store, m.validator, logger)

	uploaders := deps.Uploaders
	if uploaders == nil {
		remote := config.Remote
		uploaders = func(ctx context.Context, provider CloudProvider) (RemoteUploader, error) {
			return NewRemoteUploader(ctx, provider, remote)
		}
	}
	m.uploaders = uploaders

	m.runner = NewBackupRunner(BackupRunnerConfig{
		Lock:             m.lock,
		Local:            local,
		Writer:           m.writer,
		Retention:        m.retention,
		Disk:             m.disk,
		History:          deps.History,
		Settings:         m.settings,
		Notifier:         m.notifier,
		Metrics:          m.metrics,
		Logger:           logger,
		OperationTimeout: config.Scheduler.OperationTimeout,
		Uploaders:        uploaders,
	})
	m.restore = NewRestoreCoordinator(RestoreCoordinatorConfig{
		Store:         deps.Store,
		Local:         local,
		Lock:          m.lock,
		Validator:     m.validator,
		Writer:        m.writer,
		Settings:      m.settings,
		Notifier:      m.notifier,
		Metrics:       m.metrics,
		Logger:        logger,
		AppVersion:    config.AppVersion,
		SchemaVersion: config.SchemaVersion,
	})
	m.scheduler = NewScheduler(m.runner, m.settings, config.Scheduler, logger)

	return m, nil
}

// checkSettings rejects settings the engine could not act on
func (m *Manager) checkSettings(s *BackupSettings) error {
	if s.EncryptionEnabled && !m.encryption.Configured() {
		return NewConfigurationError("cannot enable encryption without a configured key source", nil).
			WithContext("field", "encryptionEnabled")
	}
	if s.CloudBackupEnabled {
		if err := m.config.Remote.ValidateFor(s.CloudProvider); err != nil {
			return NewConfigurationError(fmt.Sprintf("remote storage for %s is not configured", s.CloudProvider), err).
				WithContext("field", "cloudProvider")
		}
	}
	return nil
}

func (m *Manager) webhookURL(ctx context.Context) string {
	settings, err := m.settings.Get(ctx)
	if err != nil {
		return ""
	}
	return settings.WebhookURL
}

// CreateBackup takes a snapshot now and runs retention, the disk check and
// the optional upload
func (m *Manager) CreateBackup(ctx context.Context, kind Kind, description string) (*SnapshotResult, error) {
	if kind == "" {
		kind = KindManual
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return m.runner.RunBackup(ctx, kind, description)
}

// ListBackups returns every snapshot, newest first
func (m *Manager) ListBackups(ctx context.Context) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.local.List()
}

// OpenBackup opens a snapshot for download. The caller closes the reader.
func (m *Manager) OpenBackup(fileName string) (io.ReadCloser, error) {
	return m.local.Open(fileName)
}

// DeleteBackup removes a snapshot and its sidecar
func (m *Manager) DeleteBackup(ctx context.Context, fileName string) error {
	if err := ValidateFileName(fileName); err != nil {
		return err
	}
	release, err := m.lock.TryAcquire("delete")
	if err != nil {
		return err
	}
	defer release()

	ctx, _ = m.logger.WithOperation(ctx)
	err = m.local.Delete(fileName)
	m.logger.LogDeletion(ctx, fileName, err)
	return err
}

// Restore replaces the live store with the contents of fileName
func (m *Manager) Restore(ctx context.Context, fileName string) (*RestoreResult, error) {
	return m.restore.Restore(ctx, fileName)
}

// CompareWithLive diffs a snapshot (side A) against the live store (side B)
func (m *Manager) CompareWithLive(ctx context.Context, fileName string) (*CompareResult, error) {
	if err := ValidateFileName(fileName); err != nil {
		return nil, err
	}
	return m.compare.Compare(ctx, SnapshotSide(fileName), LiveSide())
}

// CompareSnapshots diffs two snapshots
func (m *Manager) CompareSnapshots(ctx context.Context, a, b string) (*CompareResult, error) {
	for _, name := range []string{a, b} {
		if err := ValidateFileName(name); err != nil {
			return nil, err
		}
	}
	return m.compare.Compare(ctx, SnapshotSide(a), SnapshotSide(b))
}

// GetSettings returns the current settings
func (m *Manager) GetSettings(ctx context.Context) (*BackupSettings, error) {
	return m.settings.Get(ctx)
}

// UpdateSettings applies patch and returns the stored result
func (m *Manager) UpdateSettings(ctx context.Context, patch *SettingsPatch) (*BackupSettings, error) {
	return m.settings.Update(ctx, patch)
}

// GetDiskUsage reports local snapshot usage against the configured threshold
func (m *Manager) GetDiskUsage(ctx context.Context) (*DiskUsage, error) {
	settings, err := m.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return m.disk.GetUsage(ctx, settings.DiskThresholdGb)
}

// RecentHistory returns up to limit history entries, newest first
func (m *Manager) RecentHistory(ctx context.Context, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	entries, err := m.history.Recent(ctx, limit)
	if err != nil {
		return nil, NewDatabaseError("failed to read backup history", err)
	}
	return entries, nil
}

// VerifyBackup checks the checksum, header and payload of a snapshot
func (m *Manager) VerifyBackup(ctx context.Context, fileName string) (*VerificationResult, error) {
	ctx, _ = m.logger.WithOperation(ctx)
	return m.validator.Verify(ctx, fileName)
}

// StartScheduler runs the STARTUP backup when enabled and starts the loop
func (m *Manager) StartScheduler(ctx context.Context) {
	m.scheduler.Start(ctx)
}

// StopScheduler stops the loop and waits for a running cycle
func (m *Manager) StopScheduler() {
	m.scheduler.Stop()
}

// SchedulerStatus reports the scheduler state
func (m *Manager) SchedulerStatus() SchedulerStatus {
	return m.scheduler.Status()
}

// NextScheduledRun returns when the next automatic backup is due, or false
// when automatic backups are disabled
func (m *Manager) NextScheduledRun(ctx context.Context, from time.Time) (time.Time, bool, error) {
	settings, err := m.settings.Get(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	if !settings.AutoBackupEnabled {
		return time.Time{}, false, nil
	}
	next, err := NextRun(settings, from, m.config.Scheduler.Location())
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}

// MetricsHandler serves Prometheus metrics, or nil when metrics are disabled
func (m *Manager) MetricsHandler() http.Handler {
	if m.metrics == nil {
		return nil
	}
	return m.metrics.Handler()
}

// Metrics returns the collector, nil when metrics are disabled
func (m *Manager) Metrics() *MetricsCollector {
	return m.metrics
}

// Preflight checks that the engine can take, encrypt and upload backups
// with the current settings
func (m *Manager) Preflight(ctx context.Context) (*PreflightResult, error) {
	settings, err := m.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return NewPreflight(m.config, m.uploaders).Run(ctx, settings), nil
}

// Directory returns the local backup directory
func (m *Manager) Directory() string {
	return m.local.Dir()
}
