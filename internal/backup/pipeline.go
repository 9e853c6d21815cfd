package backup

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UploaderFactory builds the uploader for a provider
type UploaderFactory func(ctx context.Context, provider CloudProvider) (RemoteUploader, error)

// BackupRunner executes one full backup cycle under the operation lock:
// history entry, snapshot, retention, disk check, upload and notification.
type BackupRunner struct {
	lock      *OperationLock
	local     *LocalStore
	writer    *SnapshotWriter
	retention *RetentionManager
	disk      *DiskMonitor
	history   *historyRecorder
	settings  *SettingsService
	notifier  Notifier
	metrics   *MetricsCollector
	logger    *BackupLogger
	timeout   time.Duration

	newUploader UploaderFactory
	uploadersMu sync.Mutex
	uploaders   map[CloudProvider]RemoteUploader
}

// BackupRunnerConfig holds the collaborators of a BackupRunner
type BackupRunnerConfig struct {
	Lock             *OperationLock
	Local            *LocalStore
	Writer           *SnapshotWriter
	Retention        *RetentionManager
	Disk             *DiskMonitor
	History          HistoryStore
	Settings         *SettingsService
	Notifier         Notifier
	Metrics          *MetricsCollector
	Logger           *BackupLogger
	OperationTimeout time.Duration
	Uploaders        UploaderFactory
}

// NewBackupRunner creates a backup runner
func NewBackupRunner(config BackupRunnerConfig) *BackupRunner {
	logger := config.Logger
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	return &BackupRunner{
		lock:        config.Lock,
		local:       config.Local,
		writer:      config.Writer,
		retention:   config.Retention,
		disk:        config.Disk,
		history:     &historyRecorder{store: config.History},
		settings:    config.Settings,
		notifier:    config.Notifier,
		metrics:     config.Metrics,
		logger:      logger,
		timeout:     config.OperationTimeout,
		newUploader: config.Uploaders,
		uploaders:   make(map[CloudProvider]RemoteUploader),
	}
}

// RunBackup takes a snapshot of kind and runs the post-snapshot policies.
// Only a snapshot failure fails the run; retention, disk and upload problems
// are logged and notified.
func (r *BackupRunner) RunBackup(ctx context.Context, kind Kind, description string) (*SnapshotResult, error) {
	release, err := r.lock.TryAcquire(fmt.Sprintf("backup (%s)", kind))
	if err != nil {
		return nil, err
	}
	defer release()
	r.local.CleanupTempFiles()

	ctx, _ = r.logger.WithOperation(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	done := r.logger.LogBackupStart(ctx, kind, description)

	record, err := r.history.begin(ctx, kind)
	if err != nil {
		done(err, nil)
		r.metrics.RecordBackupOperation(kind, nil, time.Since(started), err)
		return nil, err
	}

	settings, err := r.settings.Get(ctx)
	if err != nil {
		r.fail(ctx, record, kind, nil, err, started, done)
		return nil, err
	}

	result, err := r.writer.CreateSnapshot(ctx, kind, description, settings.EncryptionEnabled)
	if err != nil {
		r.fail(ctx, record, kind, settings, err, started, done)
		return nil, err
	}

	r.afterSnapshot(ctx, settings, result)

	if err := r.history.complete(record, result, started); err != nil {
		r.logger.Entry(ctx).WithField("error", err.Error()).Error("Failed to mark backup history entry completed")
	}
	result.Duration = time.Since(started)
	done(nil, result)
	r.metrics.RecordBackupOperation(kind, result, result.Duration, nil)

	if settings.NotifyOnSuccess {
		r.notify(ctx, &Event{
			Type:       EventBackupSuccess,
			FileName:   result.FileName,
			Size:       result.Size,
			DurationMs: result.Duration.Milliseconds(),
		})
	}
	return result, nil
}

func (r *BackupRunner) afterSnapshot(ctx context.Context, settings *BackupSettings, result *SnapshotResult) {
	retention, err := r.retention.ApplyRetention(ctx, settings)
	if err != nil {
		r.logger.Entry(ctx).WithField("error", err.Error()).Warn("Retention failed after backup")
	}
	r.metrics.RecordRetention(retention)

	if _, err := r.disk.Check(ctx, settings); err != nil {
		r.logger.Entry(ctx).WithField("error", err.Error()).Warn("Disk usage check failed after backup")
	}

	if settings.CloudBackupEnabled {
		r.upload(ctx, settings, result)
	}
}

func (r *BackupRunner) upload(ctx context.Context, settings *BackupSettings, result *SnapshotResult) {
	provider := settings.CloudProvider
	start := time.Now()

	err := func() error {
		uploader, err := r.uploaderFor(ctx, provider)
		if err != nil {
			return err
		}
		path, err := r.local.Path(result.FileName)
		if err != nil {
			return err
		}
		return uploader.Upload(ctx, path, result.FileName)
	}()

	if err != nil {
		err = NewRemoteUploadError(fmt.Sprintf("failed to upload %s to %s", result.FileName, provider), err).
			WithContext("provider", string(provider))
	}
	r.logger.LogRemoteUpload(ctx, provider, result.FileName, time.Since(start), err)
	r.metrics.RecordUpload(provider, err)

	if err != nil && settings.NotifyOnFailure {
		r.notify(ctx, &Event{
			Type:     EventRemoteUploadFailure,
			FileName: result.FileName,
			Size:     result.Size,
			Error:    err.Error(),
		})
	}
}

// uploaderFor returns a cached uploader so clients are built once per provider
func (r *BackupRunner) uploaderFor(ctx context.Context, provider CloudProvider) (RemoteUploader, error) {
	r.uploadersMu.Lock()
	defer r.uploadersMu.Unlock()

	if uploader, ok := r.uploaders[provider]; ok {
		return uploader, nil
	}
	if r.newUploader == nil {
		return nil, NewConfigurationError("remote upload is not configured", nil)
	}
	uploader, err := r.newUploader(ctx, provider)
	if err != nil {
		return nil, err
	}
	r.uploaders[provider] = uploader
	return uploader, nil
}

func (r *BackupRunner) fail(ctx context.Context, record *HistoryEntry, kind Kind, settings *BackupSettings, cause error, started time.Time, done func(error, *SnapshotResult)) {
	if err := r.history.fail(record, "", cause, started); err != nil {
		r.logger.Entry(ctx).WithField("error", err.Error()).Error("Failed to mark backup history entry failed")
	}
	done(cause, nil)
	r.metrics.RecordBackupOperation(kind, nil, time.Since(started), cause)

	if settings != nil && settings.NotifyOnFailure {
		r.notify(ctx, &Event{
			Type:       EventBackupFailure,
			DurationMs: time.Since(started).Milliseconds(),
			Error:      cause.Error(),
		})
	}
}

func (r *BackupRunner) notify(ctx context.Context, event *Event) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, event)
	}
}
