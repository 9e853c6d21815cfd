package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mrp-backup/internal/database"
	"mrp-backup/internal/schema"
)

const reapplyTimeout = 10 * time.Minute

// RestoreCoordinator replaces the live store with the contents of a snapshot.
// Each step is a precondition for the next and live data is never touched
// before a PRE_RESTORE snapshot of it exists.
type RestoreCoordinator struct {
	store     LiveStore
	local     *LocalStore
	lock      *OperationLock
	validator *BackupValidator
	writer    *SnapshotWriter
	settings  *SettingsService
	notifier  Notifier
	metrics   *MetricsCollector
	logger    *BackupLogger

	appVersion    string
	schemaVersion string
}

// RestoreCoordinatorConfig holds the collaborators of a RestoreCoordinator
type RestoreCoordinatorConfig struct {
	Store         LiveStore
	Local         *LocalStore
	Lock          *OperationLock
	Validator     *BackupValidator
	Writer        *SnapshotWriter
	Settings      *SettingsService
	Notifier      Notifier
	Metrics       *MetricsCollector
	Logger        *BackupLogger
	AppVersion    string
	SchemaVersion string
}

// NewRestoreCoordinator creates a restore coordinator
func NewRestoreCoordinator(config RestoreCoordinatorConfig) *RestoreCoordinator {
	logger := config.Logger
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	return &RestoreCoordinator{
		store:         config.Store,
		local:         config.Local,
		lock:          config.Lock,
		validator:     config.Validator,
		writer:        config.Writer,
		settings:      config.Settings,
		notifier:      config.Notifier,
		metrics:       config.Metrics,
		logger:        logger,
		appVersion:    config.AppVersion,
		schemaVersion: config.SchemaVersion,
	}
}

// Restore verifies fileName, snapshots the live store as PRE_RESTORE and then
// replaces the live tables with the snapshot contents.
func (rc *RestoreCoordinator) Restore(ctx context.Context, fileName string) (*RestoreResult, error) {
	if err := ValidateFileName(fileName); err != nil {
		return nil, err
	}

	release, err := rc.lock.TryAcquire("restore")
	if err != nil {
		return nil, err
	}
	defer release()
	rc.local.CleanupTempFiles()

	ctx, _ = rc.logger.WithOperation(ctx)
	done := rc.logger.LogRestoreStart(ctx, fileName)
	start := time.Now()

	settings, err := rc.settings.Get(ctx)
	if err != nil {
		done(err, nil)
		return nil, err
	}

	result, err := rc.restore(ctx, fileName, settings)
	duration := time.Since(start)
	done(err, result)
	rc.metrics.RecordRestoreOperation(duration, err)

	event := &Event{FileName: fileName, DurationMs: duration.Milliseconds()}
	if err != nil {
		event.Type = EventRestoreFailure
		event.Error = err.Error()
		if settings.NotifyOnFailure {
			rc.notify(ctx, event)
		}
		return nil, err
	}

	result.Duration = duration
	event.Type = EventRestoreSuccess
	if settings.NotifyOnSuccess {
		rc.notify(ctx, event)
	}
	return result, nil
}

func (rc *RestoreCoordinator) restore(ctx context.Context, fileName string, settings *BackupSettings) (*RestoreResult, error) {
	// 1+2: checksum, then decrypt and decode
	meta, dataset, err := rc.validator.Load(ctx, fileName)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{FileName: fileName}
	if meta.AppVersion != rc.appVersion {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("backup was written by app version %s, running %s", meta.AppVersion, rc.appVersion))
	}
	if meta.SchemaVersion != rc.schemaVersion {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("backup schema version %s differs from current %s", meta.SchemaVersion, rc.schemaVersion))
	}

	// 3: safety snapshot of the state about to be replaced
	current, err := rc.store.Export(ctx)
	if err != nil {
		return nil, NewRestoreError("failed to read the live store for the pre-restore backup", err)
	}
	pre, err := rc.writer.WriteDataset(ctx, KindPreRestore, "Safety backup before restoring "+fileName, current, settings.EncryptionEnabled)
	if err != nil {
		return nil, NewRestoreError("failed to write the pre-restore backup", err)
	}
	result.PreRestoreFile = pre.FileName

	// 4: replace
	counts, err := rc.store.Replace(ctx, dataset)
	if err != nil {
		return nil, rc.recover(ctx, err, current, pre.FileName)
	}

	result.RestoredTables = counts
	for _, n := range counts {
		result.TotalRestored += n
	}
	result.Warnings = append(result.Warnings, coverageWarnings(dataset, current, counts)...)
	return result, nil
}

// coverageWarnings reports live tables the snapshot does not contain, which
// keep their current rows, and snapshot tables the live store did not restore
func coverageWarnings(snapshot, live *schema.Dataset, restored map[string]int64) []string {
	var warnings []string
	for _, name := range live.TableNames() {
		if _, ok := snapshot.Table(name); !ok {
			warnings = append(warnings, fmt.Sprintf("table %s is not in the backup and was left unchanged", name))
		}
	}
	for _, name := range snapshot.TableNames() {
		if _, ok := restored[name]; !ok {
			warnings = append(warnings, fmt.Sprintf("table %s from the backup is not registered and was skipped", name))
		}
	}
	return warnings
}

// recover builds the error for a failed replace. When the transaction could
// not be rolled back the pre-restore dataset is written back.
func (rc *RestoreCoordinator) recover(ctx context.Context, cause error, current *schema.Dataset, preRestoreFile string) error {
	restoreErr := NewRestoreError("failed to replace live data, restore from the pre-restore backup if needed", cause).
		WithContext("pre_restore_file", preRestoreFile)

	var replaceErr *database.ReplaceError
	if !errors.As(cause, &replaceErr) || replaceErr.RolledBack() {
		restoreErr.WithContext("live_state", "unchanged")
		return restoreErr
	}

	reapplyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reapplyTimeout)
	defer cancel()

	rc.logger.Entry(ctx).WithField("pre_restore_file", preRestoreFile).
		Warn("Rollback failed, re-applying the pre-restore dataset")
	if _, err := rc.store.Replace(reapplyCtx, current); err != nil {
		restoreErr.WithContext("live_state", "unknown").WithContext("reapply_error", err.Error())
		return restoreErr
	}
	restoreErr.WithContext("live_state", "pre_restore")
	return restoreErr
}

func (rc *RestoreCoordinator) notify(ctx context.Context, event *Event) {
	if rc.notifier != nil {
		rc.notifier.Notify(ctx, event)
	}
}

// RestoreRecoveryPoint returns the PRE_RESTORE file named by a failed restore, or ""
func RestoreRecoveryPoint(err error) string {
	var be *BackupError
	if !errors.As(err, &be) || be.Type != BackupErrorTypeRestore {
		return ""
	}
	name, _ := be.Context["pre_restore_file"].(string)
	return name
}
