package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mrp-backup/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BackupLogger writes structured logs for engine operations. Each operation is
// stamped with an operation_id so its start, stages and outcome can be joined.
type BackupLogger struct {
	logger      *logging.Logger
	auditLogger *logrus.Logger
}

// BackupLoggerConfig holds configuration for backup logging
type BackupLoggerConfig struct {
	Logger       *logging.Logger
	AuditLogFile string
}

// NewBackupLogger creates a backup logger. An audit log is opened when AuditLogFile is set.
func NewBackupLogger(config BackupLoggerConfig) (*BackupLogger, error) {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	bl := &BackupLogger{logger: logger}

	if config.AuditLogFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.AuditLogFile), 0750); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
		auditFile, err := os.OpenFile(config.AuditLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}

		audit := logrus.New()
		audit.SetOutput(auditFile)
		audit.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		audit.SetLevel(logrus.InfoLevel)
		bl.auditLogger = audit
	}

	return bl, nil
}

func newDefaultBackupLogger(logger *logging.Logger) *BackupLogger {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &BackupLogger{logger: logger}
}

// Logger returns the underlying application logger
func (bl *BackupLogger) Logger() *logging.Logger {
	return bl.logger
}

// WithOperation returns ctx carrying an operation ID, reusing one already present
func (bl *BackupLogger) WithOperation(ctx context.Context) (context.Context, string) {
	if id := logging.GetOperationID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return logging.ContextWithOperationID(ctx, id), id
}

// Entry returns a log entry tagged with the operation ID of ctx
func (bl *BackupLogger) Entry(ctx context.Context) *logrus.Entry {
	return bl.logger.WithContext(ctx)
}

// LogBackupStart logs the start of a snapshot and returns the completion logger
func (bl *BackupLogger) LogBackupStart(ctx context.Context, kind Kind, description string) func(error, *SnapshotResult) {
	start := time.Now()
	fields := logrus.Fields{
		"operation":   "backup_create",
		"kind":        string(kind),
		"description": description,
	}
	bl.Entry(ctx).WithFields(fields).Debug("Backup started")

	return func(err error, result *SnapshotResult) {
		fields["duration"] = time.Since(start).String()
		if result != nil {
			fields["file_name"] = result.FileName
			fields["size"] = result.Size
			fields["checksum"] = result.Checksum
			fields["total_records"] = result.TotalRecords
		}
		bl.finish(ctx, fields, err, "Backup completed", "Backup failed")
		bl.audit(ctx, "backup", "create", err, fields)
	}
}

// LogRestoreStart logs the start of a restore and returns the completion logger
func (bl *BackupLogger) LogRestoreStart(ctx context.Context, fileName string) func(error, *RestoreResult) {
	start := time.Now()
	fields := logrus.Fields{
		"operation": "restore",
		"file_name": fileName,
	}
	bl.Entry(ctx).WithFields(fields).Info("Restore started")

	return func(err error, result *RestoreResult) {
		fields["duration"] = time.Since(start).String()
		if result != nil {
			fields["pre_restore_file"] = result.PreRestoreFile
			fields["total_restored"] = result.TotalRestored
			fields["warnings"] = len(result.Warnings)
		}
		if recovery := RestoreRecoveryPoint(err); recovery != "" {
			fields["pre_restore_file"] = recovery
		}
		bl.finish(ctx, fields, err, "Restore completed", "Restore failed")
		bl.audit(ctx, "backup", "restore", err, fields)
	}
}

// LogRetention logs the outcome of a retention pass
func (bl *BackupLogger) LogRetention(ctx context.Context, result *RetentionResult, err error) {
	fields := logrus.Fields{"operation": "retention"}
	if result != nil {
		fields["deleted"] = len(result.Deleted)
		fields["kept"] = result.Kept
		fields["freed_bytes"] = result.FreedBytes
		for _, name := range result.Deleted {
			bl.audit(ctx, name, "delete", nil, logrus.Fields{"reason": "retention"})
		}
	}
	bl.finish(ctx, fields, err, "Retention applied", "Retention failed")
}

// LogDeletion logs an explicit delete
func (bl *BackupLogger) LogDeletion(ctx context.Context, fileName string, err error) {
	fields := logrus.Fields{"operation": "backup_delete", "file_name": fileName}
	bl.finish(ctx, fields, err, "Backup deleted", "Backup deletion failed")
	bl.audit(ctx, fileName, "delete", err, logrus.Fields{"reason": "explicit"})
}

// LogRemoteUpload logs a remote upload. Failures are warnings since they never fail a backup.
func (bl *BackupLogger) LogRemoteUpload(ctx context.Context, provider CloudProvider, fileName string, duration time.Duration, err error) {
	entry := bl.Entry(ctx).WithFields(logrus.Fields{
		"operation": "remote_upload",
		"provider":  string(provider),
		"file_name": fileName,
		"duration":  duration.String(),
	})
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Remote upload failed")
		return
	}
	entry.Info("Remote upload completed")
}

// LogVerification logs an integrity check
func (bl *BackupLogger) LogVerification(ctx context.Context, result *VerificationResult) {
	entry := bl.Entry(ctx).WithFields(logrus.Fields{
		"operation":      "backup_verify",
		"file_name":      result.FileName,
		"checksum_valid": result.ChecksumValid,
		"decryptable":    result.Decryptable,
	})
	if !result.Valid {
		entry.WithField("errors", result.Errors).Warn("Backup failed verification")
		return
	}
	entry.Debug("Backup verified")
}

func (bl *BackupLogger) finish(ctx context.Context, fields logrus.Fields, err error, okMsg, failMsg string) {
	entry := bl.Entry(ctx).WithFields(fields)
	if err != nil {
		entry.WithFields(logrus.Fields{
			"error":      err.Error(),
			"error_type": string(ErrorType(err)),
			"success":    false,
		}).Error(failMsg)
		return
	}
	entry.WithField("success", true).Info(okMsg)
}

func (bl *BackupLogger) audit(ctx context.Context, resource, action string, err error, details logrus.Fields) {
	if bl.auditLogger == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	bl.auditLogger.WithFields(logrus.Fields{
		"operation_id": logging.GetOperationID(ctx),
		"resource":     resource,
		"action":       action,
		"result":       result,
		"details":      details,
	}).Info("Audit log entry")
}
