package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur during backup operations
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	BackupErrorTypeValidation           BackupErrorType = "VALIDATION_ERROR"
	BackupErrorTypeIntegrity            BackupErrorType = "INTEGRITY_ERROR"
	BackupErrorTypeDecryption           BackupErrorType = "DECRYPTION_ERROR"
	BackupErrorTypeDiskFull             BackupErrorType = "DISK_FULL_ERROR"
	BackupErrorTypeIO                   BackupErrorType = "IO_ERROR"
	BackupErrorTypeOperationInProgress  BackupErrorType = "OPERATION_IN_PROGRESS_ERROR"
	BackupErrorTypeRemoteUpload         BackupErrorType = "REMOTE_UPLOAD_ERROR"
	BackupErrorTypeNotificationDelivery BackupErrorType = "NOTIFICATION_DELIVERY_ERROR"
	BackupErrorTypeRestore              BackupErrorType = "RESTORE_ERROR"
	BackupErrorTypeNotFound             BackupErrorType = "NOT_FOUND_ERROR"
	BackupErrorTypeConfiguration        BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeDatabase             BackupErrorType = "DATABASE_ERROR"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors
func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

func NewIntegrityError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeIntegrity, message, cause)
}

func NewDecryptionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDecryption, message, cause)
}

func NewDiskFullError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDiskFull, message, cause)
}

func NewIOError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeIO, message, cause)
}

// NewCompressionError reports a codec failure. Codec failures are I/O errors tagged with their stage.
func NewCompressionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeIO, message, cause).WithContext("stage", "compression")
}

// NewEncryptionError reports a failure to seal a payload or resolve the key
func NewEncryptionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause).WithContext("stage", "encryption")
}

func NewOperationInProgressError(operation string) *BackupError {
	return NewBackupError(BackupErrorTypeOperationInProgress,
		fmt.Sprintf("cannot start %s: another backup or restore is running", operation), nil).
		WithContext("operation", operation)
}

func NewRemoteUploadError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeRemoteUpload, message, cause)
}

func NewNotificationDeliveryError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotificationDelivery, message, cause)
}

func NewRestoreError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeRestore, message, cause)
}

func NewNotFoundError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeNotFound, message, cause)
}

func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

func NewDatabaseError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDatabase, message, cause)
}

// ValidationError represents validation-specific errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ErrorType returns the BackupErrorType carried by err, or "" if err is not a BackupError
func ErrorType(err error) BackupErrorType {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Type
	}
	return ""
}

func hasType(err error, errorType BackupErrorType) bool {
	return err != nil && ErrorType(err) == errorType
}

func IsValidationError(err error) bool          { return hasType(err, BackupErrorTypeValidation) }
func IsIntegrityError(err error) bool           { return hasType(err, BackupErrorTypeIntegrity) }
func IsDecryptionError(err error) bool          { return hasType(err, BackupErrorTypeDecryption) }
func IsDiskFullError(err error) bool            { return hasType(err, BackupErrorTypeDiskFull) }
func IsIOError(err error) bool                  { return hasType(err, BackupErrorTypeIO) }
func IsOperationInProgressError(err error) bool { return hasType(err, BackupErrorTypeOperationInProgress) }
func IsRemoteUploadError(err error) bool        { return hasType(err, BackupErrorTypeRemoteUpload) }
func IsRestoreError(err error) bool             { return hasType(err, BackupErrorTypeRestore) }
func IsNotFoundError(err error) bool            { return hasType(err, BackupErrorTypeNotFound) }
func IsConfigurationError(err error) bool       { return hasType(err, BackupErrorTypeConfiguration) }
func IsDatabaseError(err error) bool            { return hasType(err, BackupErrorTypeDatabase) }

// IsPermanent determines if an error must be surfaced rather than retried
func IsPermanent(err error) bool {
	switch ErrorType(err) {
	case BackupErrorTypeValidation, BackupErrorTypeIntegrity, BackupErrorTypeDecryption,
		BackupErrorTypeConfiguration, BackupErrorTypeNotFound:
		return true
	default:
		return false
	}
}
