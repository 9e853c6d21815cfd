package backup

import (
	"fmt"
	"strings"
	"time"
)

// FormatVersion is written into every snapshot header
const FormatVersion = 1

// Kind tells why a snapshot was taken
type Kind string

const (
	KindStartup    Kind = "STARTUP"
	KindScheduled  Kind = "SCHEDULED"
	KindManual     Kind = "MANUAL"
	KindPreRestore Kind = "PRE_RESTORE"
)

// ParseKind parses a snapshot kind, case-insensitively
func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(s)))
	switch kind {
	case KindStartup, KindScheduled, KindManual, KindPreRestore:
		return kind, nil
	}
	return "", NewValidationError(fmt.Sprintf("invalid backup kind %q", s), nil)
}

type CompressionType string

const (
	CompressionTypeNone CompressionType = "NONE"
	CompressionTypeGzip CompressionType = "GZIP"
	CompressionTypeLZ4  CompressionType = "LZ4"
	CompressionTypeZstd CompressionType = "ZSTD"
)

func isValidCompressionType(t CompressionType) bool {
	switch t {
	case CompressionTypeNone, CompressionTypeGzip, CompressionTypeLZ4, CompressionTypeZstd:
		return true
	}
	return false
}

// SnapshotMetadata is the unencrypted header of a snapshot file
type SnapshotMetadata struct {
	FormatVersion int              `json:"format_version" yaml:"format_version"`
	AppVersion    string           `json:"app_version" yaml:"app_version"`
	SchemaVersion string           `json:"schema_version" yaml:"schema_version"`
	Kind          Kind             `json:"kind" yaml:"kind"`
	Description   string           `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt     time.Time        `json:"created_at" yaml:"created_at"`
	TableCounts   map[string]int64 `json:"table_counts" yaml:"table_counts"`
	TotalRecords  int64            `json:"total_records" yaml:"total_records"`
	Compression   CompressionType  `json:"compression" yaml:"compression"`
	Encrypted     bool             `json:"encrypted" yaml:"encrypted"`
	KeyDerivation string           `json:"key_derivation,omitempty" yaml:"key_derivation,omitempty"`
}

// Snapshot describes a snapshot file in the backup directory
type Snapshot struct {
	FileName      string            `json:"file_name" yaml:"file_name"`
	CreatedAt     time.Time         `json:"created_at" yaml:"created_at"`
	Size          int64             `json:"size" yaml:"size"`
	Checksum      string            `json:"checksum" yaml:"checksum"`
	ChecksumValid bool              `json:"checksum_valid" yaml:"checksum_valid"`
	Encrypted     bool              `json:"encrypted" yaml:"encrypted"`
	Kind          Kind              `json:"kind" yaml:"kind"`
	Metadata      *SnapshotMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SnapshotResult is returned by a successful snapshot write
type SnapshotResult struct {
	FileName     string        `json:"file_name"`
	Size         int64         `json:"size"`
	Checksum     string        `json:"checksum"`
	Kind         Kind          `json:"kind"`
	TotalRecords int64         `json:"total_records"`
	Duration     time.Duration `json:"duration"`
}

// VerificationResult reports the integrity of one snapshot
type VerificationResult struct {
	FileName      string            `json:"file_name"`
	Valid         bool              `json:"valid"`
	ChecksumValid bool              `json:"checksum_valid"`
	Expected      string            `json:"expected_checksum"`
	Actual        string            `json:"actual_checksum"`
	Decryptable   bool              `json:"decryptable"`
	Errors        []string          `json:"errors,omitempty"`
	Metadata      *SnapshotMetadata `json:"metadata,omitempty"`
	CheckedAt     time.Time         `json:"checked_at"`
}

// RestoreResult is returned by a successful restore
type RestoreResult struct {
	FileName       string           `json:"file_name"`
	PreRestoreFile string           `json:"pre_restore_file"`
	RestoredTables map[string]int64 `json:"restored_tables"`
	TotalRestored  int64            `json:"total_restored"`
	Warnings       []string         `json:"warnings,omitempty"`
	Duration       time.Duration    `json:"duration"`
}

// DiskUsage summarizes local snapshot storage against the configured threshold
type DiskUsage struct {
	TotalBytes      int64   `json:"total_bytes" yaml:"total_bytes"`
	BackupCount     int     `json:"backup_count" yaml:"backup_count"`
	OldestBackup    string  `json:"oldest_backup,omitempty" yaml:"oldest_backup,omitempty"`
	NewestBackup    string  `json:"newest_backup,omitempty" yaml:"newest_backup,omitempty"`
	ThresholdBytes  int64   `json:"threshold_bytes" yaml:"threshold_bytes"`
	UsagePercent    float64 `json:"usage_percent" yaml:"usage_percent"`
	IsOverThreshold bool    `json:"is_over_threshold" yaml:"is_over_threshold"`
}

// RetentionResult lists the snapshots removed by a retention pass
type RetentionResult struct {
	Deleted    []string `json:"deleted"`
	Kept       int      `json:"kept"`
	FreedBytes int64    `json:"freed_bytes"`
}
