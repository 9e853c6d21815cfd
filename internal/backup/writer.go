package backup

import (
	"context"
	"time"

	"mrp-backup/internal/schema"
)

// SnapshotWriter exports the live store into one snapshot file. Callers hold
// the operation lock.
type SnapshotWriter struct {
	store         LiveStore
	local         *LocalStore
	codec         *archiveCodec
	encryption    *EncryptionManager
	compression   CompressionType
	appVersion    string
	schemaVersion string
	now           func() time.Time
}

// NewSnapshotWriter creates a snapshot writer
func NewSnapshotWriter(store LiveStore, local *LocalStore, encryption *EncryptionManager, config *BackupSystemConfig) *SnapshotWriter {
	return &SnapshotWriter{
		store:         store,
		local:         local,
		codec:         newArchiveCodec(NewCompressionManager(), encryption, config.Compression.Level),
		encryption:    encryption,
		compression:   config.Compression.Algorithm,
		appVersion:    config.AppVersion,
		schemaVersion: config.SchemaVersion,
		now:           time.Now,
	}
}

// CreateSnapshot reads the whole store in one consistent transaction and writes it out
func (w *SnapshotWriter) CreateSnapshot(ctx context.Context, kind Kind, description string, encrypt bool) (*SnapshotResult, error) {
	start := w.now()

	dataset, err := w.store.Export(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewIOError("snapshot cancelled while reading the live store", ctx.Err())
		}
		return nil, NewDatabaseError("failed to read the live store", err)
	}

	result, err := w.WriteDataset(ctx, kind, description, dataset, encrypt)
	if err != nil {
		return nil, err
	}
	result.Duration = w.now().Sub(start)
	return result, nil
}

// WriteDataset writes an already exported dataset. Restore uses it to persist
// the exact state it is about to replace.
func (w *SnapshotWriter) WriteDataset(ctx context.Context, kind Kind, description string, dataset *schema.Dataset, encrypt bool) (*SnapshotResult, error) {
	start := w.now()

	if err := ctx.Err(); err != nil {
		return nil, NewIOError("snapshot cancelled before encoding", err)
	}
	if encrypt && (w.encryption == nil || !w.encryption.Configured()) {
		return nil, NewConfigurationError("encryption is enabled but no encryption key source is configured", nil)
	}

	meta := &SnapshotMetadata{
		FormatVersion: FormatVersion,
		AppVersion:    w.appVersion,
		SchemaVersion: w.schemaVersion,
		Kind:          kind,
		Description:   SanitizeDescription(description),
		CreatedAt:     start.UTC(),
		TableCounts:   dataset.RowCounts(),
		TotalRecords:  dataset.TotalRows(),
		Compression:   w.compression,
		Encrypted:     encrypt,
	}
	if encrypt {
		meta.KeyDerivation = w.encryption.KeyDerivation()
	}

	data, err := w.codec.encode(meta, dataset)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, NewIOError("snapshot cancelled before writing", err)
	}

	fileName := w.local.NextFileName(kind, start)
	checksum, size, err := w.local.WriteAtomic(fileName, data)
	if err != nil {
		return nil, err
	}

	return &SnapshotResult{
		FileName:     fileName,
		Size:         size,
		Checksum:     checksum,
		Kind:         kind,
		TotalRecords: meta.TotalRecords,
		Duration:     w.now().Sub(start),
	}, nil
}
