package backup

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"mrp-backup/internal/schema"
)

// BackupValidator checks snapshots before they are trusted
type BackupValidator struct {
	local     *LocalStore
	checksums *ChecksumService
	codec     *archiveCodec
	logger    *BackupLogger
}

// NewBackupValidator creates a validator that decodes with the given encryption settings
func NewBackupValidator(local *LocalStore, encryption *EncryptionManager, logger *BackupLogger) *BackupValidator {
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	return &BackupValidator{
		local:     local,
		checksums: NewChecksumService(),
		codec:     newArchiveCodec(NewCompressionManager(), encryption, 0),
		logger:    logger,
	}
}

// Verify runs every check and reports the findings instead of failing.
// Only an invalid name or a missing file returns an error.
func (v *BackupValidator) Verify(ctx context.Context, fileName string) (*VerificationResult, error) {
	data, err := v.local.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{
		FileName:  fileName,
		Actual:    v.checksums.Sum(data),
		CheckedAt: time.Now().UTC(),
	}

	path, _ := v.local.Path(fileName)
	expected, err := v.checksums.Recorded(path)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.Expected = expected
		result.ChecksumValid = checksumsEqual(expected, result.Actual)
		if !result.ChecksumValid {
			result.Errors = append(result.Errors, fmt.Sprintf("checksum mismatch: recorded %s, actual %s", expected, result.Actual))
		}
	}

	meta, _, err := v.codec.decode(data)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		if m, _, herr := readHeader(bytes.NewReader(data)); herr == nil {
			result.Metadata = m
		}
	} else {
		result.Metadata = meta
		result.Decryptable = true
	}

	result.Valid = result.ChecksumValid && result.Decryptable
	v.logger.LogVerification(ctx, result)
	return result, nil
}

// Load returns the decoded contents of a snapshot whose checksum re-validates.
// The hash is taken over the same bytes that are decoded.
func (v *BackupValidator) Load(ctx context.Context, fileName string) (*SnapshotMetadata, *schema.Dataset, error) {
	data, err := v.local.ReadFile(fileName)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, NewIOError("load cancelled", err)
	}

	path, _ := v.local.Path(fileName)
	expected, err := v.checksums.Recorded(path)
	if err != nil {
		return nil, nil, NewIntegrityError(fmt.Sprintf("backup %s has no usable checksum", fileName), err).
			WithContext("file_name", fileName)
	}

	actual := v.checksums.Sum(data)
	if !checksumsEqual(expected, actual) {
		return nil, nil, NewIntegrityError(fmt.Sprintf("backup %s failed checksum verification", fileName), nil).
			WithContext("file_name", fileName).
			WithContext("expected", expected).
			WithContext("actual", actual)
	}

	meta, dataset, err := v.codec.decode(data)
	if err != nil {
		if be, ok := err.(*BackupError); ok {
			be.WithContext("file_name", fileName)
		}
		return nil, nil, err
	}
	return meta, dataset, nil
}

func checksumsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
