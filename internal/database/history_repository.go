package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mrp-backup/internal/errors"
)

// History statuses
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// HistoryRecord is one row of backup_history
type HistoryRecord struct {
	ID           string     `json:"id" yaml:"id"`
	FileName     string     `json:"file_name" yaml:"file_name"`
	SizeBytes    int64      `json:"size_bytes" yaml:"size_bytes"`
	Kind         string     `json:"kind" yaml:"kind"`
	Status       string     `json:"status" yaml:"status"`
	DurationMs   int64      `json:"duration_ms" yaml:"duration_ms"`
	ErrorMessage string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// HistoryRepository persists backup runs. Rows are appended PENDING and moved
// exactly once to a terminal status.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a repository over backup_history
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts a new PENDING record
func (r *HistoryRepository) Append(ctx context.Context, record *HistoryRecord) error {
	if record.Status == "" {
		record.Status = StatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backup_history (id, file_name, size_bytes, kind, status, duration_ms, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.FileName, record.SizeBytes, record.Kind, record.Status,
		record.DurationMs, nullString(record.ErrorMessage), record.CreatedAt)
	if err != nil {
		return errors.WrapError(err, "failed to append backup history")
	}
	return nil
}

// Finish moves a PENDING record to a terminal status
func (r *HistoryRepository) Finish(ctx context.Context, record *HistoryRecord) error {
	if record.Status != StatusCompleted && record.Status != StatusFailed {
		return errors.NewAppError(errors.ErrorTypeValidation,
			fmt.Sprintf("invalid terminal status %q", record.Status), nil)
	}

	completedAt := time.Now().UTC()
	if record.CompletedAt != nil {
		completedAt = *record.CompletedAt
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE backup_history
		SET file_name = ?, size_bytes = ?, status = ?, duration_ms = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		record.FileName, record.SizeBytes, record.Status, record.DurationMs,
		nullString(record.ErrorMessage), completedAt, record.ID, StatusPending)
	if err != nil {
		return errors.WrapError(err, "failed to finish backup history")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapError(err, "failed to finish backup history")
	}
	if affected == 0 {
		return errors.NewAppError(errors.ErrorTypeValidation,
			fmt.Sprintf("history entry %s is not pending", record.ID), nil)
	}

	record.CompletedAt = &completedAt
	return nil
}

// Recent returns the newest records first
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]*HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, file_name, size_bytes, kind, status, duration_ms, error_message, created_at, completed_at
		FROM backup_history
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.WrapError(err, "failed to query backup history")
	}
	defer rows.Close()

	var records []*HistoryRecord
	for rows.Next() {
		var record HistoryRecord
		var errorMessage sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&record.ID, &record.FileName, &record.SizeBytes, &record.Kind, &record.Status,
			&record.DurationMs, &errorMessage, &record.CreatedAt, &completedAt); err != nil {
			return nil, errors.WrapError(err, "failed to scan backup history")
		}
		record.ErrorMessage = errorMessage.String
		if completedAt.Valid {
			t := completedAt.Time
			record.CompletedAt = &t
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, "error iterating backup history")
	}

	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
