package backup

import (
	"context"
	"time"

	"mrp-backup/internal/database"

	"github.com/google/uuid"
)

// HistoryEntry is the external view of one backup run
type HistoryEntry = database.HistoryRecord

// historyRecorder moves one history row from PENDING to a terminal status
type historyRecorder struct {
	store HistoryStore
}

func (h *historyRecorder) begin(ctx context.Context, kind Kind) (*database.HistoryRecord, error) {
	record := &database.HistoryRecord{
		ID:        uuid.New().String(),
		Kind:      string(kind),
		Status:    database.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Append(ctx, record); err != nil {
		return nil, NewDatabaseError("failed to record backup start", err)
	}
	return record, nil
}

// complete marks record COMPLETED. It uses its own context so a cancelled run
// still reaches a terminal status.
func (h *historyRecorder) complete(record *database.HistoryRecord, result *SnapshotResult, started time.Time) error {
	record.Status = database.StatusCompleted
	record.FileName = result.FileName
	record.SizeBytes = result.Size
	record.DurationMs = time.Since(started).Milliseconds()
	return h.finish(record)
}

func (h *historyRecorder) fail(record *database.HistoryRecord, fileName string, cause error, started time.Time) error {
	record.Status = database.StatusFailed
	record.FileName = fileName
	record.DurationMs = time.Since(started).Milliseconds()
	record.ErrorMessage = cause.Error()
	return h.finish(record)
}

func (h *historyRecorder) finish(record *database.HistoryRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.store.Finish(ctx, record); err != nil {
		return NewDatabaseError("failed to record backup outcome", err)
	}
	return nil
}
