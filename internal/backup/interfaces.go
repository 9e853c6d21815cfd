package backup

import (
	"context"

	"mrp-backup/internal/database"
	"mrp-backup/internal/schema"
)

// LiveStore is the relational store a snapshot is taken from and restored into
type LiveStore interface {
	// Export reads every registered table at one point in time
	Export(ctx context.Context) (*schema.Dataset, error)
	// Replace swaps the live contents of every dataset table atomically
	Replace(ctx context.Context, dataset *schema.Dataset) (map[string]int64, error)
}

// HistoryStore persists the append-only backup history
type HistoryStore interface {
	Append(ctx context.Context, record *database.HistoryRecord) error
	Finish(ctx context.Context, record *database.HistoryRecord) error
	Recent(ctx context.Context, limit int) ([]*database.HistoryRecord, error)
}

// SettingsRepository persists the singleton settings row
type SettingsRepository interface {
	Load(ctx context.Context) (*database.SettingsRecord, bool, error)
	Save(ctx context.Context, record *database.SettingsRecord) error
}

// RemoteUploader pushes a local snapshot to object storage
type RemoteUploader interface {
	Upload(ctx context.Context, localPath, objectName string) error
	Provider() CloudProvider
}

// Notifier delivers engine events
type Notifier interface {
	Notify(ctx context.Context, event *Event)
}
