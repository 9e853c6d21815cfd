package database

import (
	"context"
	"database/sql"
)

// Tables owned by the backup engine. They are never part of a snapshot.
const (
	HistoryTable  = "backup_history"
	SettingsTable = "backup_settings"
)

var bootstrapStatements = []string{
	`CREATE TABLE IF NOT EXISTS backup_history (
		id CHAR(36) NOT NULL PRIMARY KEY,
		file_name VARCHAR(255) NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		kind VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		error_message TEXT NULL,
		created_at DATETIME(3) NOT NULL,
		completed_at DATETIME(3) NULL,
		INDEX idx_backup_history_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS backup_settings (
		id TINYINT NOT NULL PRIMARY KEY,
		auto_backup_enabled BOOLEAN NOT NULL,
		frequency VARCHAR(8) NOT NULL,
		time_of_day CHAR(5) NOT NULL,
		day_of_week TINYINT NOT NULL DEFAULT 0,
		retention_days INT NOT NULL,
		max_backup_count INT NOT NULL,
		cloud_backup_enabled BOOLEAN NOT NULL,
		cloud_provider VARCHAR(8) NOT NULL,
		encryption_enabled BOOLEAN NOT NULL,
		notify_on_success BOOLEAN NOT NULL,
		notify_on_failure BOOLEAN NOT NULL,
		webhook_url VARCHAR(1024) NULL,
		disk_threshold_gb DOUBLE NOT NULL,
		updated_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the engine's own tables when they are missing
func (s *Service) EnsureSchema(ctx context.Context, db *sql.DB) error {
	return s.execStatements(ctx, db, bootstrapStatements)
}
