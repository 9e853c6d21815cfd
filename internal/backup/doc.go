// Package backup implements point-in-time snapshots of the inventory store and
// recovery from them.
//
// A snapshot is one file in the backup directory holding a JSON header and a
// compressed, optionally AES-256-GCM sealed copy of every registered table,
// accompanied by a .sha256 sidecar. Snapshots are taken at startup, on a
// schedule, on demand and automatically before every restore.
//
// Core Components:
//
// - Manager: the facade used by the command line and the daemon
// - SnapshotWriter and BackupValidator: write and verify snapshot files
// - RestoreCoordinator: verify, take a PRE_RESTORE safety snapshot, replace
// - CompareEngine: per-table added/modified/deleted counts between two sides
// - RetentionManager and DiskMonitor: bound local disk use
// - Scheduler: HOURLY, DAILY or WEEKLY automatic backups
// - NotificationDispatcher and RemoteUploader: webhook, Slack and file
// events, and off-site copies on S3, GCS, Azure or MinIO
//
// Every snapshot-producing or store-mutating operation holds the OperationLock;
// a second caller fails fast with an OperationInProgressError.
//
// Example usage:
//
//	manager, err := backup.NewManager(config, backup.Dependencies{
//		Store:    database.NewStore(db, registry, logger),
//		History:  database.NewHistoryRepository(db),
//		Settings: database.NewSettingsRepository(db),
//		Logger:   logger,
//	})
//	if err != nil {
//		return err
//	}
//
//	result, err := manager.CreateBackup(ctx, backup.KindManual, "before stock count")
//	if err != nil {
//		return fmt.Errorf("backup failed: %w", err)
//	}
//
//	diff, err := manager.CompareWithLive(ctx, result.FileName)
package backup
