package backup

import (
	"context"
	"os"
	"time"
)

// RetentionManager deletes snapshots that no retention rule keeps
type RetentionManager struct {
	local  *LocalStore
	logger *BackupLogger
	now    func() time.Time
}

// NewRetentionManager creates a retention manager over the local store
func NewRetentionManager(local *LocalStore, logger *BackupLogger) *RetentionManager {
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	return &RetentionManager{local: local, logger: logger, now: time.Now}
}

type retentionCandidate struct {
	name      string
	createdAt time.Time
}

// Plan splits the snapshots into keep and delete sets without touching them.
//
// keep = created within RetentionDays ∪ the MaxBackupCount newest ∪ the newest.
// A zero value disables its rule; with both rules disabled nothing is deleted.
func (rm *RetentionManager) Plan(settings *BackupSettings) (keep, remove []string, err error) {
	names, err := rm.local.Names()
	if err != nil {
		return nil, nil, err
	}
	if len(names) == 0 {
		return nil, nil, nil
	}
	if settings.RetentionDays <= 0 && settings.MaxBackupCount <= 0 {
		return names, nil, nil
	}

	candidates := make([]retentionCandidate, 0, len(names))
	for _, name := range names {
		createdAt, _, err := ParseFileName(name)
		if err != nil {
			continue
		}
		candidates = append(candidates, retentionCandidate{name: name, createdAt: createdAt})
	}

	// names sort chronologically, so the tail is the newest
	cutoff := rm.now().Add(-time.Duration(settings.RetentionDays) * 24 * time.Hour)
	newest := len(candidates) - 1
	for i, c := range candidates {
		rank := newest - i
		kept := i == newest ||
			(settings.MaxBackupCount > 0 && rank < settings.MaxBackupCount) ||
			(settings.RetentionDays > 0 && !c.createdAt.Before(cutoff))
		if kept {
			keep = append(keep, c.name)
		} else {
			remove = append(remove, c.name)
		}
	}
	return keep, remove, nil
}

// ApplyRetention deletes every snapshot outside the keep set, file and sidecar.
// Running it again without new snapshots deletes nothing.
func (rm *RetentionManager) ApplyRetention(ctx context.Context, settings *BackupSettings) (*RetentionResult, error) {
	keep, remove, err := rm.Plan(settings)
	if err != nil {
		rm.logger.LogRetention(ctx, nil, err)
		return nil, err
	}

	result := &RetentionResult{Deleted: []string{}, Kept: len(keep)}
	for _, name := range remove {
		if err := ctx.Err(); err != nil {
			rm.logger.LogRetention(ctx, result, err)
			return result, NewIOError("retention interrupted", err)
		}

		var size int64
		if path, err := rm.local.Path(name); err == nil {
			if info, err := os.Stat(path); err == nil {
				size = info.Size()
			}
		}

		if err := rm.local.Delete(name); err != nil {
			if IsNotFoundError(err) {
				continue
			}
			rm.logger.LogRetention(ctx, result, err)
			return result, err
		}
		result.Deleted = append(result.Deleted, name)
		result.FreedBytes += size
	}

	rm.logger.LogRetention(ctx, result, nil)
	return result, nil
}
