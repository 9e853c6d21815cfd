package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DiskMonitor reports local snapshot usage against the settings threshold and
// alerts once each time usage crosses it upward. The over state is kept as a
// marker file in the backup directory so a new process does not alert again.
type DiskMonitor struct {
	local    *LocalStore
	notifier Notifier
	metrics  *MetricsCollector
	logger   *BackupLogger

	mu sync.Mutex
}

// NewDiskMonitor creates a disk monitor
func NewDiskMonitor(local *LocalStore, notifier Notifier, metrics *MetricsCollector, logger *BackupLogger) *DiskMonitor {
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	return &DiskMonitor{
		local:    local,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// GetUsage sums the sizes of local snapshots. A threshold of zero disables the
// threshold and leaves UsagePercent at 0.
func (dm *DiskMonitor) GetUsage(ctx context.Context, thresholdGb float64) (*DiskUsage, error) {
	names, err := dm.local.Names()
	if err != nil {
		return nil, err
	}

	usage := &DiskUsage{}
	if thresholdGb > 0 {
		usage.ThresholdBytes = int64(thresholdGb * float64(1<<30))
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, NewIOError("disk usage scan cancelled", err)
		}
		path, err := dm.local.Path(name)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			// removed by retention between listing and stat
			if os.IsNotExist(err) {
				continue
			}
			return nil, NewIOError(fmt.Sprintf("failed to stat backup %s", name), err)
		}
		usage.TotalBytes += info.Size()
		usage.BackupCount++
		if usage.OldestBackup == "" {
			usage.OldestBackup = name
		}
		usage.NewestBackup = name
	}

	if usage.ThresholdBytes > 0 {
		usage.UsagePercent = float64(usage.TotalBytes) / float64(usage.ThresholdBytes) * 100
		usage.IsOverThreshold = usage.TotalBytes > usage.ThresholdBytes
	}
	return usage, nil
}

// Check refreshes usage and fires DISK_THRESHOLD_EXCEEDED only on an
// under-to-over transition.
func (dm *DiskMonitor) Check(ctx context.Context, settings *BackupSettings) (*DiskUsage, error) {
	usage, err := dm.GetUsage(ctx, settings.DiskThresholdGb)
	if err != nil {
		return nil, err
	}
	dm.metrics.RecordStorageUsage(usage)

	dm.mu.Lock()
	wasOver := dm.wasOver()
	if usage.IsOverThreshold != wasOver {
		dm.setOver(ctx, usage.IsOverThreshold)
	}
	dm.mu.Unlock()
	crossed := usage.IsOverThreshold && !wasOver

	if !crossed {
		return usage, nil
	}

	dm.logger.Entry(ctx).WithFields(logrus.Fields{
		"total_bytes":     usage.TotalBytes,
		"threshold_bytes": usage.ThresholdBytes,
		"usage_percent":   fmt.Sprintf("%.1f", usage.UsagePercent),
	}).Warn("Backup storage exceeded disk threshold")

	if dm.notifier != nil {
		dm.notifier.Notify(ctx, &Event{
			Type:     EventDiskThresholdExceeded,
			FileName: usage.NewestBackup,
			Size:     usage.TotalBytes,
			Error:    fmt.Sprintf("backup storage uses %.1f%% of the %s threshold", usage.UsagePercent, formatBytes(usage.ThresholdBytes)),
		})
	}
	return usage, nil
}

func (dm *DiskMonitor) markerPath() string {
	return filepath.Join(dm.local.Dir(), overMarkerName)
}

func (dm *DiskMonitor) wasOver() bool {
	_, err := os.Stat(dm.markerPath())
	return err == nil
}

// setOver records the state for the next check. A failed write is logged
// and costs at most one repeated alert.
func (dm *DiskMonitor) setOver(ctx context.Context, over bool) {
	var err error
	if over {
		err = os.WriteFile(dm.markerPath(), []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), defaultFilePerms)
	} else if rmErr := os.Remove(dm.markerPath()); rmErr != nil && !os.IsNotExist(rmErr) {
		err = rmErr
	}
	if err != nil {
		dm.logger.Entry(ctx).WithError(err).Warn("Failed to record disk threshold state")
	}
}
