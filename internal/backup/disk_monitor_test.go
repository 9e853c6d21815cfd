package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyThresholdGb is roughly 1 KiB
const tinyThresholdGb = 1.0 / (1 << 20)

func TestDiskMonitor_GetUsage(t *testing.T) {
	local := newTestLocalStore(t)
	monitor := NewDiskMonitor(local, nil, nil, nil)
	base := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	usage, err := monitor.GetUsage(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, usage.BackupCount)
	assert.Zero(t, usage.TotalBytes)
	assert.Empty(t, usage.OldestBackup)

	names := seedSnapshots(t, local, base, base.Add(time.Hour))

	usage, err = monitor.GetUsage(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.BackupCount)
	assert.Equal(t, names[0], usage.OldestBackup)
	assert.Equal(t, names[1], usage.NewestBackup)
	assert.Equal(t, int64(10)<<30, usage.ThresholdBytes)
	assert.False(t, usage.IsOverThreshold)

	var total int64
	for _, name := range names {
		info, err := os.Stat(filepath.Join(local.Dir(), name))
		require.NoError(t, err)
		total += info.Size()
	}
	assert.Equal(t, total, usage.TotalBytes)
	assert.InDelta(t, float64(total)/float64(10<<30)*100, usage.UsagePercent, 1e-9)
}

func TestDiskMonitor_ZeroThreshold(t *testing.T) {
	local := newTestLocalStore(t)
	seedSnapshots(t, local, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC))

	usage, err := NewDiskMonitor(local, nil, nil, nil).GetUsage(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, usage.ThresholdBytes)
	assert.Zero(t, usage.UsagePercent)
	assert.False(t, usage.IsOverThreshold)
}

func TestDiskMonitor_Check_FiresOncePerCrossing(t *testing.T) {
	local := newTestLocalStore(t)
	events := &recordingNotifier{}
	monitor := NewDiskMonitor(local, events, NewMetricsCollector("test"), nil)
	ctx := context.Background()

	settings := quietSettings()
	settings.DiskThresholdGb = tinyThresholdGb

	large := snapshotName(time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), KindManual)
	_, _, err := local.WriteAtomic(large, bytes.Repeat([]byte{'x'}, 4096))
	require.NoError(t, err)

	usage, err := monitor.Check(ctx, settings)
	require.NoError(t, err)
	assert.True(t, usage.IsOverThreshold)
	require.Len(t, events.ofType(EventDiskThresholdExceeded), 1)

	// still over: no repeat alert
	_, err = monitor.Check(ctx, settings)
	require.NoError(t, err)
	assert.Len(t, events.ofType(EventDiskThresholdExceeded), 1)

	// back under, then over again
	require.NoError(t, local.Delete(large))
	usage, err = monitor.Check(ctx, settings)
	require.NoError(t, err)
	assert.False(t, usage.IsOverThreshold)

	_, _, err = local.WriteAtomic(snapshotName(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), KindManual), bytes.Repeat([]byte{'y'}, 4096))
	require.NoError(t, err)
	_, err = monitor.Check(ctx, settings)
	require.NoError(t, err)

	alerts := events.ofType(EventDiskThresholdExceeded)
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(4096), alerts[1].Size)
	assert.Contains(t, alerts[1].Error, "threshold")
}

func TestDiskMonitor_Check_StateSurvivesRestart(t *testing.T) {
	local := newTestLocalStore(t)
	events := &recordingNotifier{}
	ctx := context.Background()

	settings := quietSettings()
	settings.DiskThresholdGb = tinyThresholdGb

	large := snapshotName(time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), KindManual)
	_, _, err := local.WriteAtomic(large, bytes.Repeat([]byte{'x'}, 4096))
	require.NoError(t, err)

	// every CLI invocation builds its own monitor over the same directory
	for i := 0; i < 3; i++ {
		_, err := NewDiskMonitor(local, events, nil, nil).Check(ctx, settings)
		require.NoError(t, err)
	}
	assert.Len(t, events.ofType(EventDiskThresholdExceeded), 1)

	names, err := local.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{large}, names, "the state marker is not a snapshot")

	require.NoError(t, local.Delete(large))
	_, err = NewDiskMonitor(local, events, nil, nil).Check(ctx, settings)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(local.Dir(), overMarkerName))
	assert.True(t, os.IsNotExist(err))
}
