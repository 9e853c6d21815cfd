package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotName(at time.Time, kind Kind) string {
	return fmt.Sprintf("%s%s-%s%s", fileNamePrefix, at.UTC().Format(fileTimeLayout), strings.ToLower(string(kind)), fileNameExt)
}

// seedSnapshots writes one placeholder snapshot per timestamp, oldest first
func seedSnapshots(t *testing.T, local *LocalStore, times ...time.Time) []string {
	t.Helper()
	names := make([]string, 0, len(times))
	for _, at := range times {
		name := snapshotName(at, KindScheduled)
		_, _, err := local.WriteAtomic(name, []byte("snapshot "+name))
		require.NoError(t, err)
		names = append(names, name)
	}
	return names
}

func newTestRetention(t *testing.T, now time.Time) (*RetentionManager, *LocalStore) {
	t.Helper()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	rm := NewRetentionManager(local, newDefaultBackupLogger(nil))
	rm.now = func() time.Time { return now }
	return rm, local
}

func retentionSettings(days, count int) *BackupSettings {
	s := quietSettings()
	s.RetentionDays = days
	s.MaxBackupCount = count
	return s
}

func TestRetentionManager_Plan(t *testing.T) {
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	ages := []time.Duration{40, 20, 10, 5, 1}
	times := make([]time.Time, len(ages))
	for i, days := range ages {
		times[i] = now.Add(-days * 24 * time.Hour)
	}

	tests := []struct {
		name       string
		settings   *BackupSettings
		wantKeep   []int
		wantRemove []int
	}{
		{"both rules disabled", retentionSettings(0, 0), []int{0, 1, 2, 3, 4}, nil},
		{"count only", retentionSettings(0, 3), []int{2, 3, 4}, []int{0, 1}},
		{"age only", retentionSettings(15, 0), []int{2, 3, 4}, []int{0, 1}},
		{"union of both rules", retentionSettings(7, 3), []int{2, 3, 4}, []int{0, 1}},
		{"age keeps more than count", retentionSettings(30, 1), []int{1, 2, 3, 4}, []int{0}},
		{"newest always kept", retentionSettings(1, 0), []int{4}, []int{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm, local := newTestRetention(t, now)
			names := seedSnapshots(t, local, times...)

			keep, remove, err := rm.Plan(tt.settings)
			require.NoError(t, err)
			assert.Equal(t, pick(names, tt.wantKeep), keep)
			assert.Equal(t, pick(names, tt.wantRemove), remove)
		})
	}
}

func pick(names []string, idx []int) []string {
	if len(idx) == 0 {
		return nil
	}
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, names[i])
	}
	return out
}

func TestRetentionManager_ApplyRetention_KeepsNewestByCount(t *testing.T) {
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	rm, local := newTestRetention(t, now)

	var times []time.Time
	for i := 4; i >= 0; i-- {
		times = append(times, now.Add(-time.Duration(i)*time.Hour))
	}
	names := seedSnapshots(t, local, times...)

	result, err := rm.ApplyRetention(context.Background(), retentionSettings(0, 3))
	require.NoError(t, err)
	assert.Equal(t, names[:2], result.Deleted)
	assert.Equal(t, 3, result.Kept)
	assert.Positive(t, result.FreedBytes)

	remaining, err := local.Names()
	require.NoError(t, err)
	assert.Equal(t, names[2:], remaining)

	for _, name := range names[:2] {
		_, err := os.Stat(filepath.Join(local.Dir(), name+ChecksumSuffix))
		assert.True(t, os.IsNotExist(err), "sidecar of %s should be gone", name)
	}

	again, err := rm.ApplyRetention(context.Background(), retentionSettings(0, 3))
	require.NoError(t, err)
	assert.Empty(t, again.Deleted)
	assert.Equal(t, 3, again.Kept)
}

func TestRetentionManager_ApplyRetention_EmptyDirectory(t *testing.T) {
	rm, _ := newTestRetention(t, time.Now())

	result, err := rm.ApplyRetention(context.Background(), retentionSettings(1, 1))
	require.NoError(t, err)
	assert.Empty(t, result.Deleted)
	assert.Zero(t, result.Kept)
}

func TestRetentionManager_IgnoresForeignFiles(t *testing.T) {
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	rm, local := newTestRetention(t, now)
	seedSnapshots(t, local, now.Add(-48*time.Hour), now.Add(-time.Hour))

	foreign := filepath.Join(local.Dir(), "notes.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep me"), 0640))

	result, err := rm.ApplyRetention(context.Background(), retentionSettings(0, 1))
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 1)

	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}

func TestRetentionManager_Cancelled(t *testing.T) {
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	rm, local := newTestRetention(t, now)
	seedSnapshots(t, local, now.Add(-3*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rm.ApplyRetention(ctx, retentionSettings(0, 1))
	require.Error(t, err)

	remaining, err := local.Names()
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}
