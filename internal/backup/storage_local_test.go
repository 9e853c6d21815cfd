package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	local, err := NewLocalStore(filepath.Join(t.TempDir(), "backups"))
	require.NoError(t, err)
	return local
}

func TestNewLocalStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "backups")
	local, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, local.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewLocalStore("   ")
	assert.True(t, IsValidationError(err))
}

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"mrp-backup-20260310-020000.000-scheduled.bak", true},
		{"mrp-backup-20260310-020000.123-manual.bak", true},
		{"mrp-backup-20260310-020000.123-pre_restore.bak", true},
		{"mrp-backup-20260310-020000.123-startup.bak", true},
		{"mrp-backup-20260310-020000.123-hourly.bak", false},
		{"mrp-backup-20260310-020000-manual.bak", false},
		{"mrp-backup-20260310-020000.123-manual.bak.sha256", false},
		{"../mrp-backup-20260310-020000.123-manual.bak", false},
		{"sub/mrp-backup-20260310-020000.123-manual.bak", false},
		{"/etc/passwd", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsValidationError(err))
			}
		})
	}
}

func TestParseFileName(t *testing.T) {
	createdAt, kind, err := ParseFileName("mrp-backup-20260310-021530.250-pre_restore.bak")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 15, 30, 250*int(time.Millisecond), time.UTC), createdAt)
	assert.Equal(t, KindPreRestore, kind)

	_, _, err = ParseFileName("mrp-backup-20261399-021530.250-manual.bak")
	assert.True(t, IsValidationError(err))
}

func TestLocalStore_NextFileName(t *testing.T) {
	local := newTestLocalStore(t)
	at := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	first := local.NextFileName(KindScheduled, at)
	assert.Equal(t, "mrp-backup-20260310-020000.000-scheduled.bak", first)

	// same millisecond, different kind: still unique and later
	second := local.NextFileName(KindPreRestore, at)
	assert.Equal(t, "mrp-backup-20260310-020000.001-pre_restore.bak", second)
	assert.Less(t, first, second)

	// a file already on disk pushes the stamp forward
	taken := snapshotName(at.Add(time.Second), KindManual)
	_, _, err := local.WriteAtomic(taken, []byte("x"))
	require.NoError(t, err)
	next := local.NextFileName(KindManual, at.Add(time.Second))
	assert.Equal(t, "mrp-backup-20260310-020001.001-manual.bak", next)

	// a non-UTC clock still names files in UTC
	ist := time.FixedZone("IST", 5*3600+1800)
	name := local.NextFileName(KindManual, time.Date(2026, 3, 11, 7, 30, 0, 0, ist))
	assert.Equal(t, "mrp-backup-20260311-020000.000-manual.bak", name)
}

func TestLocalStore_WriteAtomic(t *testing.T) {
	local := newTestLocalStore(t)
	name := snapshotName(time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), KindManual)
	data := []byte("inventory snapshot payload")

	checksum, size, err := local.WriteAtomic(name, data)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Equal(t, NewChecksumService().Sum(data), checksum)

	path := filepath.Join(local.Dir(), name)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(defaultFilePerms), info.Mode().Perm())

	sidecar, err := os.ReadFile(path + ChecksumSuffix)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s  %s\n", checksum, name), string(sidecar))

	temps, err := filepath.Glob(filepath.Join(local.Dir(), tempFilePattern))
	require.NoError(t, err)
	assert.Empty(t, temps)

	_, _, err = local.WriteAtomic("../escape.bak", data)
	assert.True(t, IsValidationError(err))
}

func TestLocalStore_CleanupTempFiles(t *testing.T) {
	local := newTestLocalStore(t)
	leftover := filepath.Join(local.Dir(), ".tmp-123456")
	require.NoError(t, os.WriteFile(leftover, []byte("half written"), 0640))

	local.CleanupTempFiles()

	_, err := os.Stat(leftover)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStore_OpenReadDelete(t *testing.T) {
	local := newTestLocalStore(t)
	name := snapshotName(time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), KindManual)
	_, _, err := local.WriteAtomic(name, []byte("payload"))
	require.NoError(t, err)

	rc, err := local.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(data))

	data, err = local.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, local.Delete(name))
	_, err = local.Open(name)
	assert.True(t, IsNotFoundError(err))
	_, err = os.Stat(filepath.Join(local.Dir(), name+ChecksumSuffix))
	assert.True(t, os.IsNotExist(err))

	assert.True(t, IsNotFoundError(local.Delete(name)))
}

func TestLocalStore_List(t *testing.T) {
	local := newTestLocalStore(t)
	base := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	names := seedSnapshots(t, local, base, base.Add(time.Hour), base.Add(2*time.Hour))

	// noise the listing must skip
	require.NoError(t, os.WriteFile(filepath.Join(local.Dir(), "README.txt"), []byte("x"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(local.Dir(), ".tmp-999"), []byte("x"), 0640))
	require.NoError(t, os.Mkdir(filepath.Join(local.Dir(), snapshotName(base.Add(time.Minute), KindManual)), 0750))

	all, err := local.Names()
	require.NoError(t, err)
	assert.Equal(t, names, all)

	snapshots, err := local.List()
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	assert.Equal(t, names[2], snapshots[0].FileName)
	assert.Equal(t, names[0], snapshots[2].FileName)
	for _, s := range snapshots {
		assert.True(t, s.ChecksumValid)
		assert.Equal(t, KindScheduled, s.Kind)
		// placeholder payloads carry no header
		assert.Nil(t, s.Metadata)
	}
}

func TestLocalStore_Stat_DetectsTampering(t *testing.T) {
	local := newTestLocalStore(t)
	name := seedSnapshots(t, local, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC))[0]

	require.NoError(t, os.WriteFile(filepath.Join(local.Dir(), name), []byte("tampered"), 0640))

	snapshot, err := local.Stat(name)
	require.NoError(t, err)
	assert.False(t, snapshot.ChecksumValid)

	require.NoError(t, os.Remove(filepath.Join(local.Dir(), name+ChecksumSuffix)))
	snapshot, err = local.Stat(name)
	require.NoError(t, err)
	assert.False(t, snapshot.ChecksumValid)
}

func TestChecksumService(t *testing.T) {
	cs := NewChecksumService()
	path := filepath.Join(t.TempDir(), "file.bak")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0640))

	sum, err := cs.Compute(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
	assert.Equal(t, sum, cs.Sum([]byte("abc")))

	ok, err := cs.Verify(path, strings.ToUpper(sum))
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("recorded", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			wantErr bool
		}{
			{"sha256sum format", sum + "  file.bak\n", false},
			{"bare checksum", sum, false},
			{"empty", "", true},
			{"short", "abc123  file.bak\n", true},
			{"not hex", strings.Repeat("z", 64) + "  file.bak\n", true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				require.NoError(t, os.WriteFile(path+ChecksumSuffix, []byte(tt.content), 0640))
				recorded, err := cs.Recorded(path)
				if tt.wantErr {
					assert.True(t, IsIntegrityError(err))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, sum, recorded)
			})
		}
	})

	t.Run("missing sidecar", func(t *testing.T) {
		_, err := cs.Recorded(filepath.Join(t.TempDir(), "other.bak"))
		assert.True(t, IsIntegrityError(err))
	})
}
