package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "mrp-backup/internal/errors"
)

const (
	fileNamePrefix   = "mrp-backup-"
	fileNameExt      = ".bak"
	fileTimeLayout   = "20060102-150405.000"
	tempFilePattern  = ".tmp-*"
	lockFileName     = ".backup.lock"
	overMarkerName   = ".disk-threshold-exceeded"
	defaultDirPerms  = 0750
	defaultFilePerms = 0640
)

// fileNamePattern matches every name the store generates; anything else is
// rejected before touching the filesystem.
var fileNamePattern = regexp.MustCompile(`^mrp-backup-\d{8}-\d{6}\.\d{3}-(startup|scheduled|manual|pre_restore)\.bak$`)

// LocalStore keeps snapshot files and their checksum sidecars in one directory
type LocalStore struct {
	dir       string
	checksums *ChecksumService

	mu        sync.Mutex
	lastStamp time.Time
}

// NewLocalStore creates the backup directory if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, NewValidationError("backup directory is required", nil)
	}
	if err := os.MkdirAll(dir, defaultDirPerms); err != nil {
		return nil, NewIOError("failed to create backup directory", err).WithContext("directory", dir)
	}

	return &LocalStore{dir: dir, checksums: NewChecksumService()}, nil
}

// Dir returns the backup directory
func (ls *LocalStore) Dir() string {
	return ls.dir
}

// ValidateFileName rejects names the store did not generate, including any path component
func ValidateFileName(fileName string) error {
	if !fileNamePattern.MatchString(fileName) {
		return NewValidationError(fmt.Sprintf("invalid backup file name %q", fileName), nil)
	}
	return nil
}

// ParseFileName extracts the creation time and kind encoded in a snapshot file name
func ParseFileName(fileName string) (time.Time, Kind, error) {
	if err := ValidateFileName(fileName); err != nil {
		return time.Time{}, "", err
	}

	rest := strings.TrimSuffix(strings.TrimPrefix(fileName, fileNamePrefix), fileNameExt)
	stamp, kindPart := rest[:len(fileTimeLayout)], rest[len(fileTimeLayout)+1:]

	createdAt, err := time.ParseInLocation(fileTimeLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, "", NewValidationError("invalid timestamp in backup file name", err)
	}
	kind, err := ParseKind(kindPart)
	if err != nil {
		return time.Time{}, "", err
	}
	return createdAt, kind, nil
}

// Path resolves a validated file name inside the backup directory
func (ls *LocalStore) Path(fileName string) (string, error) {
	if err := ValidateFileName(fileName); err != nil {
		return "", err
	}
	return filepath.Join(ls.dir, fileName), nil
}

// NextFileName reserves a unique name. Names sort chronologically, so a
// collision within the same millisecond advances the timestamp by 1ms.
func (ls *LocalStore) NextFileName(kind Kind, at time.Time) string {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	at = at.UTC().Truncate(time.Millisecond)
	if !at.After(ls.lastStamp) {
		at = ls.lastStamp.Add(time.Millisecond)
	}
	for ls.stampTaken(at) {
		at = at.Add(time.Millisecond)
	}
	ls.lastStamp = at
	return fmt.Sprintf("%s%s-%s%s", fileNamePrefix, at.Format(fileTimeLayout), strings.ToLower(string(kind)), fileNameExt)
}

// stampTaken reports whether any snapshot kind already uses this millisecond
func (ls *LocalStore) stampTaken(at time.Time) bool {
	matches, _ := filepath.Glob(filepath.Join(ls.dir, fileNamePrefix+at.Format(fileTimeLayout)+"-*"+fileNameExt))
	return len(matches) > 0
}

// WriteAtomic writes data under fileName so that it is either fully visible
// with a valid sidecar or not visible at all. The checksum is taken from the
// synced temp file, so it covers exactly the bytes that get renamed.
func (ls *LocalStore) WriteAtomic(fileName string, data []byte) (checksum string, size int64, err error) {
	finalPath, err := ls.Path(fileName)
	if err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(ls.dir, tempFilePattern)
	if err != nil {
		return "", 0, writeError("failed to create temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return "", 0, writeError("failed to write snapshot", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return "", 0, writeError("failed to sync snapshot", err)
	}
	if err = tmp.Close(); err != nil {
		return "", 0, writeError("failed to close snapshot", err)
	}
	if err = os.Chmod(tmpPath, defaultFilePerms); err != nil {
		return "", 0, writeError("failed to set snapshot permissions", err)
	}

	checksum, err = ls.checksums.Compute(tmpPath)
	if err != nil {
		return "", 0, err
	}

	if err = ls.writeSidecar(finalPath, checksum); err != nil {
		return "", 0, err
	}

	if err = os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(finalPath + ChecksumSuffix)
		return "", 0, writeError("failed to publish snapshot", err)
	}
	syncDir(ls.dir)

	return checksum, int64(len(data)), nil
}

func (ls *LocalStore) writeSidecar(finalPath, checksum string) (err error) {
	tmp, err := os.CreateTemp(ls.dir, tempFilePattern)
	if err != nil {
		return writeError("failed to create checksum temp file", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(sidecarContent(checksum, finalPath)); err != nil {
		tmp.Close()
		return writeError("failed to write checksum sidecar", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return writeError("failed to sync checksum sidecar", err)
	}
	if err = tmp.Close(); err != nil {
		return writeError("failed to close checksum sidecar", err)
	}
	if err = os.Rename(tmp.Name(), finalPath+ChecksumSuffix); err != nil {
		return writeError("failed to publish checksum sidecar", err)
	}
	return nil
}

func writeError(message string, err error) *BackupError {
	if apperrors.IsDiskFull(err) {
		return NewDiskFullError(message+": no space left on device", err)
	}
	return NewIOError(message, err)
}

func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
}

// CleanupTempFiles removes temp files left by an interrupted write.
// Callers must hold the operation lock.
func (ls *LocalStore) CleanupTempFiles() {
	matches, _ := filepath.Glob(filepath.Join(ls.dir, tempFilePattern))
	for _, m := range matches {
		os.Remove(m)
	}
}

// Open opens a snapshot for reading
func (ls *LocalStore) Open(fileName string) (io.ReadCloser, error) {
	path, err := ls.Path(fileName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", fileName), err)
		}
		return nil, NewIOError("failed to open backup", err)
	}
	return file, nil
}

// ReadFile returns the full contents of a snapshot
func (ls *LocalStore) ReadFile(fileName string) ([]byte, error) {
	rc, err := ls.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, NewIOError("failed to read backup", err)
	}
	return data, nil
}

// Delete removes a snapshot and its sidecar
func (ls *LocalStore) Delete(fileName string) error {
	path, err := ls.Path(fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return NewNotFoundError(fmt.Sprintf("backup %s not found", fileName), err)
		}
		return NewIOError("failed to delete backup", err)
	}
	if err := os.Remove(path + ChecksumSuffix); err != nil && !os.IsNotExist(err) {
		return NewIOError("failed to delete checksum sidecar", err)
	}
	return nil
}

// Names returns the snapshot file names present in the directory, oldest first.
// Temp files, the lock file and orphan sidecars are ignored.
func (ls *LocalStore) Names() ([]string, error) {
	entries, err := os.ReadDir(ls.dir)
	if err != nil {
		return nil, NewIOError("failed to read backup directory", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && fileNamePattern.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stat describes one snapshot. The checksum is recomputed, never trusted from the sidecar alone.
func (ls *LocalStore) Stat(fileName string) (*Snapshot, error) {
	path, err := ls.Path(fileName)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError(fmt.Sprintf("backup %s not found", fileName), err)
		}
		return nil, NewIOError("failed to stat backup", err)
	}

	createdAt, kind, err := ParseFileName(fileName)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		FileName:  fileName,
		CreatedAt: createdAt,
		Size:      info.Size(),
		Kind:      kind,
	}

	if actual, err := ls.checksums.Compute(path); err == nil {
		snapshot.Checksum = actual
		if recorded, err := ls.checksums.Recorded(path); err == nil {
			snapshot.ChecksumValid = recorded == actual
		}
	}

	if file, err := os.Open(path); err == nil {
		if meta, _, err := readHeader(file); err == nil {
			snapshot.Metadata = meta
			snapshot.Encrypted = meta.Encrypted
			snapshot.Kind = meta.Kind
			snapshot.CreatedAt = meta.CreatedAt
		}
		file.Close()
	}

	return snapshot, nil
}

// List describes every snapshot, newest first
func (ls *LocalStore) List() ([]*Snapshot, error) {
	names, err := ls.Names()
	if err != nil {
		return nil, err
	}

	snapshots := make([]*Snapshot, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		snapshot, err := ls.Stat(names[i])
		if err != nil {
			if IsNotFoundError(err) {
				continue
			}
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
