package backup

import (
	"bufio"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ChecksumSuffix is appended to a snapshot path to name its checksum sidecar
const ChecksumSuffix = ".sha256"

// ChecksumService fingerprints snapshot files with SHA-256
type ChecksumService struct{}

// NewChecksumService creates a new checksum service
func NewChecksumService() *ChecksumService {
	return &ChecksumService{}
}

// Compute hashes the bytes currently on disk
func (cs *ChecksumService) Compute(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", NewIOError("failed to open file for checksum", err).WithContext("path", path)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", NewIOError("failed to read file for checksum", err).WithContext("path", path)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Sum hashes data already in memory
func (cs *ChecksumService) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the file still hashes to expected
func (cs *ChecksumService) Verify(path, expected string) (bool, error) {
	actual, err := cs.Compute(path)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(strings.ToLower(expected))) == 1, nil
}

// Recorded reads the checksum stored in the sidecar of path
func (cs *ChecksumService) Recorded(path string) (string, error) {
	file, err := os.Open(path + ChecksumSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewIntegrityError("checksum sidecar is missing", err).WithContext("path", path)
		}
		return "", NewIOError("failed to open checksum sidecar", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return "", NewIntegrityError("checksum sidecar is empty", scanner.Err()).WithContext("path", path)
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 || len(fields[0]) != sha256.Size*2 {
		return "", NewIntegrityError("checksum sidecar is malformed", nil).WithContext("path", path)
	}
	if _, err := hex.DecodeString(fields[0]); err != nil {
		return "", NewIntegrityError("checksum sidecar is malformed", err).WithContext("path", path)
	}

	return strings.ToLower(fields[0]), nil
}

// sidecarContent renders a sidecar in sha256sum format
func sidecarContent(checksum, path string) []byte {
	return []byte(fmt.Sprintf("%s  %s\n", checksum, filepath.Base(path)))
}
