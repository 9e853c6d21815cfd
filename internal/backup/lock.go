package backup

import (
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// OperationLock serializes every snapshot-producing or store-mutating operation.
// The mutex covers goroutines of this process and the advisory file lock covers
// other processes sharing the backup directory. Neither blocks: a second caller
// fails fast with an OperationInProgressError.
type OperationLock struct {
	mu     sync.Mutex
	file   *flock.Flock
	holder string
	state  sync.Mutex
}

// NewOperationLock creates a lock on <dir>/.backup.lock
func NewOperationLock(dir string) *OperationLock {
	return &OperationLock{file: flock.New(filepath.Join(dir, lockFileName))}
}

// TryAcquire takes the lock for operation or fails immediately
func (l *OperationLock) TryAcquire(operation string) (release func(), err error) {
	if !l.mu.TryLock() {
		return nil, NewOperationInProgressError(operation).WithContext("holder", l.Holder())
	}

	locked, err := l.file.TryLock()
	if err != nil {
		l.mu.Unlock()
		return nil, NewIOError("failed to take backup lock file", err).WithContext("path", l.file.Path())
	}
	if !locked {
		l.mu.Unlock()
		return nil, NewOperationInProgressError(operation).WithContext("holder", "another process")
	}

	l.setHolder(operation)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.setHolder("")
			l.file.Unlock()
			l.mu.Unlock()
		})
	}, nil
}

// Holder names the operation currently holding the lock in this process
func (l *OperationLock) Holder() string {
	l.state.Lock()
	defer l.state.Unlock()
	return l.holder
}

func (l *OperationLock) setHolder(operation string) {
	l.state.Lock()
	l.holder = operation
	l.state.Unlock()
}
