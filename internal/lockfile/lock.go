// Package lockfile serializes coordinator runs (bulk edit, move, copy,
// delete) across processes sharing one database.
//
// The lock is an advisory flock on .tracklog/run.lock. The holder writes its
// PID and command into the file so that a waiting process can say who it is
// waiting for.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/tracklog/tracklog/internal/debug"
)

// FileName is the lock file inside the .tracklog directory.
const FileName = "run.lock"

// pollInterval is how often to retry acquiring the lock.
const pollInterval = 50 * time.Millisecond

// ErrLockBusy is returned when another process holds the lock past the
// timeout.
var ErrLockBusy = errors.New("lock is held by another process")

// LockInfo describes the holder of the lock.
type LockInfo struct {
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	Database  string    `json:"database,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// RunLock is an exclusive lock over one .tracklog directory.
type RunLock struct {
	flock *flock.Flock
	info  LockInfo
}

// New returns an unlocked RunLock for dir.
func New(dir string) *RunLock {
	return &RunLock{flock: flock.New(filepath.Join(dir, FileName))}
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.flock.Path()
}

// Acquire takes the lock, polling until timeout (0 means try once). On
// success the holder info is written into the lock file.
func (l *RunLock) Acquire(ctx context.Context, timeout time.Duration, command, database string) error {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked && timeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		debug.Logf("waiting up to %s for run lock %s\n", timeout, l.Path())
		locked, err = l.flock.TryLockContext(waitCtx, pollInterval)
		if err != nil && ctx.Err() != nil {
			return fmt.Errorf("failed to acquire run lock: %w", ctx.Err())
		}
	}
	if !locked {
		return l.busy()
	}

	l.info = LockInfo{PID: os.Getpid(), Command: command, Database: database, StartedAt: time.Now().UTC()}
	if err := l.writeInfo(); err != nil {
		_ = l.flock.Unlock()
		return err
	}
	debug.Logf("acquired run lock %s\n", l.Path())
	return nil
}

// Release drops the lock. Safe to call more than once.
func (l *RunLock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	_ = os.Truncate(l.Path(), 0)
	debug.Logf("releasing run lock %s\n", l.Path())
	return l.flock.Unlock()
}

func (l *RunLock) writeInfo() error {
	data, err := json.Marshal(l.info)
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.Path(), data, 0o644); err != nil { // #nosec G306 - lock metadata is not secret
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	return nil
}

func (l *RunLock) busy() error {
	info, err := ReadLockInfo(l.Path())
	if err != nil || info.PID == 0 {
		return ErrLockBusy
	}
	state := "running"
	if !isProcessRunning(info.PID) {
		state = "not running"
	}
	return fmt.Errorf("%w: pid %d (%s, %s) since %s", ErrLockBusy, info.PID, info.Command, state, info.StartedAt.Format(time.RFC3339))
}

// ReadLockInfo reads the holder info from a lock file. A bare PID is
// accepted too.
func ReadLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 - lock path from the project directory
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return &LockInfo{}, nil
	}
	var info LockInfo
	if err := json.Unmarshal([]byte(text), &info); err == nil {
		return &info, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil {
		return nil, fmt.Errorf("unrecognized lock file content in %s", path)
	}
	return &LockInfo{PID: pid}, nil
}
