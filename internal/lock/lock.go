// Package lock serializes apply runs across processes with an OS file lock.
// The lock is released when the process exits, including crashes.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// FileName is the lock file created in the config directory.
	FileName       = "apply.lock"
	DefaultTimeout = 2 * time.Second
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 100 * time.Millisecond
)

// ErrHeld is returned when another process holds the lock past the timeout.
var ErrHeld = errors.New("another reorg apply is running")

// Lock is an exclusive advisory lock on a file.
type Lock struct {
	path string
	file *os.File
}

// New returns an unacquired lock on path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock, retrying with backoff until timeout.
func (l *Lock) Acquire(timeout time.Duration) error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff
	for {
		if err := tryLock(f); err == nil {
			l.file = f
			l.writeHolder()
			return nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return fmt.Errorf("%w (holder %s, lock %s)", ErrHeld, l.readHolder(), l.path)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

// Release drops the lock. Safe to call when not held.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	l.file.Truncate(0)
	unlock(l.file)
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Lock) writeHolder() {
	l.file.Truncate(0)
	l.file.Seek(0, 0)
	fmt.Fprintf(l.file, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	l.file.Sync()
}

// readHolder describes the current holder from the lock file contents.
func (l *Lock) readHolder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	var pid, since string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		switch {
		case strings.HasPrefix(line, "pid:"):
			pid = strings.TrimPrefix(line, "pid:")
		case strings.HasPrefix(line, "time:"):
			since = strings.TrimPrefix(line, "time:")
		}
	}
	if pid == "" {
		return "unknown"
	}
	if n, err := strconv.Atoi(pid); err == nil && !isProcessAlive(n) {
		return fmt.Sprintf("pid:%s since %s, process gone", pid, since)
	}
	return fmt.Sprintf("pid:%s since %s", pid, since)
}
