// Package lock keeps a single orchestrator per instance directory.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file inside an instance directory.
const FileName = "LOCK"

// HeldError is returned when another process holds the instance lock.
type HeldError struct {
	PID   int
	Since time.Time
	Path  string
}

func (e *HeldError) Error() string {
	if e.Since.IsZero() {
		return fmt.Sprintf("instance lock held by PID %d (%s)", e.PID, e.Path)
	}
	return fmt.Sprintf("instance lock held by PID %d since %s (%s)", e.PID, e.Since.Format(time.RFC3339), e.Path)
}

// Lock is an acquired instance lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking flock on dir/LOCK.
// Returns *HeldError if another process already holds it.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, FileName)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		held := parse(string(data))
		held.Path = path
		return nil, held
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parse(content string) *HeldError {
	held := &HeldError{}
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			held.PID, _ = strconv.Atoi(v)
		}
		if v, ok := strings.CutPrefix(line, "time="); ok {
			held.Since, _ = time.Parse(time.RFC3339, v)
		}
	}
	return held
}
