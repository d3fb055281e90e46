package model

import (
	"sync"
	"time"
)

// Flash holds a transient status-bar notice.
type Flash struct {
	mu      sync.RWMutex
	message string
	isError bool
	expires time.Time
}

// Info shows msg for d.
func (f *Flash) Info(msg string, d time.Duration) { f.set(msg, false, d) }

// Error shows msg for d, rendered as an error.
func (f *Flash) Error(msg string, d time.Duration) { f.set(msg, true, d) }

func (f *Flash) set(msg string, isError bool, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isError = isError
	f.expires = time.Now().Add(d)
}

// Get returns the current notice, or an empty string once it expired.
func (f *Flash) Get() (msg string, isError bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", false
	}
	return f.message, f.isError
}
