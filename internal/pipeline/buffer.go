package pipeline

import (
	"sync"
	"time"
)

// repeatFilter collapses runs of the same class within a window.
type repeatFilter struct {
	window time.Duration

	mu       sync.Mutex
	last     string
	lastSent time.Time
	sent     bool
}

func newRepeatFilter(window time.Duration) *repeatFilter {
	if window <= 0 {
		return nil
	}
	return &repeatFilter{window: window}
}

// allow reports whether an event of class at t should be written, and
// records it as written if so.
func (f *repeatFilter) allow(class string, t time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent && class == f.last && t.Sub(f.lastSent) < f.window {
		return false
	}
	f.last = class
	f.lastSent = t
	f.sent = true
	return true
}
