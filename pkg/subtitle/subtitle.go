package subtitle

import (
	"sync"
	"time"
)

// Line is the single subtitle shown over the video. Writers tag their writes
// with the generation they belong to so a superseded sequence cannot clear
// or overwrite the text of a newer one.
type Line struct {
	mu      sync.Mutex
	text    string
	owner   uint64
	changed time.Time
}

// Text returns the current subtitle, "" when none.
func (l *Line) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// Snapshot returns text, owning generation and last change time.
func (l *Line) Snapshot() (string, uint64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text, l.owner, l.changed
}

// Set replaces the text unconditionally.
func (l *Line) Set(gen uint64, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setLocked(gen, text)
}

// SetIf sets the text only while valid(gen) holds. The check and the write
// happen under the same lock as Clear, so a cancellation that clears the line
// cannot be undone by a writer that had already passed its own check.
func (l *Line) SetIf(gen uint64, text string, valid func(uint64) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !valid(gen) {
		return false
	}
	l.setLocked(gen, text)
	return true
}

// ClearIf clears the line only if gen still owns it.
func (l *Line) ClearIf(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != gen || l.text == "" {
		return false
	}
	l.setLocked(gen, "")
	return true
}

// Clear empties the line regardless of owner.
func (l *Line) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.text == "" {
		return
	}
	l.setLocked(l.owner, "")
}

func (l *Line) setLocked(gen uint64, text string) {
	l.text = text
	l.owner = gen
	l.changed = time.Now()
}
