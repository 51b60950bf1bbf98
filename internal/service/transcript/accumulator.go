// Package transcript accumulates the ordered conversation log of a call.
package transcript

import (
	"sync"
	"time"
)

// Role identifies who spoke an utterance.
type Role string

const (
	RoleCaller    Role = "caller"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance in the order it was received.
type Entry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Accumulator is an append-only transcript. Safe for concurrent use.
//
// Entries are never merged or deduplicated: when the remote emits both an
// incremental and a final form of the same utterance, both are kept.
type Accumulator struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
	dropped    int
}

// New creates an accumulator. A maxEntries of zero or less means unbounded.
func New(maxEntries int) *Accumulator {
	return &Accumulator{maxEntries: maxEntries}
}

// Append adds an entry. Returns false if the bound has been reached and the
// entry was discarded.
func (a *Accumulator) Append(role Role, text string, ts time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxEntries > 0 && len(a.entries) >= a.maxEntries {
		a.dropped++
		return false
	}
	a.entries = append(a.entries, Entry{Role: role, Text: text, Timestamp: ts})
	return true
}

// Snapshot returns a copy of the entries in append order.
func (a *Accumulator) Snapshot() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len returns the number of entries held.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Dropped returns how many entries were discarded by the bound.
func (a *Accumulator) Dropped() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dropped
}
