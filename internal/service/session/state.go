// Package session implements the per-call bridge between a telephony media
// stream and an AI realtime connection, plus the registry that tracks live
// calls.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a call session.
type State int

const (
	// StateNegotiating - AI handshake outstanding, caller audio is queued.
	StateNegotiating State = iota
	// StateReady - AI session configured, audio flows both ways.
	StateReady
	// StateClosing - teardown started, finalization in progress.
	StateClosing
	// StateClosed - finalization attempted, session unregistered.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "NEGOTIATING"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true once teardown has started.
func (s State) IsTerminal() bool {
	return s == StateClosing || s == StateClosed
}

// Errors for invalid state transitions.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrAlreadyReady  = errors.New("session already ready")
	ErrNotClosing    = errors.New("session is not closing")
)

// Lifecycle manages the state machine for a single call session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	NEGOTIATING → READY → CLOSING → CLOSED
//	     │                   ↑
//	     └───────────────────┘  (timeout, transport close)
//
// Rules:
//   - NEGOTIATING: MarkReady moves to READY exactly once
//   - READY: a second MarkReady returns ErrAlreadyReady
//   - any non-terminal state: BeginClose moves to CLOSING exactly once
//   - CLOSING: MarkClosed moves to CLOSED
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a new lifecycle in NEGOTIATING state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateNegotiating}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsClosed returns true if teardown has started.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// MarkReady transitions NEGOTIATING to READY.
// Returns nil only for the call that performed the transition.
func (l *Lifecycle) MarkReady() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateNegotiating:
		l.state = StateReady
		return nil
	case StateReady:
		return ErrAlreadyReady
	case StateClosing, StateClosed:
		return ErrSessionClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// BeginClose transitions to CLOSING from any non-terminal state.
// Returns the previous state and true if this call performed the transition,
// false if teardown had already started.
func (l *Lifecycle) BeginClose() (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.state
	if prev.IsTerminal() {
		return prev, false
	}
	l.state = StateClosing
	return prev, true
}

// MarkClosed transitions CLOSING to CLOSED.
func (l *Lifecycle) MarkClosed() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateClosing:
		l.state = StateClosed
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrNotClosing
	}
}
