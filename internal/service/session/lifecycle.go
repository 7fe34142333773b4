package session

import (
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateReady - Session was initialized and accepts audio.
	StateReady State = iota
	// StateStarted - Transcription was requested for the session.
	StateStarted
	// StateClosed - Session is closed. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateStarted:
		return "STARTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsActive returns true until the session is closed.
func (s State) IsActive() bool {
	return s != StateClosed
}

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	READY ──Start()──→ STARTED ──Close()──→ CLOSED
//	  │                  │
//	  │                  └── Start() again is a no-op
//	  │
//	  └──────────Close()──────────────────→ CLOSED
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in READY state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateReady}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Start transitions READY to STARTED. Repeated calls are no-ops.
// Returns ErrClosed if the session is already closed.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateReady:
		l.state = StateStarted
		return nil
	case StateStarted:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Close transitions to CLOSED from any state.
// Returns true if this call performed the transition.
func (l *Lifecycle) Close() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return false
	}
	l.state = StateClosed
	return true
}

// IsClosed returns true once the session is closed.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateClosed
}
