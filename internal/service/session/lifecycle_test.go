package session

import (
	"sync"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle()

	if lc.State() != StateReady {
		t.Errorf("expected StateReady, got %v", lc.State())
	}
	if lc.IsClosed() {
		t.Error("expected IsClosed to be false")
	}
	if !lc.State().IsActive() {
		t.Error("expected READY to be active")
	}
}

func TestLifecycle_Start_IsIdempotent(t *testing.T) {
	lc := NewLifecycle()

	for i := 0; i < 3; i++ {
		if err := lc.Start(); err != nil {
			t.Errorf("start %d: unexpected error: %v", i, err)
		}
	}
	if lc.State() != StateStarted {
		t.Errorf("expected StateStarted, got %v", lc.State())
	}
}

func TestLifecycle_Start_FailsAfterClose(t *testing.T) {
	lc := NewLifecycle()
	lc.Close()

	if err := lc.Start(); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestLifecycle_Close_FromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Lifecycle)
	}{
		{"from READY", func(lc *Lifecycle) {}},
		{"from STARTED", func(lc *Lifecycle) { _ = lc.Start() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle()
			tt.setup(lc)

			if !lc.Close() {
				t.Error("expected first Close to perform the transition")
			}
			if lc.Close() {
				t.Error("expected second Close to be a no-op")
			}
			if lc.State() != StateClosed {
				t.Errorf("expected StateClosed, got %v", lc.State())
			}
		})
	}
}

func TestLifecycle_ConcurrentClose_OnlyOneWins(t *testing.T) {
	lc := NewLifecycle()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lc.Close() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one Close to win, got %d", wins)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateReady, "READY"},
		{StateStarted, "STARTED"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}
