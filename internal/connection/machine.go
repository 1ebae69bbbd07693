package connection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clk-66/spectrus-realtime/internal/chat"
)

// UserCache receives the session user each time a connection is established.
type UserCache interface {
	SetCurrentUser(user *chat.User, connectionID string)
}

// Recoverer restores server-side watches after a reconnection.
type Recoverer interface {
	Recover(ctx context.Context)
}

// Gate holds outbound requests while a token refresh is in progress.
type Gate interface {
	Release()
}

// Machine tracks the connection state and runs the side effects of entering
// connected and reconnecting.
//
// The transport is the single writer: Transition must only be called from
// the transport's callback context. State may be read from anywhere.
type Machine struct {
	users     UserCache
	recoverer Recoverer
	gate      Gate
	log       *slog.Logger

	mu             sync.RWMutex
	state          State
	recoveryNeeded bool
	refreshPending bool
	listeners      []func(from, to State)
}

// NewMachine returns a machine in the disconnected state. recoverer and gate
// may be nil.
func NewMachine(users UserCache, recoverer Recoverer, gate Gate, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		users:     users,
		recoverer: recoverer,
		gate:      gate,
		log:       log,
		state:     Disconnected(),
	}
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// RecoveryNeeded reports whether the next connected transition will recover
// watched channels.
func (m *Machine) RecoveryNeeded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recoveryNeeded
}

// MarkRefreshPending records that a token refresh cycle started. Queued
// outbound requests are released on the next connected transition.
func (m *Machine) MarkRefreshPending() {
	m.mu.Lock()
	m.refreshPending = true
	m.mu.Unlock()
}

// OnChange registers fn to be called once per transition, after side effects.
func (m *Machine) OnChange(fn func(from, to State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Transition moves the machine to next and runs the entry side effects.
//
// Entering connected replaces the cached session user, runs recovery when a
// previous reconnecting state asked for it, and releases queued requests if
// a token refresh was pending. The recovery flag stays set until Recover has
// returned. Entering reconnecting only sets the recovery flag.
func (m *Machine) Transition(ctx context.Context, next State) error {
	m.mu.Lock()
	prev := m.state
	if !CanTransition(prev.Status, next.Status) {
		m.mu.Unlock()
		return TransitionError{From: prev.Status, To: next.Status}
	}
	if next.Status != StatusConnected {
		next.User = nil
		next.ConnectionID = ""
	}
	m.state = next

	var recoverNow, releaseNow bool
	switch next.Status {
	case StatusReconnecting:
		m.recoveryNeeded = true
	case StatusConnected:
		recoverNow = m.recoveryNeeded
		releaseNow = m.refreshPending
		m.refreshPending = false
	}
	listeners := append([]func(from, to State){}, m.listeners...)
	m.mu.Unlock()

	m.log.Info("connection state changed", "from", prev.Status, "to", next.Status)

	if next.Status == StatusConnected {
		if m.users != nil {
			m.users.SetCurrentUser(next.User, next.ConnectionID)
		}
		if recoverNow {
			if m.recoverer != nil {
				m.recoverer.Recover(ctx)
			}
			// Cleared only once every batch has been issued.
			m.mu.Lock()
			m.recoveryNeeded = false
			m.mu.Unlock()
		}
		if releaseNow && m.gate != nil {
			m.gate.Release()
		}
	}

	for _, fn := range listeners {
		fn(prev, next)
	}
	return nil
}
