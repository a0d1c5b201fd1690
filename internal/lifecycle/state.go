// Package lifecycle contains internal helpers for connection state management.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/srediag/fsplugin/api"
)

var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[api.ConnState][]api.ConnState{
	api.ConnDisconnected: {api.ConnConnecting},
	api.ConnConnecting:   {api.ConnConnected, api.ConnFailed, api.ConnDisconnected},
	api.ConnConnected:    {api.ConnDisconnected},
	api.ConnFailed:       {api.ConnConnecting, api.ConnDisconnected},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to api.ConnState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer is notified after every state change.
type Observer func(from, to api.ConnState)

// Machine tracks the connection state. Observers run with the machine locked
// and must not call back into it.
type Machine struct {
	mu        sync.Mutex
	state     api.ConnState
	observers []Observer
}

func NewMachine() *Machine {
	return &Machine{state: api.ConnDisconnected}
}

func (m *Machine) State() api.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Observe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Transition moves to the given state. Moving to the current state is a no-op.
func (m *Machine) Transition(to api.ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.state
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.set(from, to)
	return nil
}

// Reset forces the machine back to disconnected from any state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != api.ConnDisconnected {
		m.set(m.state, api.ConnDisconnected)
	}
}

func (m *Machine) set(from, to api.ConnState) {
	m.state = to
	for _, o := range m.observers {
		o(from, to)
	}
}
