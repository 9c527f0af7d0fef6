// Package status tracks the push channel's connection lifecycle.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ostelo/deskchat/internal/bus"
)

// State represents a push-connection runtime state.
type State string

const (
	Booting      State = "BOOTING"
	Connecting   State = "CONNECTING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Stopped      State = "STOPPED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {Connecting, Error},
	Connecting:   {Ready, Reconnecting, Stopped, Error},
	Ready:        {Reconnecting, Stopped, Error},
	Reconnecting: {Connecting, Stopped, Error},
	Stopped:      {},
	Error:        {Booting},
}

// Machine tracks and enforces push-connection state transitions, publishing
// each change on the bus as conn.status_changed.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish("conn.status_changed", Change{From: from, To: to})
	}
	return nil
}

// Change is the payload for conn.status_changed events.
type Change struct {
	From State
	To   State
}
