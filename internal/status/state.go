package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/tgfilter/internal/bus"
)

// State represents the orchestrator daemon's runtime state.
type State string

const (
	Booting  State = "BOOTING"
	Running  State = "RUNNING"
	Degraded State = "DEGRADED" // pipeline loop is restarting after a failure
	Draining State = "DRAINING"
	Stopped  State = "STOPPED"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Running, Draining, Error},
	Running:  {Degraded, Draining, Error},
	Degraded: {Running, Draining, Error},
	Draining: {Stopped},
	Error:    {Booting, Stopped},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Moving to the current state is
// a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindStatusChanged, map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	return nil
}
