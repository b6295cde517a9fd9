package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
)

// State represents the lifecycle state of one realtime connection.
type State string

const (
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	Closing    State = "CLOSING"
	Closed     State = "CLOSED"
)

// validTransitions defines allowed state transitions.
// OPEN -> CLOSED is the abnormal close (transport error, missed heartbeat);
// a graceful close always passes through CLOSING.
var validTransitions = map[State][]State{
	Closed:     {Connecting},
	Connecting: {Open, Closed},
	Open:       {Closing, Closed},
	Closing:    {Closed},
}

// Machine tracks and enforces connection state transitions for one channel.
type Machine struct {
	mu      sync.RWMutex
	channel string
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine for the named channel, starting CLOSED.
func NewMachine(channel string, b *bus.Bus) *Machine {
	return &Machine{
		channel: channel,
		current: Closed,
		since:   time.Now(),
		bus:     b,
	}
}

// Channel returns the channel name this machine tracks.
func (m *Machine) Channel() string { return m.channel }

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("%s: invalid transition from %s to %s", m.channel, from, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.mu.Unlock()

	m.bus.Publish(bus.Event{
		Kind: bus.ConnStateChanged,
		Payload: StateChange{
			Channel: m.channel,
			From:    from,
			To:      to,
		},
	})
	return nil
}

// StateChange is the payload for conn.state_changed events.
type StateChange struct {
	Channel string
	From    State
	To      State
}
