// Package reconnect implements the reconnection state machine that drives both
// the transport's retry loop and the disconnect UI.
//
//	Disconnected --Connect--> Connecting --Connected--> Connected
//	Connecting --ConnectFailed--> Reconnecting (Exhausted past the bound, Disconnected when auto is off)
//	Connected --Dropped--> Reconnecting (or Disconnected when auto is off)
//	Reconnecting --Attempt/AttemptFailed--> Reconnecting | Exhausted
//	Reconnecting --Connected--> Connected (counter reset)
//	Disconnected|Exhausted|Reconnecting --ManualReconnect--> Reconnecting
//	any --ClientDisconnect--> Disconnected
//
// A Machine is not safe for concurrent use.
package reconnect

import (
	"errors"
	"fmt"
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Exhausted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when an input is not valid in the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// DefaultMaxAttempts bounds automatic reconnection.
const DefaultMaxAttempts = 5

// Transition describes one state change.
type Transition struct {
	From    State
	To      State
	Attempt int // counter after the transition
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Machine tracks connection state and the reconnect attempt counter.
type Machine struct {
	state    State
	attempts int
	max      int
	auto     bool

	// armed allows one attempt past max after a manual reconnect.
	armed bool
}

// New returns a machine in the Disconnected state.
// max < 1 uses DefaultMaxAttempts. auto selects whether drops enter Reconnecting.
func New(max int, auto bool) *Machine {
	if max < 1 {
		max = DefaultMaxAttempts
	}
	return &Machine{state: Disconnected, max: max, auto: auto}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Attempts returns the reconnect attempt counter.
func (m *Machine) Attempts() int { return m.attempts }

// MaxAttempts returns the automatic attempt bound.
func (m *Machine) MaxAttempts() int { return m.max }

// CanRetry reports whether another attempt may start.
func (m *Machine) CanRetry() bool {
	return m.state == Reconnecting && (m.attempts < m.max || m.armed)
}

// Connect starts an initial connection. From Exhausted the dial counts as the
// one attempt past the bound: the counter is kept and a failure exhausts again.
func (m *Machine) Connect() (Transition, error) {
	switch m.state {
	case Disconnected, Exhausted:
		return m.move(Connecting), nil
	}
	return m.invalid("connect")
}

// Connected records a successful (re)connection and resets the counter.
func (m *Machine) Connected() (Transition, error) {
	switch m.state {
	case Connecting, Reconnecting:
		m.attempts = 0
		m.armed = false
		return m.move(Connected), nil
	}
	return m.invalid("connected")
}

// ConnectFailed records a failed initial connection.
func (m *Machine) ConnectFailed() (Transition, error) {
	if m.state != Connecting {
		return m.invalid("connect failed")
	}
	if m.auto {
		if m.attempts >= m.max && !m.armed {
			return m.move(Exhausted), nil
		}
		return m.move(Reconnecting), nil
	}
	return m.move(Disconnected), nil
}

// Dropped records an involuntary loss of the connection.
func (m *Machine) Dropped() (Transition, error) {
	if m.state != Connected {
		return m.invalid("dropped")
	}
	if m.auto {
		return m.move(Reconnecting), nil
	}
	return m.move(Disconnected), nil
}

// Attempt starts one reconnection attempt and increments the counter.
func (m *Machine) Attempt() (Transition, error) {
	if !m.CanRetry() {
		return m.invalid("attempt")
	}
	m.armed = false
	m.attempts++
	return m.move(Reconnecting), nil
}

// AttemptFailed records a failed attempt. Reaching the bound moves to Exhausted.
func (m *Machine) AttemptFailed() (Transition, error) {
	if m.state != Reconnecting {
		return m.invalid("attempt failed")
	}
	if m.attempts >= m.max && !m.armed {
		return m.move(Exhausted), nil
	}
	return m.move(Reconnecting), nil
}

// ManualReconnect re-arms retries from any state that is not connected or
// connecting. The counter is kept until a connection succeeds.
func (m *Machine) ManualReconnect() (Transition, error) {
	switch m.state {
	case Disconnected, Reconnecting, Exhausted:
		m.armed = true
		return m.move(Reconnecting), nil
	}
	return m.invalid("manual reconnect")
}

// ClientDisconnect records a deliberate disconnect. Retries stop.
func (m *Machine) ClientDisconnect() Transition {
	m.armed = false
	return m.move(Disconnected)
}

func (m *Machine) move(to State) Transition {
	t := Transition{From: m.state, To: to, Attempt: m.attempts}
	m.state = to
	return t
}

func (m *Machine) invalid(input string) (Transition, error) {
	return Transition{From: m.state, To: m.state, Attempt: m.attempts},
		fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, input, m.state)
}
