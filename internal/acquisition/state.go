package acquisition

import (
	"fmt"
	"time"
)

// State is a session lifecycle state
type State int32

const (
	// StateNone precedes Created; it appears only as the From of the acquire transition.
	StateNone State = iota
	StateCreated
	StatePrepared
	StateStreaming
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateCreated:
		return "created"
	case StatePrepared:
		return "prepared"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateNone; candidate <= StateReleased; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Live reports whether the state still holds its device
func (s State) Live() bool {
	return s >= StateCreated && s < StateReleased
}

// SessionStats is a point-in-time view of a session
type SessionStats struct {
	SessionID string      `json:"session_id"`
	DeviceID  string      `json:"device_id"`
	State     State       `json:"state"`
	Spec      BoardSpec   `json:"board"`
	Buffer    BufferStats `json:"buffer"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	StoppedAt time.Time   `json:"stopped_at,omitzero"`
}

// Transition describes one lifecycle change, delivered to observers after it happens.
type Transition struct {
	SessionID string
	DeviceID  string
	From      State
	To        State
	At        time.Time
	Stats     SessionStats
}

// Observer receives lifecycle transitions. Calls are made while the session's
// transition lock is held, so implementations must not block or call back
// into the session.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(t Transition)

// OnTransition calls f(t)
func (f ObserverFunc) OnTransition(t Transition) {
	f(t)
}
