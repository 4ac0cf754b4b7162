// Package events provides an asynchronous event bus that decouples session
// lifecycle transitions from slow consumers such as storage and MQTT.
package events

import (
	"time"

	"github.com/tphakala/biosignal-go/internal/acquisition"
)

// SessionEvent is published for every session lifecycle transition.
type SessionEvent struct {
	SessionID string                   `json:"session_id"`
	DeviceID  string                   `json:"device_id"`
	From      acquisition.State        `json:"from"`
	To        acquisition.State        `json:"to"`
	Timestamp time.Time                `json:"timestamp"`
	Stats     acquisition.SessionStats `json:"stats"`
}

// FromTransition converts a session transition into an event
func FromTransition(t acquisition.Transition) SessionEvent {
	return SessionEvent{
		SessionID: t.SessionID,
		DeviceID:  t.DeviceID,
		From:      t.From,
		To:        t.To,
		Timestamp: t.At,
		Stats:     t.Stats,
	}
}

// EventConsumer processes session events
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single session event
	ProcessEvent(event SessionEvent) error
}

// BusStats contains runtime statistics for monitoring
type BusStats struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsProcessed uint64 `json:"events_processed"`
	EventsDropped   uint64 `json:"events_dropped"`
	ConsumerErrors  uint64 `json:"consumer_errors"`
}
