package events

import "github.com/tphakala/biosignal-go/internal/acquisition"

// Observer publishes registry transitions onto a bus
type Observer struct {
	bus *Bus
}

var _ acquisition.Observer = (*Observer)(nil)

// NewObserver returns an acquisition observer that feeds bus
func NewObserver(bus *Bus) *Observer {
	return &Observer{bus: bus}
}

// OnTransition implements acquisition.Observer. It never blocks the session.
func (o *Observer) OnTransition(t acquisition.Transition) {
	o.bus.TryPublish(FromTransition(t))
}
