package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/events"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// StateMessage is the JSON payload published for each transition
type StateMessage struct {
	SessionID string                  `json:"session_id"`
	DeviceID  string                  `json:"device_id"`
	From      acquisition.State       `json:"from"`
	State     acquisition.State       `json:"state"`
	Timestamp time.Time               `json:"timestamp"`
	Board     string                  `json:"board,omitempty"`
	Channels  int                     `json:"channels,omitempty"`
	Buffer    acquisition.BufferStats `json:"buffer"`
}

// PublishRecorder receives publish outcomes, typically Prometheus metrics
type PublishRecorder interface {
	RecordPublish(size int, latency time.Duration, err error)
	RecordSkipped()
}

// Publisher forwards session events to MQTT. It is an events.EventConsumer.
type Publisher struct {
	client   Client
	topic    string
	timeout  time.Duration
	recorder PublishRecorder
}

var _ events.EventConsumer = (*Publisher)(nil)

// NewPublisher creates a publisher writing under topic
func NewPublisher(client Client, topic string, timeout time.Duration) *Publisher {
	if topic == "" {
		topic = DefaultConfig().Topic
	}
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	return &Publisher{client: client, topic: topic, timeout: timeout}
}

// WithRecorder attaches a publish recorder and returns p
func (p *Publisher) WithRecorder(r PublishRecorder) *Publisher {
	p.recorder = r
	return p
}

// Name implements events.EventConsumer
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the state topic for a device
func (p *Publisher) Topic(deviceID string) string {
	return p.topic + "/" + deviceID + "/state"
}

// ProcessEvent implements events.EventConsumer. Events arriving while the
// broker is unreachable are skipped, not queued.
func (p *Publisher) ProcessEvent(event events.SessionEvent) error {
	if !p.client.IsConnected() {
		GetLogger().Debug("skipping event, broker not connected",
			logger.String("device_id", event.DeviceID),
			logger.String("state", event.To.String()))
		if p.recorder != nil {
			p.recorder.RecordSkipped()
		}
		return nil
	}

	payload, err := json.Marshal(StateMessage{
		SessionID: event.SessionID,
		DeviceID:  event.DeviceID,
		From:      event.From,
		State:     event.To,
		Timestamp: event.Timestamp,
		Board:     event.Stats.Spec.Name,
		Channels:  event.Stats.Spec.Channels,
		Buffer:    event.Stats.Buffer,
	})
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_state").
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	err = p.client.Publish(ctx, p.Topic(event.DeviceID), payload)
	if p.recorder != nil {
		p.recorder.RecordPublish(len(payload), time.Since(start), err)
	}
	return err
}
