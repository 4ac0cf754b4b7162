package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() Config {
	return Config{
		BufferSize: 1024,
		Workers:    2,
	}
}

// Bus delivers events to consumers from bounded queues, one per worker. Events
// of one device always land on the same worker, so consumers see each device's
// transitions in publish order. Publishing never blocks; events that do not fit
// are dropped and counted.
type Bus struct {
	shards []chan SessionEvent

	// chanMu guards sends against close
	chanMu  sync.RWMutex
	running bool
	closed  bool
	wg      sync.WaitGroup

	mu        sync.Mutex
	consumers []EventConsumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// GetLogger returns the events module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}

// NewBus creates a stopped event bus
func NewBus(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	perShard := max(cfg.BufferSize/cfg.Workers, 1)
	shards := make([]chan SessionEvent, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan SessionEvent, perShard)
	}
	return &Bus{shards: shards}
}

// shardFor picks the worker queue for an event's device.
func (b *Bus) shardFor(event SessionEvent) chan SessionEvent {
	key := event.DeviceID
	if key == "" {
		key = event.SessionID
	}
	return b.shards[xxhash.Sum64String(key)%uint64(len(b.shards))]
}

// RegisterConsumer adds a new event consumer. Names must be unique.
func (b *Bus) RegisterConsumer(consumer EventConsumer) error {
	if consumer == nil {
		return errors.Newf("nil event consumer").
			Component("events").
			Category(errors.CategoryValidation).
			Build()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component("events").
				Category(errors.CategoryConflict).
				Context("consumer", consumer.Name()).
				Build()
		}
	}
	b.consumers = append(b.consumers, consumer)

	GetLogger().Info("registered event consumer", logger.String("consumer", consumer.Name()))
	return nil
}

// Start launches the worker goroutines. Starting twice is a no-op; a stopped
// bus cannot be restarted.
func (b *Bus) Start() {
	b.chanMu.Lock()
	defer b.chanMu.Unlock()

	if b.running || b.closed {
		return
	}
	b.running = true

	for i, shard := range b.shards {
		b.wg.Go(func() { b.worker(i, shard) })
	}
	GetLogger().Info("event bus started",
		logger.Int("workers", len(b.shards)),
		logger.Int("buffer_size", len(b.shards)*cap(b.shards[0])))
}

// TryPublish attempts to publish an event without blocking.
// Returns true if the event was accepted, false if dropped.
func (b *Bus) TryPublish(event SessionEvent) bool {
	b.chanMu.RLock()
	defer b.chanMu.RUnlock()

	if !b.running {
		return false
	}

	select {
	case b.shardFor(event) <- event:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		GetLogger().Debug("event dropped due to full buffer",
			logger.String("device_id", event.DeviceID),
			logger.String("to", event.To.String()))
		return false
	}
}

func (b *Bus) worker(id int, queue <-chan SessionEvent) {
	log := GetLogger().With(logger.Int("worker_id", id))
	log.Debug("worker started")

	for event := range queue {
		b.dispatch(event, log)
	}
	log.Debug("worker stopped")
}

// dispatch hands the event to every consumer. A failing or panicking consumer
// does not affect the others.
func (b *Bus) dispatch(event SessionEvent, log logger.Logger) {
	b.mu.Lock()
	consumers := make([]EventConsumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.failed.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.Any("panic", r),
						logger.String("session_id", event.SessionID))
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				b.failed.Add(1)
				log.Error("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.Error(err),
					logger.String("session_id", event.SessionID))
				return
			}
			b.processed.Add(1)
		}()
	}
}

// Stop refuses new events and waits for queued ones to be delivered.
func (b *Bus) Stop(ctx context.Context) error {
	b.chanMu.Lock()
	if b.closed {
		b.chanMu.Unlock()
		return nil
	}
	b.closed = true
	b.running = false
	for _, shard := range b.shards {
		close(shard)
	}
	b.chanMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		GetLogger().Info("event bus stopped",
			logger.Uint64("processed", b.processed.Load()),
			logger.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		GetLogger().Warn("event bus shutdown timeout exceeded")
		return errors.New(ctx.Err()).
			Component("events").
			Category(errors.CategoryTimeout).
			Context("operation", "stop_event_bus").
			Build()
	}
}

// Stats returns current event bus statistics
func (b *Bus) Stats() BusStats {
	return BusStats{
		EventsReceived:  b.received.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		ConsumerErrors:  b.failed.Load(),
	}
}
