package acquisition

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// SessionConfig describes the session a registry should create
type SessionConfig struct {
	Board Board
	// Capacity is the ring buffer size in frames.
	Capacity int
	// Channels, when non-zero, must match the channel count the board reports.
	Channels int
	// SampleRate overrides the board rate when the board reports none. Informational.
	SampleRate float64
	Overflow   OverflowPolicy
}

func (c SessionConfig) validate(deviceID string) error {
	switch {
	case deviceID == "":
		return newError(ErrInvalidConfig, errors.CategoryValidation).
			Context("reason", "empty device id").
			Build()
	case c.Board == nil:
		return newError(ErrInvalidConfig, errors.CategoryValidation).
			Context("reason", "nil board").
			Context("device_id", deviceID).
			Build()
	case c.Capacity < 1:
		return newError(ErrInvalidCapacity, errors.CategoryValidation).
			Context("capacity", c.Capacity).
			Context("device_id", deviceID).
			Build()
	case c.Channels < 0:
		return newError(ErrInvalidChannelCount, errors.CategoryValidation).
			Context("channels", c.Channels).
			Context("device_id", deviceID).
			Build()
	case c.Capacity > MaxBufferValues/max(c.Channels, 1):
		return newError(ErrInvalidCapacity, errors.CategoryValidation).
			Context("capacity", c.Capacity).
			Context("channels", c.Channels).
			Context("device_id", deviceID).
			Build()
	}
	return nil
}

// Session drives one board through prepare, start, stop and release and
// buffers the frames it produces.
type Session struct {
	id       string
	deviceID string
	cfg      SessionConfig
	registry *Registry
	log      logger.Logger

	// transitionMu serializes lifecycle transitions and may be held across board calls.
	transitionMu sync.Mutex

	// stateMu guards the fields below; it is never held across board calls.
	stateMu   sync.RWMutex
	state     State
	spec      BoardSpec
	buffer    *RingBuffer
	createdAt time.Time
	startedAt time.Time
	stoppedAt time.Time

	// gateMu guards the producer path. Stop takes the write lock after the
	// board confirms shutdown, which waits out in-flight pushes.
	gateMu    sync.RWMutex
	accepting   bool
	boardStamps bool
	sink        *RingBuffer
	epoch       time.Time

	pendingMarker atomic.Uint64
	mismatchLog   *rate.Limiter
}

func newSession(id, deviceID string, cfg SessionConfig, registry *Registry) *Session {
	return &Session{
		id:          id,
		deviceID:    deviceID,
		cfg:         cfg,
		registry:    registry,
		log:         GetLogger().With(logger.String("session_id", id), logger.String("device_id", deviceID)),
		state:       StateCreated,
		createdAt:   time.Now(),
		mismatchLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// ID returns the registry-assigned session id
func (s *Session) ID() string { return s.id }

// DeviceID returns the device this session holds
func (s *Session) DeviceID() string { return s.deviceID }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Spec returns the board description from handshake; zero before Prepare.
func (s *Session) Spec() BoardSpec {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.spec.Clone()
}

// Stats returns a snapshot of the session and its buffer
func (s *Session) Stats() SessionStats {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() SessionStats {
	st := SessionStats{
		SessionID: s.id,
		DeviceID:  s.deviceID,
		State:     s.state,
		Spec:      s.spec.Clone(),
		CreatedAt: s.createdAt,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
	}
	if s.buffer != nil {
		st.Buffer = s.buffer.Stats()
	} else {
		st.Buffer = BufferStats{Capacity: s.cfg.Capacity, Channels: s.spec.Channels, Policy: s.cfg.Overflow}
	}
	return st
}

// Prepare performs the board handshake. Calling it again once prepared is a no-op.
func (s *Session) Prepare(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	switch state := s.State(); state {
	case StateCreated:
	case StatePrepared:
		return nil
	case StateReleased:
		return stateError(ErrSessionReleased, "prepare", state)
	default:
		return stateError(ErrInvalidTransition, "prepare", state)
	}

	start := time.Now()
	spec, err := s.cfg.Board.Handshake(ctx)
	if err != nil {
		s.log.Warn("board handshake failed", logger.Error(err))
		return errors.New(fmt.Errorf("%w: %w", ErrPrepareFailed, err)).
			Component(ComponentAcquisition).
			Category(errors.CategoryBoard).
			Context("device_id", s.deviceID).
			Timing("handshake", time.Since(start)).
			Build()
	}

	if spec.Channels < 1 {
		return errors.New(fmt.Errorf("%w: %w", ErrPrepareFailed, ErrInvalidChannelCount)).
			Component(ComponentAcquisition).
			Category(errors.CategoryBoard).
			Context("board", spec.Name).
			Context("channels", spec.Channels).
			Build()
	}
	if s.cfg.Channels != 0 && s.cfg.Channels != spec.Channels {
		return errors.New(fmt.Errorf("%w: %w", ErrPrepareFailed, ErrChannelCountMismatch)).
			Component(ComponentAcquisition).
			Category(errors.CategoryValidation).
			Context("board", spec.Name).
			Context("expected_channels", s.cfg.Channels).
			Context("board_channels", spec.Channels).
			Build()
	}
	if s.cfg.Capacity > MaxBufferValues/spec.Channels {
		return errors.New(fmt.Errorf("%w: %w", ErrPrepareFailed, ErrInvalidCapacity)).
			Component(ComponentAcquisition).
			Category(errors.CategoryValidation).
			Context("board", spec.Name).
			Context("capacity", s.cfg.Capacity).
			Context("board_channels", spec.Channels).
			Build()
	}
	if spec.SampleRate <= 0 {
		spec.SampleRate = s.cfg.SampleRate
	}

	s.stateMu.Lock()
	s.spec = spec.Clone()
	s.stateMu.Unlock()

	s.log.Info("session prepared",
		logger.String("board", spec.Name),
		logger.Int("channels", spec.Channels),
		logger.Float64("sample_rate", spec.SampleRate))
	s.transition(StatePrepared)
	return nil
}

// Start allocates the ring buffer and begins streaming. On board failure the
// session stays Prepared with no buffer.
func (s *Session) Start(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	switch state := s.State(); state {
	case StatePrepared:
	case StateStreaming:
		return stateError(ErrAlreadyStreaming, "start", state)
	case StateReleased:
		return stateError(ErrSessionReleased, "start", state)
	default:
		return stateError(ErrNotPrepared, "start", state)
	}

	spec := s.Spec()
	buffer, err := NewRingBuffer(s.cfg.Capacity, spec.Channels, WithOverflowPolicy(s.cfg.Overflow))
	if err != nil {
		return err
	}

	s.stateMu.Lock()
	s.buffer = buffer
	s.stateMu.Unlock()
	s.pendingMarker.Store(0)
	s.openGate(buffer, spec.StampsFrames)

	if err := s.cfg.Board.BeginStreaming(ctx, s.onFrame); err != nil {
		s.closeGate()
		s.stateMu.Lock()
		s.buffer = nil
		s.stateMu.Unlock()

		s.log.Warn("board failed to start streaming", logger.Error(err))
		return errors.New(fmt.Errorf("begin streaming: %w", err)).
			Component(ComponentAcquisition).
			Category(errors.CategoryBoard).
			Context("device_id", s.deviceID).
			Context("board", spec.Name).
			Build()
	}

	s.stateMu.Lock()
	s.startedAt = time.Now()
	s.stoppedAt = time.Time{}
	s.stateMu.Unlock()

	s.log.Info("streaming started",
		logger.Int("capacity", buffer.Capacity()),
		logger.String("overflow", buffer.Policy().String()))
	s.transition(StateStreaming)
	return nil
}

// Stop ends streaming. Buffered frames stay readable. Once Stop returns nil no
// further frame is accepted; on board failure the session keeps streaming.
func (s *Session) Stop(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Session) stopLocked(ctx context.Context) error {
	switch state := s.State(); state {
	case StateStreaming:
	case StateReleased:
		return stateError(ErrSessionReleased, "stop", state)
	default:
		return stateError(ErrInvalidTransition, "stop", state)
	}

	if err := s.cfg.Board.EndStreaming(ctx); err != nil {
		s.log.Warn("board failed to stop streaming", logger.Error(err))
		return errors.New(fmt.Errorf("end streaming: %w", err)).
			Component(ComponentAcquisition).
			Category(errors.CategoryBoard).
			Context("device_id", s.deviceID).
			Build()
	}
	s.closeGate()

	s.stateMu.Lock()
	s.stoppedAt = time.Now()
	s.stateMu.Unlock()

	stats := s.Stats().Buffer
	s.log.Info("streaming stopped",
		logger.Uint64("accepted", stats.Accepted),
		logger.Uint64("dropped", stats.Dropped),
		logger.Int("unread", stats.Unread))
	s.transition(StateStopped)
	return nil
}

// Release ends a stopped session, discards its buffer and frees the device id.
func (s *Session) Release() error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	switch state := s.State(); state {
	case StateStopped:
	case StateReleased:
		return stateError(ErrSessionReleased, "release", state)
	default:
		return stateError(ErrInvalidTransition, "release", state)
	}

	s.releaseLocked()
	return nil
}

// releaseLocked moves any state to Released without board calls.
func (s *Session) releaseLocked() {
	s.stateMu.Lock()
	s.buffer = nil
	s.stateMu.Unlock()

	s.transition(StateReleased)
	if s.registry != nil {
		s.registry.Remove(s.id)
	}
	s.log.Info("session released")
}

// shutdown brings the session to Released from any state, stopping the board
// first when streaming.
func (s *Session) shutdown(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	switch s.State() {
	case StateReleased:
		return nil
	case StateStreaming:
		if err := s.stopLocked(ctx); err != nil {
			return err
		}
	}
	s.releaseLocked()
	return nil
}

// transition records the new state and notifies observers. Caller holds transitionMu.
func (s *Session) transition(to State) {
	s.stateMu.Lock()
	from := s.state
	s.state = to
	stats := s.statsLocked()
	s.stateMu.Unlock()

	s.log.Debug("state changed", logger.String("from", from.String()), logger.String("to", to.String()))
	if s.registry != nil {
		s.registry.notify(Transition{
			SessionID: s.id,
			DeviceID:  s.deviceID,
			From:      from,
			To:        to,
			At:        time.Now(),
			Stats:     stats,
		})
	}
}

// Drain removes and returns up to maxN buffered frames; maxN <= 0 returns all.
func (s *Session) Drain(maxN int) ([]SampleFrame, error) {
	return s.read("drain", func(rb *RingBuffer) []SampleFrame { return rb.Drain(maxN) })
}

// Peek returns up to maxN buffered frames without consuming them.
func (s *Session) Peek(maxN int) ([]SampleFrame, error) {
	return s.read("peek", func(rb *RingBuffer) []SampleFrame { return rb.Peek(maxN) })
}

// Latest returns the newest maxN buffered frames without consuming them.
func (s *Session) Latest(maxN int) ([]SampleFrame, error) {
	return s.read("latest", func(rb *RingBuffer) []SampleFrame { return rb.Latest(maxN) })
}

// UnreadCount returns the number of buffered frames
func (s *Session) UnreadCount() (int, error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	if err := s.readableLocked("unread_count"); err != nil {
		return 0, err
	}
	return s.buffer.UnreadCount(), nil
}

func (s *Session) read(op string, fn func(*RingBuffer) []SampleFrame) ([]SampleFrame, error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	if err := s.readableLocked(op); err != nil {
		return nil, err
	}
	return fn(s.buffer), nil
}

func (s *Session) readableLocked(op string) error {
	switch s.state {
	case StateStreaming, StateStopped:
		return nil
	case StateReleased:
		return stateError(ErrSessionReleased, op, s.state)
	default:
		return stateError(ErrNotStreaming, op, s.state)
	}
}

// InsertMarker tags the next accepted frame with value. Only valid while streaming.
func (s *Session) InsertMarker(value float64) error {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()

	switch {
	case state == StateReleased:
		return stateError(ErrSessionReleased, "insert_marker", state)
	case value == 0 || math.IsNaN(value):
		return newError(ErrInvalidMarker, errors.CategoryValidation).
			Context("marker", value).
			Build()
	case state != StateStreaming:
		return stateError(ErrNotStreaming, "insert_marker", state)
	}

	s.pendingMarker.Store(math.Float64bits(value))
	return nil
}

func (s *Session) openGate(buffer *RingBuffer, boardStamps bool) {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	s.sink = buffer
	s.boardStamps = boardStamps
	s.epoch = time.Now()
	s.accepting = true
}

// closeGate waits for in-flight pushes and refuses later ones.
func (s *Session) closeGate() {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	s.accepting = false
	s.sink = nil
}

// onFrame is the producer path handed to the board.
func (s *Session) onFrame(timestamp int64, values []float64) {
	s.gateMu.RLock()
	defer s.gateMu.RUnlock()

	if !s.accepting {
		return
	}
	if !s.boardStamps {
		timestamp = time.Since(s.epoch).Nanoseconds()
	}

	markerBits := s.pendingMarker.Swap(0)
	stored, err := s.sink.Append(timestamp, values, math.Float64frombits(markerBits))
	if !stored && markerBits != 0 {
		s.pendingMarker.CompareAndSwap(0, markerBits)
	}
	if err != nil && s.mismatchLog.Allow() {
		s.log.Warn("dropping malformed frame",
			logger.Int("expected_channels", s.sink.Channels()),
			logger.Int("got_channels", len(values)),
			logger.Uint64("rejected_total", s.sink.Stats().Rejected))
	}
}
