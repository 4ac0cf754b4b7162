package acquisition

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// Registry maps device ids to their live session. It is an explicit value
// shared by whoever needs it; there is no package-level instance.
type Registry struct {
	mu       sync.Mutex
	byDevice map[string]*Session
	byID     map[string]string // session id -> device id

	observers []Observer
	newID     func() string
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithObserver adds an observer that receives every session transition
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithIDGenerator replaces the UUID session id generator
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byDevice: make(map[string]*Session),
		byID:     make(map[string]string),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire creates a session in Created state for deviceID. It fails with
// ErrDeviceBusy while another live session holds the device.
func (r *Registry) Acquire(deviceID string, cfg SessionConfig) (*Session, error) {
	if err := cfg.validate(deviceID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.byDevice[deviceID]; ok && existing.State().Live() {
		r.mu.Unlock()
		return nil, newError(ErrDeviceBusy, errors.CategoryConflict).
			Context("device_id", deviceID).
			Context("session_id", existing.ID()).
			Build()
	} else if ok {
		delete(r.byID, existing.ID())
	}

	session := newSession(r.newID(), deviceID, cfg, r)
	r.byDevice[deviceID] = session
	r.byID[session.id] = deviceID
	r.mu.Unlock()

	GetLogger().Info("session acquired",
		logger.String("device_id", deviceID),
		logger.String("session_id", session.id),
		logger.Int("capacity", cfg.Capacity))
	r.notify(Transition{
		SessionID: session.id,
		DeviceID:  deviceID,
		From:      StateNone,
		To:        StateCreated,
		At:        session.createdAt,
		Stats:     session.Stats(),
	})
	return session, nil
}

// Lookup returns the session registered for deviceID
func (r *Registry) Lookup(deviceID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byDevice[deviceID]
	if !ok {
		return nil, newError(ErrNotFound, errors.CategoryNotFound).
			Context("device_id", deviceID).
			Build()
	}
	return session, nil
}

// LookupSession returns the session with the given session id
func (r *Registry) LookupSession(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if deviceID, ok := r.byID[sessionID]; ok {
		if session, ok := r.byDevice[deviceID]; ok && session.id == sessionID {
			return session, nil
		}
	}
	return nil, newError(ErrNotFound, errors.CategoryNotFound).
		Context("session_id", sessionID).
		Build()
}

// Remove deregisters a session. Unknown ids are ignored.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deviceID, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(r.byID, sessionID)
	if session, ok := r.byDevice[deviceID]; ok && session.id == sessionID {
		delete(r.byDevice, deviceID)
	}
}

// Sessions returns the registered sessions ordered by device id
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byDevice))
	for _, s := range r.byDevice {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		switch {
		case a.deviceID < b.deviceID:
			return -1
		case a.deviceID > b.deviceID:
			return 1
		default:
			return 0
		}
	})
	return sessions
}

// Snapshot returns stats for every registered session
func (r *Registry) Snapshot() []SessionStats {
	sessions := r.Sessions()
	stats := make([]SessionStats, len(sessions))
	for i, s := range sessions {
		stats[i] = s.Stats()
	}
	return stats
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byDevice)
}

// Shutdown stops streaming sessions and releases every session concurrently.
// Sessions whose board fails to stop stay registered; the first such error is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	sessions := r.Sessions()
	if len(sessions) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			return s.shutdown(ctx)
		})
	}
	err := g.Wait()

	GetLogger().Info("registry shut down",
		logger.Int("sessions", len(sessions)),
		logger.Int("remaining", r.Len()))
	return err
}

func (r *Registry) notify(t Transition) {
	for _, o := range r.observers {
		o.OnTransition(t)
	}
}
