package acquisition

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosignal-go/internal/errors"
)

type recordingObserver struct {
	mu          sync.Mutex
	transitions []Transition
}

func (o *recordingObserver) OnTransition(t Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) path() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.transitions))
	for i, t := range o.transitions {
		out[i] = t.From.String() + ">" + t.To.String()
	}
	return out
}

func TestRegistryAcquireValidation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	board := newFakeBoard(2)

	tests := []struct {
		name     string
		deviceID string
		cfg      SessionConfig
		want     error
	}{
		{"empty device", "", SessionConfig{Board: board, Capacity: 1}, ErrInvalidConfig},
		{"nil board", "d", SessionConfig{Capacity: 1}, ErrInvalidConfig},
		{"zero capacity", "d", SessionConfig{Board: board}, ErrInvalidCapacity},
		{"negative channels", "d", SessionConfig{Board: board, Capacity: 1, Channels: -1}, ErrInvalidChannelCount},
		{"capacity overflows int", "d", SessionConfig{Board: board, Capacity: 1 << 62, Channels: 4}, ErrInvalidCapacity},
		{"capacity above value limit", "d", SessionConfig{Board: board, Capacity: MaxBufferValues + 1}, ErrInvalidCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Acquire(tt.deviceID, tt.cfg)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
	assert.Zero(t, reg.Len())
}

func TestRegistryDeviceBusyUntilRelease(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	board := newFakeBoard(2)
	cfg := SessionConfig{Board: board, Capacity: 4}

	first, err := reg.Acquire("cyton", cfg)
	require.NoError(t, err)

	_, err = reg.Acquire("cyton", cfg)
	require.ErrorIs(t, err, ErrDeviceBusy)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	other, err := reg.Acquire("ganglion", cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), other.ID())

	ctx := t.Context()
	require.NoError(t, first.Prepare(ctx))
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.Stop(ctx))
	require.NoError(t, first.Release())

	_, err = reg.Lookup("cyton")
	require.ErrorIs(t, err, ErrNotFound)

	second, err := reg.Acquire("cyton", cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, StateCreated, second.State())
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	ids := []string{"id-a", "id-b"}
	next := 0
	reg := NewRegistry(WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	a, err := reg.Acquire("b-device", SessionConfig{Board: newFakeBoard(1), Capacity: 1})
	require.NoError(t, err)
	b, err := reg.Acquire("a-device", SessionConfig{Board: newFakeBoard(1), Capacity: 1})
	require.NoError(t, err)
	assert.Equal(t, "id-a", a.ID())

	got, err := reg.Lookup("b-device")
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = reg.LookupSession("id-b")
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = reg.LookupSession("missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsNotFound(err))

	sessions := reg.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "a-device", sessions[0].DeviceID())
	assert.Len(t, reg.Snapshot(), 2)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	s, err := reg.Acquire("dev", SessionConfig{Board: newFakeBoard(1), Capacity: 1})
	require.NoError(t, err)

	reg.Remove("not-a-session")
	assert.Equal(t, 1, reg.Len())

	reg.Remove(s.ID())
	reg.Remove(s.ID())
	assert.Zero(t, reg.Len())
}

func TestRegistryObserverSeesFullLifecycle(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	reg := NewRegistry(WithObserver(obs), WithObserver(nil))
	board := newFakeBoard(2)

	s, err := reg.Acquire("dev", SessionConfig{Board: board, Capacity: 4})
	require.NoError(t, err)
	ctx := t.Context()
	require.NoError(t, s.Prepare(ctx))
	require.NoError(t, s.Prepare(ctx))
	require.NoError(t, s.Start(ctx))
	board.emit(1, 1, 2)
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Release())

	assert.Equal(t, []string{
		"none>created",
		"created>prepared",
		"prepared>streaming",
		"streaming>stopped",
		"stopped>released",
	}, obs.path())

	last := obs.transitions[3]
	assert.Equal(t, s.ID(), last.SessionID)
	assert.Equal(t, uint64(1), last.Stats.Buffer.Accepted)
	assert.Equal(t, StateStopped, last.Stats.State)
}

func TestRegistryShutdown(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	ctx := t.Context()

	created, err := reg.Acquire("created", SessionConfig{Board: newFakeBoard(1), Capacity: 2})
	require.NoError(t, err)

	streamingBoard := newFakeBoard(1)
	streaming, err := reg.Acquire("streaming", SessionConfig{Board: streamingBoard, Capacity: 2})
	require.NoError(t, err)
	require.NoError(t, streaming.Prepare(ctx))
	require.NoError(t, streaming.Start(ctx))

	stuckBoard := newFakeBoard(1)
	stuck, err := reg.Acquire("stuck", SessionConfig{Board: stuckBoard, Capacity: 2})
	require.NoError(t, err)
	require.NoError(t, stuck.Prepare(ctx))
	require.NoError(t, stuck.Start(ctx))
	stuckBoard.setErrs(nil, nil, fmt.Errorf("usb reset"))

	err = reg.Shutdown(t.Context())
	require.Error(t, err)

	assert.Equal(t, StateReleased, created.State())
	assert.Equal(t, StateReleased, streaming.State())
	assert.Equal(t, 1, streamingBoard.ends)
	assert.Equal(t, StateStreaming, stuck.State())
	assert.Equal(t, 1, reg.Len())

	stuckBoard.setErrs(nil, nil, nil)
	require.NoError(t, reg.Shutdown(ctx))
	assert.Zero(t, reg.Len())
}

func TestRegistryConcurrentAcquireOneWinner(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Go(func() {
			_, err := reg.Acquire("shared", SessionConfig{Board: newFakeBoard(1), Capacity: 1})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrDeviceBusy)
		})
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
