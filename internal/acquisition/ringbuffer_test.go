package acquisition

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosignal-go/internal/errors"
)

func mustRing(t *testing.T, capacity, channels int, opts ...RingBufferOption) *RingBuffer {
	t.Helper()
	rb, err := NewRingBuffer(capacity, channels, opts...)
	require.NoError(t, err)
	return rb
}

func frameAt(seq uint64, values ...float64) SampleFrame {
	return NewSampleFrame(seq, int64(seq), values)
}

func sequences(frames []SampleFrame) []uint64 {
	out := make([]uint64, len(frames))
	for i, f := range frames {
		out[i] = f.Sequence
	}
	return out
}

func TestNewRingBufferValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRingBuffer(0, 2)
	require.ErrorIs(t, err, ErrInvalidCapacity)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = NewRingBuffer(-3, 2)
	require.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = NewRingBuffer(4, 0)
	require.ErrorIs(t, err, ErrInvalidChannelCount)

	for _, size := range [][2]int{{1 << 62, 4}, {MaxBufferValues + 1, 1}, {MaxBufferValues/4 + 1, 4}} {
		_, err = NewRingBuffer(size[0], size[1])
		require.ErrorIs(t, err, ErrInvalidCapacity, "capacity %d channels %d", size[0], size[1])
	}

	rb := mustRing(t, 1, 1)
	assert.Equal(t, 1, rb.Capacity())
	assert.Equal(t, 1, rb.Channels())
	assert.Equal(t, OverflowOverwriteOldest, rb.Policy())
}

func TestRingBufferFillBelowCapacity(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 8, 2)
	for i := range uint64(5) {
		require.NoError(t, rb.Push(frameAt(i, float64(i), -float64(i))))
	}

	assert.Equal(t, 5, rb.UnreadCount())
	frames := rb.Drain(5)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, sequences(frames))
	assert.Equal(t, []float64{3, -3}, frames[3].Values)
	assert.Zero(t, rb.Dropped())
	assert.Zero(t, rb.UnreadCount())
}

func TestRingBufferOverwriteOldest(t *testing.T) {
	t.Parallel()

	const capacity, pushes = 5, 12
	rb := mustRing(t, capacity, 1)
	for i := range uint64(pushes) {
		require.NoError(t, rb.Push(frameAt(i, float64(i))))
	}

	assert.Equal(t, uint64(pushes-capacity), rb.Dropped())
	assert.Equal(t, capacity, rb.UnreadCount())

	frames := rb.Drain(0)
	assert.Equal(t, []uint64{7, 8, 9, 10, 11}, sequences(frames))

	stats := rb.Stats()
	assert.Equal(t, uint64(pushes), stats.Accepted)
	assert.Equal(t, uint64(pushes-capacity), stats.Overwritten)
	assert.Zero(t, stats.Rejected)
}

// Capacity 4, two channels, five pushes stamped t=0..4.
func TestRingBufferScenarioCapacityFour(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 4, 2)
	for i := range 5 {
		require.NoError(t, rb.Push(SampleFrame{
			Sequence:  uint64(i),
			Timestamp: int64(i),
			Values:    []float64{float64(i), float64(i) * 10},
		}))
	}

	assert.Equal(t, uint64(1), rb.Dropped())

	frames := rb.Drain(4)
	require.Len(t, frames, 4)
	for i, f := range frames {
		assert.Equal(t, int64(i+1), f.Timestamp)
	}
	assert.Empty(t, rb.Drain(4))
}

func TestRingBufferPeekThenDrain(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 6, 3)
	for i := range uint64(4) {
		require.NoError(t, rb.Push(frameAt(i, 1, 2, float64(i))))
	}

	peeked := rb.Peek(3)
	assert.Equal(t, 4, rb.UnreadCount(), "peek must not consume")

	drained := rb.Drain(3)
	assert.Equal(t, peeked, drained)
	assert.Equal(t, 1, rb.UnreadCount())
}

func TestRingBufferChannelMismatch(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 4, 2)
	require.NoError(t, rb.Push(frameAt(0, 1, 2)))

	err := rb.Push(frameAt(1, 1, 2, 3))
	require.ErrorIs(t, err, ErrChannelCountMismatch)
	assert.True(t, errors.IsCategory(err, errors.CategoryBuffer))

	assert.Equal(t, uint64(1), rb.Dropped())
	assert.Equal(t, 1, rb.UnreadCount())
	assert.Equal(t, uint64(1), rb.Stats().Rejected)
}

func TestRingBufferDropNewest(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 3, 1, WithOverflowPolicy(OverflowDropNewest))
	for i := range uint64(5) {
		require.NoError(t, rb.Push(frameAt(i, float64(i))))
	}

	stats := rb.Stats()
	assert.Equal(t, uint64(2), stats.Discarded)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Zero(t, stats.Overwritten)
	assert.Equal(t, []uint64{0, 1, 2}, sequences(rb.Drain(0)))

	require.NoError(t, rb.Push(frameAt(9, 9)))
	assert.Equal(t, []uint64{9}, sequences(rb.Drain(0)))
}

func TestRingBufferLatest(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 4, 1)
	for i := range uint64(6) {
		require.NoError(t, rb.Push(frameAt(i, float64(i))))
	}

	assert.Equal(t, []uint64{4, 5}, sequences(rb.Latest(2)))
	assert.Equal(t, []uint64{2, 3, 4, 5}, sequences(rb.Latest(10)))
	assert.Equal(t, 4, rb.UnreadCount())
}

func TestRingBufferAppendStampsContiguousSequences(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 8, 2)
	for i := range 4 {
		stored, err := rb.Append(int64(i), []float64{1, 2}, 0)
		require.NoError(t, err)
		assert.True(t, stored)
	}
	stored, err := rb.Append(99, []float64{1}, 0)
	require.ErrorIs(t, err, ErrChannelCountMismatch)
	assert.False(t, stored)

	stored, err = rb.Append(5, []float64{3, 4}, 7.5)
	require.NoError(t, err)
	assert.True(t, stored)

	frames := rb.Drain(0)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, sequences(frames))
	assert.InDelta(t, 7.5, frames[4].Marker, 0)
}

func TestRingBufferCopiesValues(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 2, 2)
	input := []float64{1, 2}
	require.NoError(t, rb.Push(SampleFrame{Values: input}))
	input[0] = 100

	peeked := rb.Peek(1)
	assert.Equal(t, []float64{1, 2}, peeked[0].Values)

	peeked[0].Values[1] = -1
	assert.Equal(t, []float64{1, 2}, rb.Drain(1)[0].Values)
}

func TestRingBufferReset(t *testing.T) {
	t.Parallel()

	rb := mustRing(t, 3, 1)
	for i := range uint64(4) {
		require.NoError(t, rb.Push(frameAt(i, 0)))
	}
	rb.Reset()

	assert.Zero(t, rb.UnreadCount())
	assert.Equal(t, uint64(1), rb.Dropped(), "counters survive reset")
	assert.Empty(t, rb.Drain(0))
}

func TestRingBufferPushDoesNotAllocate(t *testing.T) {
	rb := mustRing(t, 64, 8)
	frame := SampleFrame{Values: make([]float64, 8)}

	allocs := testing.AllocsPerRun(1000, func() {
		_ = rb.Push(frame)
	})
	assert.Zero(t, allocs)
}

func TestRingBufferConcurrentConsumersNeverShareFrames(t *testing.T) {
	t.Parallel()

	const (
		total     = 20000
		consumers = 4
	)
	rb := mustRing(t, 256, 2)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		seen     = make(map[uint64]int)
		done     = make(chan struct{})
		orderErr bool
	)

	for range consumers {
		wg.Go(func() {
			var last int64 = -1
			collect := func(frames []SampleFrame) {
				mu.Lock()
				defer mu.Unlock()
				for _, f := range frames {
					seen[f.Sequence]++
					if int64(f.Sequence) <= last {
						orderErr = true
					}
					last = int64(f.Sequence)
				}
			}
			for {
				select {
				case <-done:
					collect(rb.Drain(0))
					return
				default:
					collect(rb.Drain(7))
				}
			}
		})
	}

	for i := range total {
		_, err := rb.Append(int64(i), []float64{1, 2}, 0)
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	assert.False(t, orderErr, "a consumer saw sequences out of order")
	for seq, n := range seen {
		if n != 1 {
			t.Fatalf("sequence %d delivered %d times", seq, n)
		}
	}
	stats := rb.Stats()
	assert.Equal(t, uint64(total), stats.Accepted)
	assert.Equal(t, uint64(total), uint64(len(seen))+stats.Overwritten)
}
