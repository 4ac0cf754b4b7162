package acquisition

import (
	"fmt"
	"sync"

	"github.com/tphakala/biosignal-go/internal/errors"
)

// OverflowPolicy decides what a full RingBuffer does with an incoming frame.
type OverflowPolicy int

const (
	// OverflowOverwriteOldest evicts the oldest unread frame. Default.
	OverflowOverwriteOldest OverflowPolicy = iota
	// OverflowDropNewest discards the incoming frame and keeps the backlog.
	OverflowDropNewest
)

// String returns the config name of the policy
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowOverwriteOldest:
		return "overwrite-oldest"
	case OverflowDropNewest:
		return "drop-newest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// MarshalText encodes the policy by name
func (p OverflowPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy name
func (p *OverflowPolicy) UnmarshalText(text []byte) error {
	policy, err := ParseOverflowPolicy(string(text))
	if err != nil {
		return err
	}
	*p = policy
	return nil
}

// ParseOverflowPolicy maps a config name to a policy. Empty selects the default.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch name {
	case "", "overwrite-oldest":
		return OverflowOverwriteOldest, nil
	case "drop-newest":
		return OverflowDropNewest, nil
	default:
		return 0, newError(ErrInvalidConfig, errors.CategoryValidation).
			Context("overflow_policy", name).
			Build()
	}
}

// BufferStats is a point-in-time view of a RingBuffer
type BufferStats struct {
	Capacity int            `json:"capacity"`
	Channels int            `json:"channels"`
	Unread   int            `json:"unread"`
	Policy   OverflowPolicy `json:"policy"`
	// Accepted counts frames stored, including ones later overwritten.
	Accepted uint64 `json:"accepted"`
	// Overwritten counts unread frames evicted by OverflowOverwriteOldest.
	Overwritten uint64 `json:"overwritten"`
	// Rejected counts frames refused for a channel count mismatch.
	Rejected uint64 `json:"rejected"`
	// Discarded counts incoming frames refused by OverflowDropNewest.
	Discarded uint64 `json:"discarded"`
	Dropped   uint64 `json:"dropped"`
}

// RingBufferOption configures a RingBuffer
type RingBufferOption func(*RingBuffer)

// WithOverflowPolicy selects the full-buffer behavior
func WithOverflowPolicy(policy OverflowPolicy) RingBufferOption {
	return func(rb *RingBuffer) {
		rb.policy = policy
	}
}

// RingBuffer is a fixed-capacity FIFO of SampleFrames safe for one producer
// and any number of consumers. Each slot owns preallocated value storage so
// Push copies and never allocates.
type RingBuffer struct {
	mu       sync.Mutex
	slots    []SampleFrame
	channels int
	policy   OverflowPolicy

	head  int // oldest unread slot
	tail  int // next slot to write
	count int

	nextSeq     uint64
	accepted    uint64
	overwritten uint64
	rejected    uint64
	discarded   uint64
}

// MaxBufferValues caps capacity*channels for one buffer, 1 GiB of float64.
const MaxBufferValues = 1 << 27

// NewRingBuffer allocates a buffer of capacity frames with channels values each.
func NewRingBuffer(capacity, channels int, opts ...RingBufferOption) (*RingBuffer, error) {
	if capacity < 1 {
		return nil, newError(ErrInvalidCapacity, errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}
	if channels < 1 {
		return nil, newError(ErrInvalidChannelCount, errors.CategoryValidation).
			Context("channels", channels).
			Build()
	}
	if capacity > MaxBufferValues/channels {
		return nil, newError(ErrInvalidCapacity, errors.CategoryValidation).
			Context("capacity", capacity).
			Context("channels", channels).
			Context("max_values", MaxBufferValues).
			Build()
	}

	rb := &RingBuffer{
		slots:    make([]SampleFrame, capacity),
		channels: channels,
	}
	for _, opt := range opts {
		opt(rb)
	}

	backing := make([]float64, capacity*channels)
	for i := range rb.slots {
		rb.slots[i].Values = backing[i*channels : (i+1)*channels : (i+1)*channels]
	}
	return rb, nil
}

// Push stores a copy of frame, keeping its Sequence. A full buffer applies the
// overflow policy silently. A frame with the wrong channel count is counted
// and rejected with ErrChannelCountMismatch.
func (rb *RingBuffer) Push(frame SampleFrame) error {
	if _, err := rb.store(frame.Sequence, false, frame.Timestamp, frame.Values, frame.Marker); err != nil {
		return newError(err, errors.CategoryBuffer).
			Context("expected_channels", rb.channels).
			Context("got_channels", len(frame.Values)).
			Build()
	}
	return nil
}

// Append stores a frame stamped with the buffer's own sequence counter, which
// advances only for stored frames. It reports whether the frame was stored and
// returns the bare ErrChannelCountMismatch sentinel so the producer path does
// not allocate.
func (rb *RingBuffer) Append(timestamp int64, values []float64, marker float64) (bool, error) {
	return rb.store(0, true, timestamp, values, marker)
}

func (rb *RingBuffer) store(seq uint64, stamp bool, timestamp int64, values []float64, marker float64) (bool, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(values) != rb.channels {
		rb.rejected++
		return false, ErrChannelCountMismatch
	}

	if rb.count == len(rb.slots) {
		if rb.policy == OverflowDropNewest {
			rb.discarded++
			return false, nil
		}
		rb.head = (rb.head + 1) % len(rb.slots)
		rb.count--
		rb.overwritten++
	}

	if stamp {
		seq = rb.nextSeq
	}
	rb.nextSeq = seq + 1

	slot := &rb.slots[rb.tail]
	slot.Sequence = seq
	slot.Timestamp = timestamp
	slot.Marker = marker
	copy(slot.Values, values)

	rb.tail = (rb.tail + 1) % len(rb.slots)
	rb.count++
	rb.accepted++
	return true, nil
}

// Drain removes and returns up to maxN unread frames, oldest first.
// maxN <= 0 drains everything.
func (rb *RingBuffer) Drain(maxN int) []SampleFrame {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := rb.limit(maxN)
	out := rb.copyOut(rb.head, n)
	rb.head = (rb.head + n) % len(rb.slots)
	rb.count -= n
	return out
}

// Peek returns the same frames Drain would without consuming them.
func (rb *RingBuffer) Peek(maxN int) []SampleFrame {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.copyOut(rb.head, rb.limit(maxN))
}

// Latest returns the newest maxN unread frames, oldest first, without consuming them.
func (rb *RingBuffer) Latest(maxN int) []SampleFrame {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := rb.limit(maxN)
	start := (rb.head + rb.count - n) % len(rb.slots)
	return rb.copyOut(start, n)
}

func (rb *RingBuffer) limit(maxN int) int {
	if maxN <= 0 || maxN > rb.count {
		return rb.count
	}
	return maxN
}

// copyOut copies n frames starting at slot start into caller-owned memory.
func (rb *RingBuffer) copyOut(start, n int) []SampleFrame {
	if n == 0 {
		return []SampleFrame{}
	}

	out := make([]SampleFrame, n)
	values := make([]float64, n*rb.channels)
	for i := range n {
		slot := &rb.slots[(start+i)%len(rb.slots)]
		dst := values[i*rb.channels : (i+1)*rb.channels : (i+1)*rb.channels]
		copy(dst, slot.Values)
		out[i] = SampleFrame{
			Sequence:  slot.Sequence,
			Timestamp: slot.Timestamp,
			Values:    dst,
			Marker:    slot.Marker,
		}
	}
	return out
}

// UnreadCount returns the number of frames waiting to be drained
func (rb *RingBuffer) UnreadCount() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Capacity returns the fixed frame capacity
func (rb *RingBuffer) Capacity() int {
	return len(rb.slots)
}

// Channels returns the fixed channel count
func (rb *RingBuffer) Channels() int {
	return rb.channels
}

// Policy returns the overflow policy
func (rb *RingBuffer) Policy() OverflowPolicy {
	return rb.policy
}

// Dropped returns the total of overwritten, rejected and discarded frames.
func (rb *RingBuffer) Dropped() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.overwritten + rb.rejected + rb.discarded
}

// Stats returns a consistent snapshot of the buffer counters
func (rb *RingBuffer) Stats() BufferStats {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return BufferStats{
		Capacity:    len(rb.slots),
		Channels:    rb.channels,
		Unread:      rb.count,
		Policy:      rb.policy,
		Accepted:    rb.accepted,
		Overwritten: rb.overwritten,
		Rejected:    rb.rejected,
		Discarded:   rb.discarded,
		Dropped:     rb.overwritten + rb.rejected + rb.discarded,
	}
}

// Reset discards unread frames. Counters and the sequence are kept.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.head = 0
	rb.tail = 0
	rb.count = 0
}
