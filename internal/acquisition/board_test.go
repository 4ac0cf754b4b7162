package acquisition

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeBoard records calls and lets tests drive the producer path by hand.
type fakeBoard struct {
	mu           sync.Mutex
	spec         BoardSpec
	handshakeErr error
	beginErr     error
	endErr       error

	handler     SampleHandler
	lastHandler SampleHandler
	handshakes  int
	begins      int
	ends        int
}

func newFakeBoard(channels int) *fakeBoard {
	return &fakeBoard{spec: BoardSpec{Name: "fake", Channels: channels, SampleRate: 250, StampsFrames: true}}
}

func (b *fakeBoard) Handshake(context.Context) (BoardSpec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handshakes++
	if b.handshakeErr != nil {
		return BoardSpec{}, b.handshakeErr
	}
	return b.spec, nil
}

func (b *fakeBoard) BeginStreaming(_ context.Context, onFrame SampleHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.begins++
	if b.beginErr != nil {
		return b.beginErr
	}
	b.handler = onFrame
	b.lastHandler = onFrame
	return nil
}

func (b *fakeBoard) EndStreaming(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends++
	if b.endErr != nil {
		return b.endErr
	}
	b.handler = nil
	return nil
}

func (b *fakeBoard) setErrs(handshake, begin, end error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handshakeErr, b.beginErr, b.endErr = handshake, begin, end
}

// emit delivers one frame through the active handler, if any.
func (b *fakeBoard) emit(timestamp int64, values ...float64) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h(timestamp, values)
	}
}

// emitStale delivers through the handler captured at BeginStreaming even
// after EndStreaming, as a misbehaving board would.
func (b *fakeBoard) emitStale(timestamp int64, values ...float64) {
	b.mu.Lock()
	h := b.lastHandler
	b.mu.Unlock()
	if h != nil {
		h(timestamp, values)
	}
}

// spinningBoard pushes frames from its own goroutine as fast as it can.
type spinningBoard struct {
	channels int
	emitted  atomic.Uint64
	stop     chan struct{}
	done     chan struct{}
}

func (b *spinningBoard) Handshake(context.Context) (BoardSpec, error) {
	return BoardSpec{Name: "spinning", Channels: b.channels, SampleRate: 1000}, nil
}

func (b *spinningBoard) BeginStreaming(_ context.Context, onFrame SampleHandler) error {
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	values := make([]float64, b.channels)
	go func() {
		defer close(b.done)
		for i := int64(1); ; i++ {
			select {
			case <-b.stop:
				return
			default:
			}
			values[0] = float64(i)
			onFrame(i, values)
			b.emitted.Add(1)
		}
	}()
	return nil
}

func (b *spinningBoard) EndStreaming(context.Context) error {
	close(b.stop)
	<-b.done
	return nil
}
