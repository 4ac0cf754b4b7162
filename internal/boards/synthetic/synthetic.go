// Package synthetic provides a board that generates test EEG-like signals.
package synthetic

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

const (
	DefaultChannels   = 16
	DefaultSampleRate = 250.0
	DefaultAmplitude  = 50.0 // µV
	DefaultNoise      = 5.0  // µV
	DefaultQueueDepth = 256  // frames between generator and delivery

	// tickInterval bounds generator wakeups; each tick emits every sample that came due.
	tickInterval = 4 * time.Millisecond
	// maxCatchUp caps samples emitted in one tick after a scheduler stall.
	maxCatchUp = 1024
)

// Config shapes the generated signal. Zero fields take defaults.
type Config struct {
	Channels   int
	SampleRate float64
	Amplitude  float64
	Noise      float64
	Seed       int64 // 0 seeds from the clock
	QueueDepth int
}

// Board generates per-channel sine waves with gaussian noise.
// Channel c oscillates at 2+c Hz so channels are distinguishable.
type Board struct {
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	generated atomic.Uint64
	overflows atomic.Uint64
}

// New creates a synthetic board
func New(cfg Config) *Board {
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = DefaultAmplitude
	}
	if cfg.Noise < 0 {
		cfg.Noise = 0
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Board{
		cfg: cfg,
		log: logger.Global().Module("boards").Module("synthetic"),
	}
}

// Handshake reports the generated layout. All channels are EEG.
func (b *Board) Handshake(ctx context.Context) (acquisition.BoardSpec, error) {
	if err := ctx.Err(); err != nil {
		return acquisition.BoardSpec{}, err
	}

	eeg := make([]int, b.cfg.Channels)
	for i := range eeg {
		eeg[i] = i
	}
	return acquisition.BoardSpec{
		Name:         "synthetic",
		Channels:     b.cfg.Channels,
		SampleRate:   b.cfg.SampleRate,
		EEGChannels:  eeg,
		Units:        "uV",
		StampsFrames: true,
	}, nil
}

// BeginStreaming starts the generator and delivery goroutines. Streaming
// outlives ctx; only EndStreaming stops it.
func (b *Board) BeginStreaming(ctx context.Context, onFrame acquisition.SampleHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.Newf("synthetic board already streaming").
			Component("boards").
			Category(errors.CategoryState).
			Build()
	}
	if onFrame == nil {
		return errors.Newf("nil sample handler").
			Component("boards").
			Category(errors.CategoryValidation).
			Build()
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	queue := make(chan []float64, b.cfg.QueueDepth)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Go(func() {
		defer close(queue)
		b.generate(streamCtx, queue)
	})
	wg.Go(func() {
		for values := range queue {
			onFrame(time.Now().UnixNano(), values)
		}
	})
	go func() {
		wg.Wait()
		close(done)
	}()

	b.running = true
	b.cancel = cancel
	b.done = done

	b.log.Info("synthetic stream started",
		logger.Int("channels", b.cfg.Channels),
		logger.Float64("sample_rate", b.cfg.SampleRate))
	return nil
}

// EndStreaming stops generation and waits until the last frame is delivered.
func (b *Board) EndStreaming(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}
	b.cancel()

	select {
	case <-b.done:
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("boards").
			Category(errors.CategoryTimeout).
			Context("operation", "end_streaming").
			Build()
	}

	b.running = false
	b.log.Info("synthetic stream stopped",
		logger.Uint64("generated", b.generated.Load()),
		logger.Uint64("queue_overflows", b.overflows.Load()))
	return nil
}

// Generated returns the number of sample vectors produced so far
func (b *Board) Generated() uint64 {
	return b.generated.Load()
}

// Overflows returns samples lost because delivery fell behind the generator
func (b *Board) Overflows() uint64 {
	return b.overflows.Load()
}

// generate emits samples on a wall-clock schedule until ctx is cancelled.
// It never blocks on delivery; a full queue drops the sample.
func (b *Board) generate(ctx context.Context, queue chan<- []float64) {
	seed := uint64(b.cfg.Seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	start := time.Now()
	var produced uint64

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due := uint64(now.Sub(start).Seconds() * b.cfg.SampleRate)
			if due-produced > maxCatchUp {
				produced = due - maxCatchUp
			}
			for ; produced < due; produced++ {
				values := b.sample(rng, float64(produced)/b.cfg.SampleRate)
				b.generated.Add(1)
				select {
				case queue <- values:
				default:
					b.overflows.Add(1)
				}
			}
		}
	}
}

// sample computes one vector at time t seconds.
func (b *Board) sample(rng *rand.Rand, t float64) []float64 {
	values := make([]float64, b.cfg.Channels)
	for c := range values {
		freq := 2.0 + float64(c)
		values[c] = b.cfg.Amplitude * math.Sin(2*math.Pi*freq*t)
		if b.cfg.Noise > 0 {
			values[c] += b.cfg.Noise * rng.NormFloat64()
		}
	}
	return values
}
