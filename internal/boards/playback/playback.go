// Package playback replays recorded sample rows as a board.
//
// The input is tab separated text, one frame per line:
//
//	# optional comments
//	<timestamp>\t<v1>\t<v2>...
//
// The timestamp column is an integer tick count, or fractional seconds which are
// converted to nanoseconds. Timestamps are replayed as recorded, zero included.
package playback

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// Config selects the recording and replay behaviour.
type Config struct {
	// Path is read on handshake unless Reader is set.
	Path   string
	Reader io.Reader
	// SampleRate paces realtime replay and is reported in the spec.
	SampleRate float64
	Realtime   bool
	Loop       bool
	Name       string
	// MaxBytes bounds how much of the recording is read. Zero selects DefaultMaxBytes.
	MaxBytes int64
}

const defaultSampleRate = 250.0

// DefaultMaxBytes is the recording size limit when Config.MaxBytes is unset
const DefaultMaxBytes = 256 << 20

var errRecordingTooLarge = errors.NewStd("recording exceeds size limit")

type row struct {
	timestamp int64
	values    []float64
}

// Board streams rows loaded during handshake.
type Board struct {
	cfg Config

	mu      sync.Mutex
	rows    []row
	span    int64 // timestamp offset added per loop
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	sent    int
}

// New creates a playback board
func New(cfg Config) *Board {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Name == "" {
		cfg.Name = "playback"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Board{cfg: cfg}
}

// GetLogger returns the playback module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("boards").Module("playback")
}

// Handshake loads and validates the recording. Loading happens once; later
// handshakes reuse the parsed rows.
func (b *Board) Handshake(ctx context.Context) (acquisition.BoardSpec, error) {
	if err := ctx.Err(); err != nil {
		return acquisition.BoardSpec{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rows == nil {
		rows, err := b.load()
		if err != nil {
			return acquisition.BoardSpec{}, err
		}
		b.rows = rows
		b.span = loopSpan(rows, b.cfg.SampleRate)
		GetLogger().Info("recording loaded",
			logger.String("source", b.source()),
			logger.Int("frames", len(rows)),
			logger.Int("channels", len(rows[0].values)))
	}

	channels := len(b.rows[0].values)
	eeg := make([]int, channels)
	for i := range eeg {
		eeg[i] = i
	}
	return acquisition.BoardSpec{
		Name:         b.cfg.Name,
		Channels:     channels,
		SampleRate:   b.cfg.SampleRate,
		EEGChannels:  eeg,
		StampsFrames: true,
	}, nil
}

func (b *Board) source() string {
	if b.cfg.Reader != nil {
		return "reader"
	}
	return b.cfg.Path
}

func (b *Board) load() ([]row, error) {
	r := b.cfg.Reader
	if r == nil {
		if b.cfg.Path == "" {
			return nil, errors.Newf("playback requires a file path or reader").
				Component("boards").
				Category(errors.CategoryValidation).
				Build()
		}
		f, err := os.Open(b.cfg.Path)
		if err != nil {
			return nil, errors.New(err).
				Component("boards").
				Category(errors.CategoryFileIO).
				Context("operation", "open_recording").
				Context("path", b.cfg.Path).
				Build()
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				GetLogger().Warn("failed to close recording", logger.Error(cerr))
			}
		}()
		r = f
	}

	rows, err := parseRows(r, b.cfg.MaxBytes)
	if err != nil {
		return nil, errors.New(err).
			Component("boards").
			Category(errors.CategoryFileParsing).
			Context("operation", "parse_recording").
			Context("source", b.source()).
			Context("max_bytes", b.cfg.MaxBytes).
			Build()
	}
	return rows, nil
}

// parseRows reads at most limit bytes of the tab separated recording. Every
// row must carry the same number of values. Errors never quote file content.
func parseRows(r io.Reader, limit int64) ([]row, error) {
	lr := &io.LimitedReader{R: r, N: limit + 1}
	rows, err := readRows(lr)
	if lr.N <= 0 {
		return nil, errRecordingTooLarge
	}
	return rows, err
}

func readRows(r io.Reader) ([]row, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = 0
	cr.ReuseRecord = true

	var rows []row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: need a timestamp and at least one value", line)
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		values := make([]float64, len(record)-1)
		for i, field := range record[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: invalid value", line, i+2)
			}
			values[i] = v
		}
		rows = append(rows, row{timestamp: ts, values: values})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("recording has no frames")
	}
	return rows, nil
}

func parseTimestamp(field string) (int64, error) {
	field = strings.TrimSpace(field)
	if ts, err := strconv.ParseInt(field, 10, 64); err == nil {
		return ts, nil
	}
	secs, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp")
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid timestamp")
	}
	return int64(secs * float64(time.Second)), nil
}

// loopSpan is the timestamp distance between the first row of consecutive loops.
func loopSpan(rows []row, rate float64) int64 {
	first, last := rows[0].timestamp, rows[len(rows)-1].timestamp
	step := int64(float64(time.Second) / rate)
	if len(rows) > 1 && last > first {
		step = (last - first) / int64(len(rows)-1)
	}
	return last - first + step
}

// BeginStreaming replays the recording from the first row.
func (b *Board) BeginStreaming(ctx context.Context, onFrame acquisition.SampleHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.rows == nil:
		return errors.Newf("playback board not loaded; handshake first").
			Component("boards").
			Category(errors.CategoryState).
			Build()
	case b.running:
		return errors.Newf("playback board already streaming").
			Component("boards").
			Category(errors.CategoryState).
			Build()
	case onFrame == nil:
		return errors.Newf("nil sample handler").
			Component("boards").
			Category(errors.CategoryValidation).
			Build()
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	b.running = true
	b.cancel = cancel
	b.done = done
	b.sent = 0

	go func() {
		defer close(done)
		n := b.replay(streamCtx, onFrame)
		b.mu.Lock()
		b.sent = n
		b.mu.Unlock()
	}()
	return nil
}

func (b *Board) replay(ctx context.Context, onFrame acquisition.SampleHandler) int {
	var ticker *time.Ticker
	if b.cfg.Realtime {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / b.cfg.SampleRate))
		defer ticker.Stop()
	}

	sent := 0
	for pass := int64(0); ; pass++ {
		for _, r := range b.rows {
			if ticker != nil {
				select {
				case <-ctx.Done():
					return sent
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return sent
			}

			onFrame(r.timestamp+pass*b.span, r.values)
			sent++
		}
		if !b.cfg.Loop {
			GetLogger().Debug("recording exhausted", logger.Int("frames", sent))
			return sent
		}
	}
}

// EndStreaming stops replay and waits for the replay goroutine to exit.
func (b *Board) EndStreaming(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("boards").
			Category(errors.CategoryTimeout).
			Context("operation", "end_streaming").
			Build()
	}

	b.mu.Lock()
	b.running = false
	sent := b.sent
	b.mu.Unlock()

	GetLogger().Info("playback stopped", logger.Int("frames_sent", sent))
	return nil
}
