// Package stream implements the stream command, which records from the
// configured board for a fixed time and prints per-channel statistics.
package stream

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	acqboards "github.com/tphakala/biosignal-go/internal/boards"
	"github.com/tphakala/biosignal-go/internal/conf"
	"github.com/tphakala/biosignal-go/internal/logger"
)

const stopTimeout = 5 * time.Second

type options struct {
	duration time.Duration
	interval time.Duration
}

// GetLogger returns the stream command logger
func GetLogger() logger.Logger {
	return logger.Global().Module("stream")
}

// Command creates the stream command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream from the configured board and print channel statistics",
		Long: "Acquire the configured device, stream for --duration (or until interrupted), " +
			"then print per-channel statistics and buffer counters.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), settings, opts)
		},
	}

	if err := setupFlags(cmd, &opts); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the stream command.
func setupFlags(cmd *cobra.Command, opts *options) error {
	cmd.Flags().DurationVar(&opts.duration, "duration", 10*time.Second, "How long to stream; 0 streams until interrupted")
	cmd.Flags().DurationVar(&opts.interval, "interval", 250*time.Millisecond, "How often the buffer is drained")
	cmd.Flags().String("board", "", "Board type (synthetic, playback)")
	cmd.Flags().String("device", "", "Device id to acquire")
	cmd.Flags().Int("capacity", 0, "Ring buffer capacity in frames")
	cmd.Flags().String("file", "", "Recording replayed by the playback board")

	bindings := map[string]string{
		"board":    "acquisition.board",
		"device":   "acquisition.device_id",
		"capacity": "acquisition.capacity",
		"file":     "acquisition.playback.file",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, out io.Writer, settings *conf.Settings, opts options) error {
	log := GetLogger()

	cfg, err := acqboards.SessionConfigFromSettings(&settings.Acquisition)
	if err != nil {
		return err
	}

	registry := acquisition.NewRegistry()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if err := registry.Shutdown(shutdownCtx); err != nil {
			log.Warn("registry shutdown failed", logger.Error(err))
		}
	}()

	session, err := registry.Acquire(settings.Acquisition.DeviceID, cfg)
	if err != nil {
		return err
	}
	if err := session.Prepare(ctx); err != nil {
		return err
	}
	if err := session.Start(ctx); err != nil {
		return err
	}

	spec := session.Spec()
	stats := newChannelStats(spec.Channels)
	log.Info("streaming",
		logger.String("device_id", session.DeviceID()),
		logger.String("board", spec.Name),
		logger.Duration("duration", opts.duration))

	var deadline <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	interval := opts.interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			log.Info("interrupted, stopping stream")
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			frames, err := session.Drain(0)
			if err != nil {
				return err
			}
			stats.add(frames)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := session.Stop(stopCtx); err != nil {
		return err
	}
	frames, err := session.Drain(0)
	if err != nil {
		return err
	}
	stats.add(frames)

	final := session.Stats()
	if err := session.Release(); err != nil {
		return err
	}
	return printSummary(out, spec, final.Buffer, stats)
}

// channelStats accumulates running mean and variance per channel (Welford).
type channelStats struct {
	frames int
	mean   []float64
	m2     []float64
	min    []float64
	max    []float64
}

func newChannelStats(channels int) *channelStats {
	cs := &channelStats{
		mean: make([]float64, channels),
		m2:   make([]float64, channels),
		min:  make([]float64, channels),
		max:  make([]float64, channels),
	}
	for c := range channels {
		cs.min[c] = math.Inf(1)
		cs.max[c] = math.Inf(-1)
	}
	return cs
}

func (cs *channelStats) add(frames []acquisition.SampleFrame) {
	for _, f := range frames {
		cs.frames++
		n := float64(cs.frames)
		for c := range min(len(f.Values), len(cs.mean)) {
			v := f.Values[c]
			delta := v - cs.mean[c]
			cs.mean[c] += delta / n
			cs.m2[c] += delta * (v - cs.mean[c])
			cs.min[c] = min(cs.min[c], v)
			cs.max[c] = max(cs.max[c], v)
		}
	}
}

// std returns the population standard deviation of channel c
func (cs *channelStats) std(c int) float64 {
	if cs.frames == 0 {
		return 0
	}
	return math.Sqrt(cs.m2[c] / float64(cs.frames))
}

func printSummary(out io.Writer, spec acquisition.BoardSpec, buffer acquisition.BufferStats, cs *channelStats) error {
	fmt.Fprintf(out, "board %s: %d channels at %g Hz, %d frames read\n", spec.Name, spec.Channels, spec.SampleRate, cs.frames)
	fmt.Fprintf(out, "buffer: accepted=%d overwritten=%d rejected=%d discarded=%d\n\n",
		buffer.Accepted, buffer.Overwritten, buffer.Rejected, buffer.Discarded)

	if cs.frames == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "CHANNEL\tMEAN\tSTD\tMIN\tMAX\t\n")
	for c := range cs.mean {
		fmt.Fprintf(w, "%d\t%.3f\t%.3f\t%.3f\t%.3f\t\n", c, cs.mean[c], cs.std(c), cs.min[c], cs.max[c])
	}
	return w.Flush()
}
