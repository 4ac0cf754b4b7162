package playback

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const recording = `# t	ch0	ch1
1000	0.5	-0.5
2000	1.5	-1.5

3000	2.5	-2.5
`

type collector struct {
	mu     sync.Mutex
	ts     []int64
	values [][]float64
}

func (c *collector) handle(ts int64, values []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts = append(c.ts, ts)
	c.values = append(c.values, append([]float64(nil), values...))
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ts)
}

func TestParseRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []row
		wantErr string
	}{
		{
			name:  "integer ticks with comments and blank lines",
			input: recording,
			want: []row{
				{1000, []float64{0.5, -0.5}},
				{2000, []float64{1.5, -1.5}},
				{3000, []float64{2.5, -2.5}},
			},
		},
		{
			name:  "fractional seconds",
			input: "0.5\t1\n1.25\t2\n",
			want: []row{
				{500_000_000, []float64{1}},
				{1_250_000_000, []float64{2}},
			},
		},
		{name: "empty", input: "# nothing\n", wantErr: "no frames"},
		{name: "timestamp only", input: "1\n", wantErr: "need a timestamp"},
		{name: "bad timestamp", input: "abc\t1\n", wantErr: "invalid timestamp"},
		{name: "bad value", input: "1\tx\n", wantErr: "column 2"},
		{name: "ragged rows", input: "1\t1\t2\n2\t1\n", wantErr: "wrong number of fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rows, err := parseRows(strings.NewReader(tt.input), DefaultMaxBytes)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestParseRowsSizeLimit(t *testing.T) {
	t.Parallel()

	rows, err := parseRows(strings.NewReader(recording), int64(len(recording)))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = parseRows(strings.NewReader(recording), int64(len(recording)-1))
	require.ErrorIs(t, err, errRecordingTooLarge)

	_, err = parseRows(endless{}, 1<<10)
	require.ErrorIs(t, err, errRecordingTooLarge)
}

// endless reads like /dev/zero
type endless struct{}

func (endless) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestParseErrorsDoNotEchoContent(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"hunter2\t1\n", "1\thunter2\n"} {
		_, err := parseRows(strings.NewReader(input), DefaultMaxBytes)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "hunter2")
	}
}

func TestHandshakeRejectsOversizedRecording(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Reader: endless{}, MaxBytes: 4096}).Handshake(t.Context())
	require.ErrorIs(t, err, errRecordingTooLarge)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestHandshakeFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rec.tsv")
	require.NoError(t, os.WriteFile(path, []byte(recording), 0o600))

	spec, err := New(Config{Path: path, SampleRate: 100}).Handshake(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "playback", spec.Name)
	assert.Equal(t, 2, spec.Channels)
	assert.InDelta(t, 100, spec.SampleRate, 0)
	assert.Equal(t, []int{0, 1}, spec.EEGChannels)
	assert.True(t, spec.StampsFrames)
}

func TestHandshakeErrors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).Handshake(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = New(Config{Path: filepath.Join(t.TempDir(), "missing.tsv")}).Handshake(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = New(Config{Reader: strings.NewReader("x\n")}).Handshake(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestReplayOnce(t *testing.T) {
	t.Parallel()

	board := New(Config{Reader: strings.NewReader(recording)})
	_, err := board.Handshake(t.Context())
	require.NoError(t, err)

	var c collector
	require.NoError(t, board.BeginStreaming(t.Context(), c.handle))
	require.Eventually(t, func() bool { return c.len() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, board.EndStreaming(t.Context()))

	assert.Equal(t, []int64{1000, 2000, 3000}, c.ts)
	assert.Equal(t, []float64{2.5, -2.5}, c.values[2])
}

func TestReplayLoopShiftsTimestamps(t *testing.T) {
	t.Parallel()

	board := New(Config{Reader: strings.NewReader(recording), Loop: true})
	_, err := board.Handshake(t.Context())
	require.NoError(t, err)

	var c collector
	require.NoError(t, board.BeginStreaming(t.Context(), c.handle))
	require.Eventually(t, func() bool { return c.len() >= 7 }, time.Second, time.Millisecond)
	require.NoError(t, board.EndStreaming(t.Context()))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []int64{1000, 2000, 3000, 4000, 5000, 6000, 7000}, c.ts[:7])
}

func TestReplayLoopFromZeroTick(t *testing.T) {
	t.Parallel()

	board := New(Config{Reader: strings.NewReader("0\t1\n1\t2\n2\t3\n"), Loop: true})
	_, err := board.Handshake(t.Context())
	require.NoError(t, err)

	var c collector
	require.NoError(t, board.BeginStreaming(t.Context(), c.handle))
	require.Eventually(t, func() bool { return c.len() >= 7 }, time.Second, time.Millisecond)
	require.NoError(t, board.EndStreaming(t.Context()))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, c.ts[:7])
}

func TestBeginStreamingRequiresHandshake(t *testing.T) {
	t.Parallel()

	board := New(Config{Reader: strings.NewReader(recording)})
	err := board.BeginStreaming(t.Context(), func(int64, []float64) {})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	require.NoError(t, board.EndStreaming(t.Context()))
}

func TestRealtimePacing(t *testing.T) {
	t.Parallel()

	board := New(Config{Reader: strings.NewReader(recording), Realtime: true, Loop: true, SampleRate: 50})
	_, err := board.Handshake(t.Context())
	require.NoError(t, err)

	var c collector
	require.NoError(t, board.BeginStreaming(t.Context(), c.handle))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, board.EndStreaming(t.Context()))

	// 50 Hz for 100ms is about 5 frames; unpaced replay would be far more
	assert.Less(t, c.len(), 20)
}

func TestSessionReplay(t *testing.T) {
	t.Parallel()

	reg := acquisition.NewRegistry()
	session, err := reg.Acquire("playback-0", acquisition.SessionConfig{
		Board:    New(Config{Reader: strings.NewReader(recording)}),
		Capacity: 2,
	})
	require.NoError(t, err)

	ctx := t.Context()
	require.NoError(t, session.Prepare(ctx))
	require.NoError(t, session.Start(ctx))
	require.Eventually(t, func() bool {
		return session.Stats().Buffer.Accepted == 3
	}, time.Second, time.Millisecond)
	require.NoError(t, session.Stop(ctx))

	frames, err := session.Drain(0)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(2000), frames[0].Timestamp)
	assert.Equal(t, int64(3000), frames[1].Timestamp)
	assert.Equal(t, uint64(1), session.Stats().Buffer.Overwritten)
	require.NoError(t, session.Release())
}
