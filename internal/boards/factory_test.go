package boards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/boards/playback"
	"github.com/tphakala/biosignal-go/internal/boards/synthetic"
	"github.com/tphakala/biosignal-go/internal/conf"
	"github.com/tphakala/biosignal-go/internal/errors"
)

func TestCreate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      Config
		wantType any
		wantErr  bool
	}{
		{name: "synthetic", cfg: Config{Type: "synthetic", Channels: 4}, wantType: &synthetic.Board{}},
		{name: "empty type defaults to synthetic", cfg: Config{}, wantType: &synthetic.Board{}},
		{name: "playback", cfg: Config{Type: "playback", File: "rec.tsv"}, wantType: &playback.Board{}},
		{name: "playback without file", cfg: Config{Type: "playback"}, wantErr: true},
		{name: "unknown", cfg: Config{Type: "cyton"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			board, err := Create(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				assert.Nil(t, board)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, board)
		})
	}
}

func TestCreateSyntheticHonoursChannels(t *testing.T) {
	t.Parallel()

	board, err := Create(Config{Type: conf.BoardSynthetic, Channels: 3, SampleRate: 125})
	require.NoError(t, err)
	spec, err := board.Handshake(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, spec.Channels)
	assert.InDelta(t, 125, spec.SampleRate, 0)
}

func TestFromSettings(t *testing.T) {
	t.Parallel()

	s := conf.AcquisitionSettings{
		Board:      conf.BoardPlayback,
		Channels:   8,
		SampleRate: 500,
		Synthetic:  conf.SyntheticSettings{Amplitude: 10, Noise: 1, Seed: 42},
		Playback:   conf.PlaybackSettings{File: "x.tsv", Loop: true, Realtime: true},
	}
	assert.Equal(t, Config{
		Type: "playback", Channels: 8, SampleRate: 500,
		Amplitude: 10, Noise: 1, Seed: 42,
		File: "x.tsv", Loop: true, Realtime: true,
	}, FromSettings(&s))
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	types := make([]string, 0, 2)
	for _, d := range Available() {
		types = append(types, d.Type)
		assert.NotEmpty(t, d.Description)
	}
	assert.Equal(t, []string{"synthetic", "playback"}, types)
}

func TestSessionConfigFromSettings(t *testing.T) {
	t.Parallel()

	s := &conf.AcquisitionSettings{
		Board:      conf.BoardSynthetic,
		Capacity:   500,
		Channels:   8,
		SampleRate: 250,
		Overflow:   conf.OverflowDropNewest,
	}
	cfg, err := SessionConfigFromSettings(s)
	require.NoError(t, err)
	assert.IsType(t, &synthetic.Board{}, cfg.Board)
	assert.Equal(t, 500, cfg.Capacity)
	assert.Equal(t, 8, cfg.Channels)
	assert.Equal(t, acquisition.OverflowDropNewest, cfg.Overflow)

	s.Overflow = "drop-oldest"
	_, err = SessionConfigFromSettings(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	s.Overflow = ""
	s.Board = conf.BoardPlayback
	_, err = SessionConfigFromSettings(s)
	require.Error(t, err)
}
