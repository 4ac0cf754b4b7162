// Package boards builds acquisition boards from configuration
package boards

import (
	"fmt"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/boards/playback"
	"github.com/tphakala/biosignal-go/internal/boards/synthetic"
	"github.com/tphakala/biosignal-go/internal/conf"
	"github.com/tphakala/biosignal-go/internal/errors"
)

// Config selects a board type and its parameters
type Config struct {
	Type       string  `json:"type"`
	Channels   int     `json:"channels,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty"`

	// synthetic
	Amplitude float64 `json:"amplitude,omitempty"`
	Noise     float64 `json:"noise,omitempty"`
	Seed      int64   `json:"seed,omitempty"`

	// playback
	File     string `json:"file,omitempty"`
	Loop     bool   `json:"loop,omitempty"`
	Realtime bool   `json:"realtime,omitempty"`
}

// Descriptor describes a board type that Create accepts
type Descriptor struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// Available lists the board types Create can build
func Available() []Descriptor {
	return []Descriptor{
		{
			Type:        conf.BoardSynthetic,
			Description: "generated sine waves with gaussian noise, in microvolts",
			Parameters:  []string{"channels", "sample_rate", "amplitude", "noise", "seed"},
		},
		{
			Type:        conf.BoardPlayback,
			Description: "replays a tab separated recording",
			Parameters:  []string{"file", "sample_rate", "loop", "realtime"},
		},
	}
}

// FromSettings maps the acquisition section of the configuration to a board config
func FromSettings(s *conf.AcquisitionSettings) Config {
	return Config{
		Type:       s.Board,
		Channels:   s.Channels,
		SampleRate: s.SampleRate,
		Amplitude:  s.Synthetic.Amplitude,
		Noise:      s.Synthetic.Noise,
		Seed:       s.Synthetic.Seed,
		File:       s.Playback.File,
		Loop:       s.Playback.Loop,
		Realtime:   s.Playback.Realtime,
	}
}

// Create builds a board for the given configuration
func Create(cfg Config) (acquisition.Board, error) {
	switch cfg.Type {
	case conf.BoardSynthetic, "":
		return synthetic.New(synthetic.Config{
			Channels:   cfg.Channels,
			SampleRate: cfg.SampleRate,
			Amplitude:  cfg.Amplitude,
			Noise:      cfg.Noise,
			Seed:       cfg.Seed,
		}), nil

	case conf.BoardPlayback:
		if cfg.File == "" {
			return nil, errors.Newf("playback board requires a recording file").
				Component("boards").
				Category(errors.CategoryValidation).
				Context("board_type", cfg.Type).
				Build()
		}
		return playback.New(playback.Config{
			Path:       cfg.File,
			SampleRate: cfg.SampleRate,
			Loop:       cfg.Loop,
			Realtime:   cfg.Realtime,
		}), nil

	default:
		return nil, errors.New(fmt.Errorf("unknown board type: %s", cfg.Type)).
			Component("boards").
			Category(errors.CategoryValidation).
			Context("board_type", cfg.Type).
			Build()
	}
}

// SessionConfigFromSettings builds the board and session config for the
// configured default device.
func SessionConfigFromSettings(s *conf.AcquisitionSettings) (acquisition.SessionConfig, error) {
	policy, err := acquisition.ParseOverflowPolicy(s.Overflow)
	if err != nil {
		return acquisition.SessionConfig{}, err
	}
	board, err := Create(FromSettings(s))
	if err != nil {
		return acquisition.SessionConfig{}, err
	}
	return acquisition.SessionConfig{
		Board:      board,
		Capacity:   s.Capacity,
		Channels:   s.Channels,
		SampleRate: s.SampleRate,
		Overflow:   policy,
	}, nil
}
