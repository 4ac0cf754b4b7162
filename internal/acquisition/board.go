package acquisition

import (
	"context"
	"slices"
)

// BoardSpec describes what a board reported during handshake.
type BoardSpec struct {
	Name       string  `json:"name"`
	Channels   int     `json:"channels"`
	SampleRate float64 `json:"sample_rate"` // Hz, informational
	// EEGChannels lists value indexes that carry EEG data.
	EEGChannels []int  `json:"eeg_channels,omitempty"`
	Units       string `json:"units,omitempty"`
	// StampsFrames is true when the board supplies its own timestamps, which
	// the session then stores untouched, zero included. Otherwise the session
	// stamps every frame on arrival and ignores the handler's timestamp.
	StampsFrames bool `json:"stamps_frames"`
}

// Clone returns a copy that shares no slices with s
func (s BoardSpec) Clone() BoardSpec {
	s.EEGChannels = slices.Clone(s.EEGChannels)
	return s
}

// SampleHandler receives one sample vector from a board. The session copies
// values before returning, so boards may reuse the slice. timestamp is only
// used when the board's spec sets StampsFrames.
type SampleHandler func(timestamp int64, values []float64)

// Board is the device side of a session. Implementations own all transport
// I/O and their own timeouts; the session only sequences the calls.
type Board interface {
	// Handshake opens the device and reports its layout.
	Handshake(ctx context.Context) (BoardSpec, error)
	// BeginStreaming starts delivering sample vectors to onFrame from a
	// single producer goroutine.
	BeginStreaming(ctx context.Context, onFrame SampleHandler) error
	// EndStreaming stops delivery. No call to onFrame may begin after it returns.
	EndStreaming(ctx context.Context) error
}
