package acquisition

import "slices"

// SampleFrame is one multi-channel sample vector with its acquisition metadata.
type SampleFrame struct {
	// Sequence increases by one for every frame accepted into a buffer.
	Sequence uint64 `json:"sequence"`
	// Timestamp is board ticks, or nanoseconds since session start when the
	// board does not stamp frames itself.
	Timestamp int64     `json:"timestamp"`
	Values    []float64 `json:"values"`
	// Marker is an event marker attached to this frame; zero means none.
	Marker float64 `json:"marker,omitempty"`
}

// NewSampleFrame builds a frame that owns a copy of values.
func NewSampleFrame(sequence uint64, timestamp int64, values []float64) SampleFrame {
	return SampleFrame{
		Sequence:  sequence,
		Timestamp: timestamp,
		Values:    slices.Clone(values),
	}
}

// Channels returns the number of values in the frame.
func (f SampleFrame) Channels() int {
	return len(f.Values)
}

// Clone returns a deep copy of the frame.
func (f SampleFrame) Clone() SampleFrame {
	f.Values = slices.Clone(f.Values)
	return f
}
