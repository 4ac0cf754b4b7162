package acquisition

import (
	"github.com/tphakala/biosignal-go/internal/errors"
)

// ComponentAcquisition identifies acquisition errors in logs and telemetry
const ComponentAcquisition = "acquisition"

// Error kinds. Returned errors wrap these, so test with errors.Is.
var (
	ErrInvalidCapacity      = errors.NewStd("ring buffer capacity out of range")
	ErrInvalidChannelCount  = errors.NewStd("channel count must be at least 1")
	ErrChannelCountMismatch = errors.NewStd("frame channel count does not match buffer")
	ErrPrepareFailed        = errors.NewStd("prepare failed")
	ErrAlreadyStreaming     = errors.NewStd("session is already streaming")
	ErrNotPrepared          = errors.NewStd("session is not prepared")
	ErrInvalidTransition    = errors.NewStd("invalid session state transition")
	ErrNotStreaming         = errors.NewStd("session has no stream data")
	ErrSessionReleased      = errors.NewStd("session has been released")
	ErrDeviceBusy           = errors.NewStd("device already has a live session")
	ErrNotFound             = errors.NewStd("session not found")
	ErrInvalidConfig        = errors.NewStd("invalid session configuration")
	ErrInvalidMarker        = errors.NewStd("marker value must be non-zero")
)

// newError starts an acquisition error for a sentinel kind
func newError(kind error, category errors.ErrorCategory) *errors.ErrorBuilder {
	return errors.New(kind).
		Component(ComponentAcquisition).
		Category(category)
}

// stateError reports an operation attempted in the wrong state
func stateError(kind error, op string, state State) error {
	return newError(kind, errors.CategoryState).
		Context("operation", op).
		Context("state", state.String()).
		Build()
}
