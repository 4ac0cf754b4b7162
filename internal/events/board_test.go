package events

import (
	"context"

	"github.com/tphakala/biosignal-go/internal/acquisition"
)

// idleBoard completes every call without producing samples
type idleBoard struct{}

func (idleBoard) Handshake(context.Context) (acquisition.BoardSpec, error) {
	return acquisition.BoardSpec{Name: "idle", Channels: 2}, nil
}

func (idleBoard) BeginStreaming(context.Context, acquisition.SampleHandler) error { return nil }

func (idleBoard) EndStreaming(context.Context) error { return nil }
