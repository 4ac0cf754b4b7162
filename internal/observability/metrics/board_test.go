package metrics

import (
	"context"

	"github.com/tphakala/biosignal-go/internal/acquisition"
)

type nopBoard struct{}

func (nopBoard) Handshake(context.Context) (acquisition.BoardSpec, error) {
	return acquisition.BoardSpec{Name: "nop", Channels: 1}, nil
}

func (nopBoard) BeginStreaming(context.Context, acquisition.SampleHandler) error { return nil }

func (nopBoard) EndStreaming(context.Context) error { return nil }
