package audio

import (
	"context"
	"fmt"
	"io"
)

// AbstractAnalyzer is anything consuming PCM of a fixed layout.
type AbstractAnalyzer interface {
	io.Closer

	Encoding(context.Context) (Encoding, error)
	Channels(context.Context) (Channel, error)
}

// FrameSize returns the amount of bytes of one interleaved frame (a
// sample of every channel) the analyzer expects.
func FrameSize(
	ctx context.Context,
	a AbstractAnalyzer,
) (uint, error) {
	encoding, err := a.Encoding(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to get the encoding: %w", err)
	}
	channels, err := a.Channels(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to get the amount of channels: %w", err)
	}
	if channels == 0 {
		return 0, fmt.Errorf("zero channels")
	}
	return encoding.BytesPerSample() * uint(channels), nil
}
