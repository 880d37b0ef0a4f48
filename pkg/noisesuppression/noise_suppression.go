package noisesuppression

import (
	"context"

	"github.com/xaionaro-go/dtln/pkg/audio"
)

type NoiseSuppression interface {
	audio.AbstractAnalyzer

	// ChunkSize is the granularity of SuppressNoise input in bytes;
	// zero means any whole amount of frames.
	ChunkSize() uint

	// SuppressNoise writes the denoised input into outputVoice and
	// returns a voice confidence in [0, 1].
	SuppressNoise(ctx context.Context, input []byte, outputVoice []byte) (float64, error)
}
