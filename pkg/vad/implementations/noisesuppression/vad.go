// Package noisesuppression detects voice by how much signal a noise
// suppressor lets through.
package noisesuppression

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/dtln/pkg/audio"
	"github.com/xaionaro-go/dtln/pkg/noisesuppression"
	"github.com/xaionaro-go/dtln/pkg/vad"
)

type VAD struct {
	noisesuppression.NoiseSuppression
	chunkSize     uint64
	chunkDuration time.Duration
	Buffer        []byte
}

var (
	_ vad.VAD      = (*VAD)(nil)
	_ vad.Analyzer = (*VAD)(nil)
)

// NewVAD rounds preferredGranularity to a whole amount of the noise
// suppressor chunks.
func NewVAD(
	ctx context.Context,
	noiseSuppression noisesuppression.NoiseSuppression,
	preferredGranularity time.Duration,
) (*VAD, error) {
	chunkSize := uint64(noiseSuppression.ChunkSize())
	frameSize, err := audio.FrameSize(ctx, noiseSuppression)
	if err != nil {
		return nil, err
	}
	if chunkSize == 0 {
		chunkSize = uint64(frameSize)
	}
	channels, err := noiseSuppression.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the amount of channels: %w", err)
	}
	encoding, err := noiseSuppression.Encoding(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the encoding: %w", err)
	}
	encodingPCM, ok := encoding.(audio.EncodingPCM)
	if !ok {
		return nil, fmt.Errorf("noise suppression encoding is not PCM: %T", encoding)
	}
	preferredChunkSize := encoding.BytesForDuration(preferredGranularity) * uint64(channels)
	subChunks := (preferredChunkSize + chunkSize/2) / chunkSize
	if subChunks < 1 {
		subChunks = 1
	}
	chosenChunkSize := subChunks * chunkSize
	chosenChunkSamples := chosenChunkSize / uint64(frameSize)
	chosenChunkDurationNS := uint64(time.Second) * chosenChunkSamples / uint64(encodingPCM.SampleRate)
	chosenChunkDuration := time.Duration(chosenChunkDurationNS)
	logger.Debugf(ctx, "resulting chunkSize:%d and chunkDuration:%v", chosenChunkSize, chosenChunkDuration)

	return &VAD{
		NoiseSuppression: noiseSuppression,
		chunkSize:        chosenChunkSize,
		chunkDuration:    chosenChunkDuration,
		Buffer:           make([]byte, chosenChunkSize),
	}, nil
}

func (v *VAD) ChunkSize() uint64 {
	return v.chunkSize
}

func (v *VAD) ChunkDuration() time.Duration {
	return v.chunkDuration
}

func (v *VAD) VoiceConfidence(ctx context.Context, chunk []byte) (float64, error) {
	return v.NoiseSuppression.SuppressNoise(ctx, chunk, v.Buffer[:len(chunk)])
}

func (v *VAD) FindNextVoice(
	ctx context.Context,
	samples []byte,
	confidenceThreshold float64,
	minDuration time.Duration,
) (float64, time.Duration, error) {
	return vad.FindNextVoice(ctx, v, samples, confidenceThreshold, minDuration)
}
