package vad

import (
	"context"
	"time"

	"github.com/xaionaro-go/dtln/pkg/audio"
)

type VAD interface {
	audio.AbstractAnalyzer

	// FindNextVoice scans samples and returns the highest voice confidence
	// seen and the offset of the first chunk at or above
	// confidenceThreshold (-1 if none). The scan stops once voice was
	// found for at least minDuration in total.
	FindNextVoice(
		_ context.Context,
		samples []byte,
		confidenceThreshold float64,
		minDuration time.Duration,
	) (float64, time.Duration, error)
}

// Analyzer judges one chunk at a time.
type Analyzer interface {
	ChunkSize() uint64
	ChunkDuration() time.Duration
	VoiceConfidence(ctx context.Context, chunk []byte) (float64, error)
}

// FindNextVoice implements VAD.FindNextVoice on top of an Analyzer.
// A trailing incomplete chunk is ignored.
func FindNextVoice(
	ctx context.Context,
	a Analyzer,
	samples []byte,
	confidenceThreshold float64,
	minDuration time.Duration,
) (float64, time.Duration, error) {
	var maxConfidence float64
	var foundVoiceFor time.Duration
	firstVoiceDetection := time.Duration(-1)

	chunkSize := a.ChunkSize()
	chunkDuration := a.ChunkDuration()
	for pos := 0; ; pos++ {
		if uint64(len(samples)) < chunkSize {
			return maxConfidence, firstVoiceDetection, nil
		}
		frame := samples[:chunkSize]
		samples = samples[len(frame):]
		voiceConfidence, err := a.VoiceConfidence(ctx, frame)
		if err != nil {
			return maxConfidence, firstVoiceDetection, err
		}

		if voiceConfidence > maxConfidence {
			maxConfidence = voiceConfidence
		}

		if voiceConfidence >= confidenceThreshold {
			foundVoiceFor += chunkDuration
			if firstVoiceDetection < 0 {
				firstVoiceDetection = chunkDuration * time.Duration(pos)
			}
		}

		if foundVoiceFor > 0 && foundVoiceFor >= minDuration {
			return maxConfidence, firstVoiceDetection, nil
		}
	}
}
