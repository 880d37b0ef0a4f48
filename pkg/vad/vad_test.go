package vad

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteAnalyzer treats the first byte of a chunk as the confidence in percents.
type byteAnalyzer struct{}

func (byteAnalyzer) ChunkSize() uint64 {
	return 2
}

func (byteAnalyzer) ChunkDuration() time.Duration {
	return 10 * time.Millisecond
}

func (byteAnalyzer) VoiceConfidence(_ context.Context, chunk []byte) (float64, error) {
	if chunk[0] == 0xff {
		return 0, assert.AnError
	}
	return float64(chunk[0]) / 100, nil
}

func TestFindNextVoice(t *testing.T) {
	ctx := context.Background()
	samples := []byte{10, 0, 20, 0, 90, 0, 80, 0, 95, 0, 5}

	maxConfidence, first, err := FindNextVoice(ctx, byteAnalyzer{}, samples, 0.5, 20*time.Millisecond)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, maxConfidence, 1e-9)
	assert.Equal(t, 20*time.Millisecond, first)

	maxConfidence, first, err = FindNextVoice(ctx, byteAnalyzer{}, samples, 0.99, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, maxConfidence, 1e-9)
	assert.Equal(t, time.Duration(-1), first)

	_, first, err = FindNextVoice(ctx, byteAnalyzer{}, nil, 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), first)

	_, _, err = FindNextVoice(ctx, byteAnalyzer{}, []byte{1, 0, 0xff, 0}, 0.5, time.Second)
	require.ErrorIs(t, err, assert.AnError)
}
