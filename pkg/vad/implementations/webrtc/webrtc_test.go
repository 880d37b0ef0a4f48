package webrtc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/audio"
)

func TestSilenceIsNotVoice(t *testing.T) {
	ctx := context.Background()
	v, err := New(16000, ModeAggressive, 0)
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, uint64(480*2), v.ChunkSize())
	assert.Equal(t, DefaultFrameDuration, v.ChunkDuration())

	enc, err := v.Encoding(ctx)
	require.NoError(t, err)
	assert.Equal(t, audio.EncodingPCM{PCMFormat: audio.PCMFormatS16LE, SampleRate: 16000}, enc)

	maxConfidence, first, err := v.FindNextVoice(ctx, make([]byte, 16000*2), 0.5, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, maxConfidence)
	assert.Equal(t, time.Duration(-1), first)
}

func TestInvalidParameters(t *testing.T) {
	_, err := New(16000, ModeQuality, 25*time.Millisecond)
	require.Error(t, err)

	_, err = New(44100, ModeQuality, 10*time.Millisecond)
	require.Error(t, err)

	v, err := New(8000, ModeQuality, 10*time.Millisecond)
	require.NoError(t, err)
	_, err = v.VoiceConfidence(context.Background(), make([]byte, 3))
	require.Error(t, err)
}
