package dtln

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/audio"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/unity"
)

func newUnity(t *testing.T, channels audio.Channel) *DTLN {
	s, err := New(context.Background(), channels, dtln.OptionEstimatorFactory{Factory: unity.NewFactory()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestChunkSize(t *testing.T) {
	s := newUnity(t, 2)
	assert.Equal(t, uint(2*128*4), s.ChunkSize())

	enc, err := s.Encoding(context.Background())
	require.NoError(t, err)
	assert.Equal(t, audio.EncodingPCM{PCMFormat: audio.PCMFormatFloat32LE, SampleRate: 16000}, enc)
}

func TestSuppressNoiseStereoPassthrough(t *testing.T) {
	ctx := context.Background()
	s := newUnity(t, 2)

	const frames = dtln.BlockShift * 16
	left := make([]float32, frames)
	right := make([]float32, frames)
	interleaved := make([]float32, 0, frames*2)
	for i := 0; i < frames; i++ {
		left[i] = float32(0.4 * math.Sin(2*math.Pi*float64(i)/64))
		right[i] = float32(0.2 * math.Cos(2*math.Pi*float64(i)/32))
		interleaved = append(interleaved, left[i], right[i])
	}
	input, err := pcm.EncodeFloat32(audio.PCMFormatFloat32LE, nil, interleaved)
	require.NoError(t, err)

	output := make([]byte, len(input))
	ratio, err := s.SuppressNoise(ctx, input, output)
	require.NoError(t, err)
	assert.Greater(t, ratio, 0.5)
	assert.LessOrEqual(t, ratio, 1.0)

	got, err := pcm.DecodeFloat32(audio.PCMFormatFloat32LE, nil, output)
	require.NoError(t, err)
	for i := dtln.Latency + dtln.BlockLen; i < frames; i++ {
		require.InDelta(t, left[i-dtln.Latency], got[2*i], 1e-4, "left %d", i)
		require.InDelta(t, right[i-dtln.Latency], got[2*i+1], 1e-4, "right %d", i)
	}
}

func TestSuppressNoiseSilence(t *testing.T) {
	s := newUnity(t, 1)
	input := make([]byte, s.ChunkSize()*4)
	ratio, err := s.SuppressNoise(context.Background(), input, make([]byte, len(input)))
	require.NoError(t, err)
	assert.Zero(t, ratio)
}

func TestSuppressNoiseErrors(t *testing.T) {
	ctx := context.Background()
	s := newUnity(t, 1)
	_, err := s.SuppressNoise(ctx, make([]byte, 100), make([]byte, 100))
	require.Error(t, err)
	_, err = s.SuppressNoise(ctx, make([]byte, s.ChunkSize()), make([]byte, 1))
	require.Error(t, err)

	_, err = New(ctx, 0)
	require.Error(t, err)
	_, err = New(ctx, 2)
	require.ErrorIs(t, err, dtln.ErrCreationFailure)
}

func TestRetentionRatio(t *testing.T) {
	assert.Zero(t, RetentionRatio([]float32{0, 0}, []float32{1, 1}))
	assert.InDelta(t, 0.5, RetentionRatio([]float32{1, 1}, []float32{0.5, 0.5}), 1e-9)
	assert.Equal(t, 1.0, RetentionRatio([]float32{0.1}, []float32{1}))
}
