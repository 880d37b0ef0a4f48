package noisesuppressionstream

import (
	"bytes"
	"context"
	"io"
	"math"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/audio"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/unity"
	"github.com/xaionaro-go/dtln/pkg/noisesuppression"
	nsdtln "github.com/xaionaro-go/dtln/pkg/noisesuppression/implementations/dtln"
)

func TestStreamDummyPassthrough(t *testing.T) {
	ctx := context.Background()
	input := make([]byte, 4*1000+2)
	for i := range input {
		input[i] = byte(i)
	}
	ns := noisesuppression.NewDummy(audio.EncodingPCM{
		PCMFormat:  audio.PCMFormatFloat32LE,
		SampleRate: 16000,
	}, 1)

	s, err := NewNoiseSuppressionStream(ctx, iotest.HalfReader(bytes.NewReader(input)), ns, 4096, 4096)
	require.NoError(t, err)
	defer s.Close()

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	// the incomplete trailing frame is dropped
	require.Equal(t, input[:4000], out)
}

func TestStreamDTLN(t *testing.T) {
	ctx := context.Background()
	ns, err := nsdtln.New(ctx, 1, dtln.OptionEstimatorFactory{Factory: unity.NewFactory()})
	require.NoError(t, err)

	samples := make([]float32, dtln.BlockShift*30+50)
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(2*math.Pi*float64(i)/64))
	}
	input, err := pcm.EncodeFloat32(audio.PCMFormatFloat32LE, nil, samples)
	require.NoError(t, err)

	s, err := NewNoiseSuppressionStream(ctx, iotest.OneByteReader(bytes.NewReader(input)), ns, 8192, 8192)
	require.NoError(t, err)

	out, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Len(t, out, len(input))

	got, err := pcm.DecodeFloat32(audio.PCMFormatFloat32LE, nil, out)
	require.NoError(t, err)
	for i := dtln.Latency + dtln.BlockLen; i < dtln.BlockShift*30; i++ {
		require.InDelta(t, samples[i-dtln.Latency], got[i], 1e-4, "sample %d", i)
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

type failingNS struct {
	noisesuppression.Dummy
}

func (failingNS) ChunkSize() uint {
	return 16
}

func (failingNS) SuppressNoise(context.Context, []byte, []byte) (float64, error) {
	return 0, assert.AnError
}

func TestStreamError(t *testing.T) {
	ns := &failingNS{Dummy: *noisesuppression.NewDummy(audio.EncodingPCM{
		PCMFormat:  audio.PCMFormatS16LE,
		SampleRate: 16000,
	}, 2)}
	s, err := NewNoiseSuppressionStream(context.Background(), bytes.NewReader(make([]byte, 64)), ns, 64, 64)
	require.NoError(t, err)
	defer s.Close()

	_, err = io.ReadAll(s)
	require.ErrorIs(t, err, assert.AnError)
}

func TestStreamValidation(t *testing.T) {
	ctx := context.Background()
	ns := noisesuppression.NewDummy(audio.EncodingPCM{PCMFormat: audio.PCMFormatS16LE, SampleRate: 16000}, 0)
	_, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(nil), ns, 1024, 1024)
	require.Error(t, err)

	ns = noisesuppression.NewDummy(audio.EncodingPCM{PCMFormat: audio.PCMFormatS16LE, SampleRate: 16000}, 1)
	_, err = NewNoiseSuppressionStream(ctx, bytes.NewReader(nil), ns, 16, 16)
	require.Error(t, err)
}
