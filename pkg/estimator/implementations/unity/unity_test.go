package unity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

func TestEstimator(t *testing.T) {
	ctx := context.Background()
	f := NewFactory()

	mask, err := f.NewEstimator(ctx, estimator.StageMask)
	require.NoError(t, err)
	require.Equal(t, dtln.FFTOutSize, mask.InputSize())

	in := make([]float32, dtln.FFTOutSize)
	out := make([]float32, dtln.FFTOutSize)
	state := make([]float32, dtln.BlockLen)
	state[3] = 7
	next := make([]float32, dtln.BlockLen)
	require.NoError(t, mask.Estimate(ctx, in, state, out, next))
	require.Equal(t, float32(1), out[0])
	require.Equal(t, float32(1), out[dtln.FFTOutSize-1])
	require.Equal(t, state, next)

	refine, err := f.NewEstimator(ctx, estimator.StageRefine)
	require.NoError(t, err)
	block := make([]float32, dtln.BlockLen)
	block[10] = 2
	refined := make([]float32, dtln.BlockLen)
	require.NoError(t, refine.Estimate(ctx, block, state, refined, next))
	require.Equal(t, float32(0.5), refined[10])

	require.Error(t, refine.Estimate(ctx, in, state, out, next))

	_, err = New(estimator.StageUndefined, 1)
	require.Error(t, err)
}
