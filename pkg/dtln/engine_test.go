package dtln_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/dtln/spectral"
	"github.com/xaionaro-go/dtln/pkg/estimator"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/spectralgate"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/unity"
)

func newPassthroughEngine(t testing.TB, opts ...dtln.Option) *dtln.Engine {
	opts = append([]dtln.Option{dtln.OptionEstimatorFactory{Factory: unity.NewFactory()}}, opts...)
	e, err := dtln.New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newGateEngine(t testing.TB) *dtln.Engine {
	e, err := dtln.New(context.Background(), dtln.OptionEstimatorFactory{Factory: spectralgate.Factory{
		Config: spectralgate.DefaultConfig(),
		Refine: unity.NewFactory(),
	}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// tone has a period of 64 samples, so every BlockShift chunk holds whole
// periods and no analysis window has energy in the edge bins.
func tone(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.5 * math.Sin(2*math.Pi*float64(i)/64))
	}
	return s
}

func TestEngineOutputLengthMatchesInput(t *testing.T) {
	ctx := context.Background()
	e := newGateEngine(t)
	for blocks := 0; blocks <= 5; blocks++ {
		out, err := e.Process(ctx, tone(blocks*dtln.BlockShift))
		require.NoError(t, err)
		require.Len(t, out, blocks*dtln.BlockShift)
	}
	require.Equal(t, uint64(15), e.Stats().Blocks.Load())
}

func TestEngineUnalignedInput(t *testing.T) {
	ctx := context.Background()
	e := newGateEngine(t)
	_, err := e.Process(ctx, tone(dtln.BlockShift))
	require.NoError(t, err)

	before := append([]float32(nil), e.Processor().Frames().Analysis()...)
	for _, n := range []int{1, dtln.BlockShift - 1, dtln.BlockShift + 1, 1000} {
		_, err := e.Process(ctx, tone(n))
		require.ErrorIs(t, err, dtln.ErrUnalignedInputLength, "length %d", n)
	}
	require.Equal(t, before, e.Processor().Frames().Analysis())
}

func TestEngineAllZeros(t *testing.T) {
	ctx := context.Background()
	for name, e := range map[string]*dtln.Engine{
		"passthrough": newPassthroughEngine(t),
		"gate":        newGateEngine(t),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := e.Process(ctx, make([]float32, 1280))
			require.NoError(t, err)
			require.Len(t, out, 1280)
			for i, v := range out {
				require.Zero(t, v, "sample %d", i)
			}
		})
	}
}

func TestEnginePassthroughDelay(t *testing.T) {
	ctx := context.Background()
	for _, backendName := range spectral.BackendNames() {
		t.Run(backendName, func(t *testing.T) {
			e := newPassthroughEngine(t, dtln.OptionFFTBackend(backendName))
			in := tone(40 * dtln.BlockShift)
			out, err := e.Process(ctx, in)
			require.NoError(t, err)

			for i := 0; i < dtln.Latency; i++ {
				require.InDelta(t, 0, out[i], 1e-5, "the startup transient must be silent: sample %d", i)
			}
			var energy float64
			for i := dtln.Latency; i < len(out); i++ {
				require.InDelta(t, in[i-dtln.Latency], out[i], 1e-4, "sample %d", i)
				energy += float64(out[i]) * float64(out[i])
			}
			require.Greater(t, energy, 1.0)
		})
	}
}

func TestEngineProcessSignal(t *testing.T) {
	ctx := context.Background()
	input := tone(dtln.BlockShift*16 + 17)

	out, err := newPassthroughEngine(t).ProcessSignal(ctx, input, false)
	require.NoError(t, err)
	require.Len(t, out, dtln.AlignedLen(len(input)))

	out, err = newPassthroughEngine(t).ProcessSignal(ctx, input, true)
	require.NoError(t, err)
	require.Len(t, out, len(input))
	for i := dtln.BlockLen; i < dtln.BlockShift*16-dtln.BlockShift; i++ {
		require.InDelta(t, input[i], out[i], 1e-4, "sample %d", i)
	}

	out, err = newPassthroughEngine(t).ProcessSignal(ctx, nil, true)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestEngineSplitCallsMatchSingleCall(t *testing.T) {
	ctx := context.Background()
	in := tone(30 * dtln.BlockShift)
	for i := range in {
		in[i] += float32(0.01 * math.Cos(float64(i*i%977)))
	}

	whole := newGateEngine(t)
	wantOut, err := whole.Process(ctx, in)
	require.NoError(t, err)

	split := newGateEngine(t)
	var gotOut []float32
	for _, part := range [][2]int{{0, 1}, {1, 8}, {8, 9}, {9, 30}} {
		out, err := split.Process(ctx, in[part[0]*dtln.BlockShift:part[1]*dtln.BlockShift])
		require.NoError(t, err)
		gotOut = append(gotOut, out...)
	}
	require.Equal(t, wantOut, gotOut)

	wantMask, wantRefine := whole.Processor().States()
	gotMask, gotRefine := split.Processor().States()
	require.Equal(t, wantMask, gotMask)
	require.Equal(t, wantRefine, gotRefine)
}

type flakyEstimator struct {
	estimator.Estimator
	failNext bool
	closed   int
}

func (e *flakyEstimator) Estimate(ctx context.Context, input, stateIn, output, stateOut []float32) error {
	if e.failNext {
		e.failNext = false
		// garbage in the outputs must never reach the engine
		for i := range output {
			output[i] = 1e6
		}
		for i := range stateOut {
			stateOut[i] = 1e6
		}
		return fmt.Errorf("simulated failure")
	}
	return e.Estimator.Estimate(ctx, input, stateIn, output, stateOut)
}

func (e *flakyEstimator) Close() error {
	e.closed++
	return e.Estimator.Close()
}

func TestEngineEstimatorFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	for _, stage := range []estimator.Stage{estimator.StageMask, estimator.StageRefine} {
		t.Run(stage.String(), func(t *testing.T) {
			gateCfg := spectralgate.DefaultConfig()
			gate, err := spectralgate.New(gateCfg)
			require.NoError(t, err)
			refine, err := unity.New(estimator.StageRefine, unity.DefaultRefineGain)
			require.NoError(t, err)

			flakyMask := &flakyEstimator{Estimator: gate}
			flakyRefine := &flakyEstimator{Estimator: refine}
			e, err := dtln.New(ctx, dtln.OptionEstimators{Mask: flakyMask, Refine: flakyRefine})
			require.NoError(t, err)
			defer e.Close()
			reference := newGateEngine(t)

			in := tone(12 * dtln.BlockShift)
			_, err = e.Process(ctx, in[:4*dtln.BlockShift])
			require.NoError(t, err)
			_, err = reference.Process(ctx, in[:4*dtln.BlockShift])
			require.NoError(t, err)

			analysis := append([]float32(nil), e.Processor().Frames().Analysis()...)
			synthesis := append([]float32(nil), e.Processor().Frames().Synthesis()...)
			maskState, refineState := e.Processor().States()
			maskState = append([]float32(nil), maskState...)
			refineState = append([]float32(nil), refineState...)

			if stage == estimator.StageMask {
				flakyMask.failNext = true
			} else {
				flakyRefine.failNext = true
			}
			n, err := e.ProcessInto(ctx, make([]float32, 2*dtln.BlockShift), in[4*dtln.BlockShift:6*dtln.BlockShift])
			require.ErrorIs(t, err, dtln.ErrEstimatorFailure)
			require.Zero(t, n)
			var estErr *dtln.EstimatorError
			require.True(t, errors.As(err, &estErr))
			require.Equal(t, stage, estErr.Stage)
			require.Equal(t, uint64(1), e.Stats().EstimatorErrors.Load())

			require.Equal(t, analysis, e.Processor().Frames().Analysis())
			require.Equal(t, synthesis, e.Processor().Frames().Synthesis())
			gotMask, gotRefine := e.Processor().States()
			require.Equal(t, maskState, gotMask)
			require.Equal(t, refineState, gotRefine)

			// resubmitting the same chunk continues as if nothing happened
			got, err := e.Process(ctx, in[4*dtln.BlockShift:])
			require.NoError(t, err)
			want, err := reference.Process(ctx, in[4*dtln.BlockShift:])
			require.NoError(t, err)
			require.Equal(t, want, got, spew.Sdump(stage))
		})
	}
}

func TestEngineCreationFailure(t *testing.T) {
	ctx := context.Background()

	_, err := dtln.New(ctx)
	require.ErrorIs(t, err, dtln.ErrCreationFailure)

	_, err = dtln.New(ctx, dtln.OptionEstimatorFactory{Factory: unity.NewFactory()}, dtln.OptionFFTBackend("fftw"))
	require.ErrorIs(t, err, dtln.ErrCreationFailure)

	mask := &flakyEstimator{Estimator: estimator.NewDummy(dtln.BlockLen, dtln.BlockLen, 0)}
	refine := &flakyEstimator{Estimator: estimator.NewDummy(dtln.BlockLen, dtln.BlockLen, 0)}
	_, err = dtln.New(ctx, dtln.OptionEstimators{Mask: mask, Refine: refine})
	require.ErrorIs(t, err, dtln.ErrCreationFailure)
	assert.Equal(t, 1, mask.closed, "estimators handed over must be released on a failure")
	assert.Equal(t, 1, refine.closed)

	failing := estimator.FactoryFunc(func(ctx context.Context, stage estimator.Stage) (estimator.Estimator, error) {
		return nil, fmt.Errorf("no model")
	})
	_, err = dtln.New(ctx, dtln.OptionEstimatorFactory{Factory: failing})
	require.ErrorIs(t, err, dtln.ErrCreationFailure)
}

func TestEngineClose(t *testing.T) {
	ctx := context.Background()
	mask := &flakyEstimator{Estimator: estimator.NewDummy(dtln.FFTOutSize, dtln.FFTOutSize, dtln.BlockLen)}
	refine := &flakyEstimator{Estimator: estimator.NewDummy(dtln.BlockLen, dtln.BlockLen, dtln.BlockLen)}
	e, err := dtln.New(ctx, dtln.OptionEstimators{Mask: mask, Refine: refine})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 1, mask.closed)
	assert.Equal(t, 1, refine.closed)

	_, err = e.Process(ctx, make([]float32, dtln.BlockShift))
	require.ErrorIs(t, err, dtln.ErrClosed)
}

func BenchmarkEngineProcess(b *testing.B) {
	ctx := context.Background()
	e := newGateEngine(b)
	in := tone(dtln.SampleRate)
	out := make([]float32, len(in))
	b.SetBytes(int64(len(in) * 4))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.ProcessInto(ctx, out, in)
	}
}
