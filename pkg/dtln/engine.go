package dtln

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/dtln/pkg/dtln/spectral"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

// Engine is one denoising stream: it owns a BlockProcessor with its
// windows, states and estimators. It is not safe for concurrent use.
type Engine struct {
	processor *BlockProcessor
	closeOnce sync.Once
	closed    atomic.Bool
	stats     Stats
}

type Stats struct {
	Blocks          atomic.Uint64
	EstimatorErrors atomic.Uint64
}

func New(
	ctx context.Context,
	opts ...Option,
) (_ret *Engine, _err error) {
	logger.Tracef(ctx, "New")
	defer func() { logger.Tracef(ctx, "/New: %v", _err) }()

	cfg := Options(opts).config()

	var created []estimator.Estimator
	defer func() {
		if _err == nil {
			return
		}
		for _, e := range created {
			if err := e.Close(); err != nil {
				logger.Errorf(ctx, "unable to close the estimator %T: %v", e, err)
			}
		}
	}()

	getEstimator := func(stage estimator.Stage, given estimator.Estimator) (estimator.Estimator, error) {
		if given != nil {
			created = append(created, given)
			return given, nil
		}
		if cfg.EstimatorFactory == nil {
			return nil, fmt.Errorf("%w: no %s estimator and no estimator factory were provided", ErrCreationFailure, stage)
		}
		e, err := cfg.EstimatorFactory.NewEstimator(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to initialize the %s estimator: %w", ErrCreationFailure, stage, err)
		}
		created = append(created, e)
		return e, nil
	}

	mask, err := getEstimator(estimator.StageMask, cfg.MaskEstimator)
	if err != nil {
		return nil, err
	}
	refine, err := getEstimator(estimator.StageRefine, cfg.RefineEstimator)
	if err != nil {
		return nil, err
	}

	backend, err := spectral.NewBackend(cfg.FFTBackend, BlockLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreationFailure, err)
	}

	processor, err := NewBlockProcessor(spectral.NewTransform(backend), mask, refine)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "created an engine: fft:%s mask:%T refine:%T", cfg.FFTBackend, mask, refine)
	return &Engine{
		processor: processor,
	}, nil
}

// Process denoises samples; its length must be a multiple of BlockShift.
// The output has the same length as the input.
func (e *Engine) Process(
	ctx context.Context,
	samples []float32,
) ([]float32, error) {
	out := make([]float32, len(samples))
	n, err := e.ProcessInto(ctx, out, samples)
	return out[:n], err
}

// ProcessSignal denoises a whole signal of any length, zero-padding it
// to a multiple of BlockShift. With compensateLatency the signal is
// padded by Latency more samples and the output is advanced by Latency,
// so it lines up with the input and has exactly len(samples) samples.
// Otherwise the output keeps the delay and the padded length.
func (e *Engine) ProcessSignal(
	ctx context.Context,
	samples []float32,
	compensateLatency bool,
) ([]float32, error) {
	length := len(samples)
	if compensateLatency {
		length += Latency
	}
	padded := make([]float32, AlignedLen(length))
	copy(padded, samples)
	out, err := e.Process(ctx, padded)
	if err != nil {
		return nil, err
	}
	if !compensateLatency {
		return out, nil
	}
	return out[Latency : Latency+len(samples)], nil
}

// ProcessInto is Process writing into a caller-provided buffer of the
// same length as the input. It returns the amount of samples written:
// on an error in the middle of the input the already processed blocks
// stay committed and their output is kept.
func (e *Engine) ProcessInto(
	ctx context.Context,
	out []float32,
	samples []float32,
) (_ret int, _err error) {
	logger.Tracef(ctx, "ProcessInto, len:%d", len(samples))
	defer func() { logger.Tracef(ctx, "/ProcessInto, len:%d: %d %v", len(samples), _ret, _err) }()

	if e.closed.Load() {
		return 0, ErrClosed
	}
	if len(samples)%BlockShift != 0 {
		return 0, fmt.Errorf("%w: %d %% %d != 0", ErrUnalignedInputLength, len(samples), BlockShift)
	}
	if len(out) != len(samples) {
		return 0, fmt.Errorf("lengths of input and output slices are not equal: %d != %d", len(samples), len(out))
	}

	for pos := 0; pos < len(samples); pos += BlockShift {
		err := e.processor.ProcessBlock(ctx, out[pos:pos+BlockShift], samples[pos:pos+BlockShift])
		if err != nil {
			if _, ok := err.(*EstimatorError); ok {
				e.stats.EstimatorErrors.Add(1)
				logger.Errorf(ctx, "block %d: %v", e.stats.Blocks.Load(), err)
			}
			return pos, err
		}
		e.stats.Blocks.Add(1)
	}
	return len(samples), nil
}

func (e *Engine) Processor() *BlockProcessor {
	return e.processor
}

func (e *Engine) Stats() *Stats {
	return &e.stats
}

// Close releases both estimators. Calling it more than once is a no-op.
func (e *Engine) Close() error {
	var mErr *multierror.Error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if err := e.processor.mask.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the mask estimator: %w", err))
		}
		if err := e.processor.refine.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the refine estimator: %w", err))
		}
	})
	return mErr.ErrorOrNil()
}
