package dtln

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/dtln/pkg/dtln/spectral"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

// BlockProcessor runs one analysis, estimation, synthesis, refinement
// and overlap-add cycle per BlockShift samples. It owns both windows and
// both recurrent states, and it is not safe for concurrent use.
//
// A cycle is all-or-nothing: if any step fails, the windows and both
// recurrent states stay exactly as they were before it, so the same
// chunk may be submitted again.
type BlockProcessor struct {
	frames    FrameBuffer
	transform *spectral.Transform
	mask      estimator.Estimator
	refine    estimator.Estimator

	stateMask       []float32
	stateRefine     []float32
	nextStateMask   []float32
	nextStateRefine []float32

	window    [BlockLen]float32
	magnitude [FFTOutSize]float32
	phase     [FFTOutSize]float32
	maskOut   [FFTOutSize]float32
	masked    [FFTOutSize]float32
	estimated [BlockLen]float32
	refined   [BlockLen]float32
}

func checkEstimator(stage estimator.Stage, e estimator.Estimator, inputSize, outputSize int) error {
	if e == nil {
		return fmt.Errorf("the %s estimator is not set", stage)
	}
	if e.InputSize() != inputSize || e.OutputSize() != outputSize {
		return fmt.Errorf("the %s estimator maps %d to %d values, expected %d to %d",
			stage, e.InputSize(), e.OutputSize(), inputSize, outputSize)
	}
	if e.StateSize() < 0 {
		return fmt.Errorf("the %s estimator reports a negative state size %d", stage, e.StateSize())
	}
	return nil
}

func NewBlockProcessor(
	transform *spectral.Transform,
	mask estimator.Estimator,
	refine estimator.Estimator,
) (*BlockProcessor, error) {
	if transform == nil || transform.BlockLen() != BlockLen {
		return nil, fmt.Errorf("%w: a transform of length %d is required", ErrCreationFailure, BlockLen)
	}
	if err := checkEstimator(estimator.StageMask, mask, FFTOutSize, FFTOutSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreationFailure, err)
	}
	if err := checkEstimator(estimator.StageRefine, refine, BlockLen, BlockLen); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreationFailure, err)
	}
	return &BlockProcessor{
		transform:       transform,
		mask:            mask,
		refine:          refine,
		stateMask:       make([]float32, mask.StateSize()),
		stateRefine:     make([]float32, refine.StateSize()),
		nextStateMask:   make([]float32, mask.StateSize()),
		nextStateRefine: make([]float32, refine.StateSize()),
	}, nil
}

// ProcessBlock consumes BlockShift samples of in and writes BlockShift
// samples into out. in and out may be the same slice.
func (p *BlockProcessor) ProcessBlock(
	ctx context.Context,
	out []float32,
	in []float32,
) error {
	if len(in) != BlockShift || len(out) != BlockShift {
		return fmt.Errorf("%w: received %d input and %d output samples, expected %d", ErrInvalidBlockSize, len(in), len(out), BlockShift)
	}

	if err := p.frames.NextAnalysis(p.window[:], in); err != nil {
		return err
	}
	if err := p.transform.Forward(p.magnitude[:], p.phase[:], p.window[:]); err != nil {
		return fmt.Errorf("unable to transform the analysis window: %w", err)
	}

	if err := p.mask.Estimate(ctx, p.magnitude[:], p.stateMask, p.maskOut[:], p.nextStateMask); err != nil {
		return &EstimatorError{Stage: estimator.StageMask, Err: err}
	}
	for k := range p.masked {
		p.masked[k] = p.magnitude[k] * p.maskOut[k]
	}
	if err := p.transform.Inverse(p.estimated[:], p.masked[:], p.phase[:]); err != nil {
		return fmt.Errorf("unable to reconstruct the masked block: %w", err)
	}

	if err := p.refine.Estimate(ctx, p.estimated[:], p.stateRefine, p.refined[:], p.nextStateRefine); err != nil {
		return &EstimatorError{Stage: estimator.StageRefine, Err: err}
	}

	p.frames.setAnalysis(p.window[:])
	p.stateMask, p.nextStateMask = p.nextStateMask, p.stateMask
	p.stateRefine, p.nextStateRefine = p.nextStateRefine, p.stateRefine
	return p.frames.OverlapAdd(out, p.refined[:])
}

// States returns the current recurrent states of the mask and the
// refine estimators. The slices are owned by the processor.
func (p *BlockProcessor) States() (mask, refine []float32) {
	return p.stateMask, p.stateRefine
}

func (p *BlockProcessor) Frames() *FrameBuffer {
	return &p.frames
}
