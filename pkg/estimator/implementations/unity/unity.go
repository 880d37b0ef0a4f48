// Package unity provides fixed-gain estimators.
//
// With a mask gain of 1 and the default refine gain the engine
// reproduces its input delayed by dtln.Latency samples, which makes
// it a reference for checking the framing and the overlap-add.
package unity

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

// DefaultRefineGain compensates for every sample being covered by
// BlockLen/BlockShift overlapping blocks.
const DefaultRefineGain = float32(dtln.BlockShift) / float32(dtln.BlockLen)

type Estimator struct {
	Stage estimator.Stage
	Gain  float32
}

var _ estimator.Estimator = (*Estimator)(nil)

func New(stage estimator.Stage, gain float32) (*Estimator, error) {
	switch stage {
	case estimator.StageMask, estimator.StageRefine:
	default:
		return nil, fmt.Errorf("unsupported stage: %s", stage)
	}
	return &Estimator{
		Stage: stage,
		Gain:  gain,
	}, nil
}

func (*Estimator) Close() error {
	return nil
}

func (e *Estimator) InputSize() int {
	if e.Stage == estimator.StageMask {
		return dtln.FFTOutSize
	}
	return dtln.BlockLen
}

func (e *Estimator) OutputSize() int {
	return e.InputSize()
}

func (*Estimator) StateSize() int {
	return dtln.BlockLen
}

func (e *Estimator) Estimate(
	ctx context.Context,
	input []float32,
	stateIn []float32,
	output []float32,
	stateOut []float32,
) error {
	if err := estimator.CheckSizes(e, input, stateIn, output, stateOut); err != nil {
		return err
	}
	switch e.Stage {
	case estimator.StageMask:
		for k := range output {
			output[k] = e.Gain
		}
	default:
		for i, v := range input {
			output[i] = v * e.Gain
		}
	}
	copy(stateOut, stateIn)
	return nil
}

// Factory builds a unity mask and a unity refiner.
type Factory struct {
	MaskGain   float32
	RefineGain float32
}

var _ estimator.Factory = Factory{}

// NewFactory returns the pass-through factory.
func NewFactory() Factory {
	return Factory{
		MaskGain:   1,
		RefineGain: DefaultRefineGain,
	}
}

func (f Factory) NewEstimator(ctx context.Context, stage estimator.Stage) (estimator.Estimator, error) {
	switch stage {
	case estimator.StageMask:
		return New(stage, f.MaskGain)
	default:
		return New(stage, f.RefineGain)
	}
}
