// Package estimator defines the learned (or otherwise opaque) transforms
// that the denoiser calls once per block.
package estimator

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Estimator maps a primary input and a recurrent state to a primary
// output and the next recurrent state.
//
// Estimate must not retain any of the slices, and must not modify
// input or stateIn. On error the content of output and stateOut is
// undefined and is discarded by the caller.
type Estimator interface {
	io.Closer

	InputSize() int
	OutputSize() int
	StateSize() int

	Estimate(
		ctx context.Context,
		input []float32,
		stateIn []float32,
		output []float32,
		stateOut []float32,
	) error
}

type Stage int

const (
	StageUndefined = Stage(iota)

	// StageMask receives the magnitude spectrum and returns a per-bin
	// suppression mask, nominally within [0, 1].
	StageMask

	// StageRefine receives the masked time-domain block and returns
	// the refined block to be overlap-added.
	StageRefine

	EndOfStage
)

func (s Stage) String() string {
	switch s {
	case StageUndefined:
		return "undefined"
	case StageMask:
		return "mask"
	case StageRefine:
		return "refine"
	default:
		return fmt.Sprintf("unknown_stage_%d", int(s))
	}
}

func StageFromString(s string) Stage {
	s = strings.ToLower(strings.TrimSpace(s))
	for stage := StageUndefined; stage < EndOfStage; stage++ {
		if stage.String() == s {
			return stage
		}
	}
	return StageUndefined
}

// Factory builds a fresh estimator (with its own internal resources)
// for the given stage. Every stream gets its own pair of estimators.
type Factory interface {
	NewEstimator(ctx context.Context, stage Stage) (Estimator, error)
}

type FactoryFunc func(ctx context.Context, stage Stage) (Estimator, error)

func (fn FactoryFunc) NewEstimator(ctx context.Context, stage Stage) (Estimator, error) {
	return fn(ctx, stage)
}

// CheckSizes validates the buffers passed to Estimate against the
// sizes an estimator declares.
func CheckSizes(e Estimator, input, stateIn, output, stateOut []float32) error {
	if len(input) != e.InputSize() {
		return fmt.Errorf("the input length is %d, expected %d", len(input), e.InputSize())
	}
	if len(output) != e.OutputSize() {
		return fmt.Errorf("the output length is %d, expected %d", len(output), e.OutputSize())
	}
	if len(stateIn) != e.StateSize() || len(stateOut) != e.StateSize() {
		return fmt.Errorf("the state lengths are %d/%d, expected %d", len(stateIn), len(stateOut), e.StateSize())
	}
	return nil
}
