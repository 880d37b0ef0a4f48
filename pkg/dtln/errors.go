package dtln

import (
	"errors"
	"fmt"

	"github.com/xaionaro-go/dtln/pkg/estimator"
)

var (
	// ErrCreationFailure is returned when an engine could not be set up.
	ErrCreationFailure = errors.New("unable to create the engine")

	// ErrInvalidBlockSize is returned when a single cycle receives a
	// chunk other than BlockShift samples long.
	ErrInvalidBlockSize = errors.New("invalid block size")

	// ErrUnalignedInputLength is returned when the input of a stream call
	// is not a multiple of BlockShift.
	ErrUnalignedInputLength = errors.New("the input length is not a multiple of the block shift")

	// ErrEstimatorFailure is returned when one of the estimators failed.
	ErrEstimatorFailure = errors.New("estimator failure")

	ErrClosed = errors.New("the engine is closed")
)

// EstimatorError matches both ErrEstimatorFailure and the cause
// reported by the estimator.
type EstimatorError struct {
	Stage estimator.Stage
	Err   error
}

var _ error = (*EstimatorError)(nil)

func (e *EstimatorError) Error() string {
	return fmt.Sprintf("the %s estimator failed: %v", e.Stage, e.Err)
}

func (e *EstimatorError) Unwrap() []error {
	return []error{ErrEstimatorFailure, e.Err}
}
