// Package spectralgate is a non-learned mask estimator: it tracks a
// per-bin noise floor and derives a Wiener-like gain from it.
//
// The recurrent state (dtln.BlockLen values) is laid out as:
//
//	[0, dtln.FFTOutSize)   noise power estimate per bin
//	dtln.FFTOutSize        amount of frames seen, saturating at WarmupFrames
//	rest                   unused, passed through as zeros
package spectralgate

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

const frameCounterIdx = dtln.FFTOutSize

type Config struct {
	// WarmupFrames is the amount of first frames used to initialize
	// the noise floor as a plain average.
	WarmupFrames int `yaml:"warmup_frames"`

	// Attack is the smoothing factor used when the power rises above
	// the noise floor; it should be close to 1 so speech does not leak in.
	Attack float32 `yaml:"attack"`

	// Release is the smoothing factor used when the power drops
	// below the noise floor.
	Release float32 `yaml:"release"`

	// Floor is the lowest gain ever returned.
	Floor float32 `yaml:"floor"`

	// OverSubtraction scales the noise estimate before computing the gain.
	OverSubtraction float32 `yaml:"over_subtraction"`
}

func DefaultConfig() Config {
	return Config{
		WarmupFrames:    20,
		Attack:          0.995,
		Release:         0.9,
		Floor:           0.05,
		OverSubtraction: 1.5,
	}
}

func (cfg Config) Validate() error {
	if cfg.WarmupFrames < 1 {
		return fmt.Errorf("warmup_frames must be positive, got %d", cfg.WarmupFrames)
	}
	for name, v := range map[string]float32{"attack": cfg.Attack, "release": cfg.Release, "floor": cfg.Floor} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %f", name, v)
		}
	}
	if cfg.OverSubtraction <= 0 {
		return fmt.Errorf("over_subtraction must be positive, got %f", cfg.OverSubtraction)
	}
	return nil
}

type Estimator struct {
	Config Config
}

var _ estimator.Estimator = (*Estimator)(nil)

func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Estimator{Config: cfg}, nil
}

func (*Estimator) Close() error {
	return nil
}

func (*Estimator) InputSize() int {
	return dtln.FFTOutSize
}

func (*Estimator) OutputSize() int {
	return dtln.FFTOutSize
}

func (*Estimator) StateSize() int {
	return dtln.BlockLen
}

func (e *Estimator) Estimate(
	ctx context.Context,
	magnitude []float32,
	stateIn []float32,
	mask []float32,
	stateOut []float32,
) error {
	if err := estimator.CheckSizes(e, magnitude, stateIn, mask, stateOut); err != nil {
		return err
	}
	cfg := e.Config

	copy(stateOut, stateIn)
	seen := int(stateIn[frameCounterIdx])
	noise := stateOut[:dtln.FFTOutSize]
	for k, m := range magnitude {
		power := m * m
		switch {
		case seen < cfg.WarmupFrames:
			noise[k] = (noise[k]*float32(seen) + power) / float32(seen+1)
		case power > noise[k]:
			noise[k] = cfg.Attack*noise[k] + (1-cfg.Attack)*power
		default:
			noise[k] = cfg.Release*noise[k] + (1-cfg.Release)*power
		}

		mask[k] = gain(power, noise[k]*cfg.OverSubtraction, cfg.Floor)
	}
	if seen < cfg.WarmupFrames {
		stateOut[frameCounterIdx] = float32(seen + 1)
	}
	return nil
}

func gain(power, noise, floor float32) float32 {
	if power <= 0 {
		return floor
	}
	if noise <= 0 {
		return 1
	}
	snr := power/noise - 1
	if snr < 0 {
		snr = 0
	}
	g := snr / (snr + 1)
	if g < floor {
		return floor
	}
	return g
}

// Factory builds a spectral gate for the mask stage and delegates the
// refine stage to Refine.
type Factory struct {
	Config Config
	Refine estimator.Factory
}

var _ estimator.Factory = Factory{}

func (f Factory) NewEstimator(ctx context.Context, stage estimator.Stage) (estimator.Estimator, error) {
	switch stage {
	case estimator.StageMask:
		return New(f.Config)
	case estimator.StageRefine:
		if f.Refine == nil {
			return nil, fmt.Errorf("no refine estimator factory is set")
		}
		return f.Refine.NewEstimator(ctx, stage)
	default:
		return nil, fmt.Errorf("unsupported stage: %s", stage)
	}
}
