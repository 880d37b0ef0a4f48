package dtln

import (
	"github.com/xaionaro-go/dtln/pkg/dtln/spectral"
	"github.com/xaionaro-go/dtln/pkg/estimator"
)

type config struct {
	FFTBackend       string
	MaskEstimator    estimator.Estimator
	RefineEstimator  estimator.Estimator
	EstimatorFactory estimator.Factory
}

func defaultConfig() config {
	return config{
		FFTBackend: spectral.DefaultBackendName,
	}
}

type Option interface {
	apply(*config)
}

type Options []Option

func (s Options) config() config {
	cfg := defaultConfig()
	for _, opt := range s {
		opt.apply(&cfg)
	}
	return cfg
}

// OptionFFTBackend selects the FFT implementation, see spectral.BackendNames.
type OptionFFTBackend string

func (opt OptionFFTBackend) apply(cfg *config) {
	cfg.FFTBackend = string(opt)
}

// OptionEstimators hands two ready estimators to the engine, which
// takes over their ownership and closes them on Close.
type OptionEstimators struct {
	Mask   estimator.Estimator
	Refine estimator.Estimator
}

func (opt OptionEstimators) apply(cfg *config) {
	cfg.MaskEstimator = opt.Mask
	cfg.RefineEstimator = opt.Refine
}

// OptionEstimatorFactory makes the engine build the estimators it was
// not given explicitly.
type OptionEstimatorFactory struct {
	estimator.Factory
}

func (opt OptionEstimatorFactory) apply(cfg *config) {
	cfg.EstimatorFactory = opt.Factory
}
