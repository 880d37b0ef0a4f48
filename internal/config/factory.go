package config

import (
	"fmt"

	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/estimator"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/remote"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/spectralgate"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/unity"
)

// EstimatorFactory builds the factory selected by the configuration.
func (cfg *Config) EstimatorFactory() (estimator.Factory, error) {
	switch cfg.Estimator.Kind {
	case EstimatorKindUnity:
		return unity.NewFactory(), nil
	case EstimatorKindSpectralGate:
		return spectralgate.Factory{
			Config: cfg.Estimator.SpectralGate,
			Refine: unity.NewFactory(),
		}, nil
	case EstimatorKindRemote:
		return remote.Factory{
			URL:     cfg.Estimator.RemoteURL,
			Timeout: cfg.Estimator.RemoteTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("unknown estimator kind %q", cfg.Estimator.Kind)
	}
}

// EngineOptions returns the options of every engine the command creates.
func (cfg *Config) EngineOptions() ([]dtln.Option, error) {
	factory, err := cfg.EstimatorFactory()
	if err != nil {
		return nil, err
	}
	return []dtln.Option{
		dtln.OptionFFTBackend(cfg.Engine.FFTBackend),
		dtln.OptionEstimatorFactory{Factory: factory},
	}, nil
}
