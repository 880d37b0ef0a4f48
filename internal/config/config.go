// Package config loads the settings of the dtln command from a YAML
// file and DTLN_* environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/dtln/pkg/dtln/deferred"
	"github.com/xaionaro-go/dtln/pkg/dtln/spectral"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/remote"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/spectralgate"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "DTLN_"

type EstimatorKind string

const (
	EstimatorKindUnity        = EstimatorKind("unity")
	EstimatorKindSpectralGate = EstimatorKind("spectralgate")
	EstimatorKindRemote       = EstimatorKind("remote")
)

// Config is the whole configuration file.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Engine    EngineConfig    `yaml:"engine"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Deferred  DeferredConfig  `yaml:"deferred"`
	Live      LiveConfig      `yaml:"live"`
	Server    ServerConfig    `yaml:"server"`
}

type EngineConfig struct {
	FFTBackend string `yaml:"fft_backend"`
}

type EstimatorConfig struct {
	Kind          EstimatorKind       `yaml:"kind"`
	RemoteURL     string              `yaml:"remote_url"`
	RemoteTimeout time.Duration       `yaml:"remote_timeout"`
	SpectralGate  spectralgate.Config `yaml:"spectral_gate"`
}

type DeferredConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type LiveConfig struct {
	// ChunkSamples is the amount of samples handed to the deferred
	// pipeline at once; a multiple of dtln.BlockShift.
	ChunkSamples int `yaml:"chunk_samples"`

	// BufferSize is the playback buffer in bytes.
	BufferSize uint `yaml:"buffer_size"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			FFTBackend: spectral.DefaultBackendName,
		},
		Estimator: EstimatorConfig{
			Kind:          EstimatorKindSpectralGate,
			RemoteTimeout: remote.DefaultTimeout,
			SpectralGate:  spectralgate.DefaultConfig(),
		},
		Deferred: DeferredConfig{
			QueueSize: deferred.DefaultQueueSize,
		},
		Live: LiveConfig{
			ChunkSamples: 512,
			BufferSize:   8192,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8080",
		},
	}
}

// LoadConfig reads the file at path over the defaults (an empty path
// means defaults only), then applies the environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unable to parse the config file: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	strings := map[string]*string{
		"LOG_LEVEL":     &cfg.LogLevel,
		"FFT_BACKEND":   &cfg.Engine.FFTBackend,
		"ESTIMATOR_URL": &cfg.Estimator.RemoteURL,
		"LISTEN_ADDR":   &cfg.Server.ListenAddr,
	}
	for name, dst := range strings {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	if v, ok := lookup(EnvPrefix + "ESTIMATOR"); ok {
		cfg.Estimator.Kind = EstimatorKind(v)
	}

	ints := map[string]*int{
		"QUEUE_SIZE":    &cfg.Deferred.QueueSize,
		"CHUNK_SAMPLES": &cfg.Live.ChunkSamples,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("unable to parse %s%s=%q: %w", EnvPrefix, name, v, err)
		}
		*dst = i
	}

	if v, ok := lookup(EnvPrefix + "ESTIMATOR_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("unable to parse %sESTIMATOR_TIMEOUT=%q: %w", EnvPrefix, v, err)
		}
		cfg.Estimator.RemoteTimeout = d
	}
	return nil
}

func (cfg *Config) Validate() error {
	if _, err := cfg.Level(); err != nil {
		return err
	}
	if !slices.Contains(spectral.BackendNames(), cfg.Engine.FFTBackend) {
		return fmt.Errorf("unknown fft_backend %q, expected one of %v", cfg.Engine.FFTBackend, spectral.BackendNames())
	}
	switch cfg.Estimator.Kind {
	case EstimatorKindUnity:
	case EstimatorKindSpectralGate:
		if err := cfg.Estimator.SpectralGate.Validate(); err != nil {
			return fmt.Errorf("spectral_gate: %w", err)
		}
	case EstimatorKindRemote:
		if cfg.Estimator.RemoteURL == "" {
			return fmt.Errorf("remote_url must be set for the remote estimator")
		}
	default:
		return fmt.Errorf("unknown estimator kind %q", cfg.Estimator.Kind)
	}
	if cfg.Estimator.RemoteTimeout < 0 {
		return fmt.Errorf("remote_timeout must not be negative")
	}
	if cfg.Deferred.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive, got %d", cfg.Deferred.QueueSize)
	}
	if cfg.Live.ChunkSamples <= 0 || cfg.Live.ChunkSamples%128 != 0 {
		return fmt.Errorf("chunk_samples must be a positive multiple of 128, got %d", cfg.Live.ChunkSamples)
	}
	if cfg.Live.BufferSize == 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	return nil
}

// Level parses LogLevel.
func (cfg *Config) Level() (logger.Level, error) {
	var level logger.Level
	if err := level.Set(cfg.LogLevel); err != nil {
		return logger.LevelUndefined, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	return level, nil
}
