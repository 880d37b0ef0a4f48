package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/dtln/internal/config"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/observability"
)

type app struct {
	configPath   string
	loggerLevel  logger.Level
	fftBackend   string
	estimator    string
	estimatorURL string
	netPprofAddr string

	cfg *config.Config
}

func main() {
	ctx, cancelFn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{
		loggerLevel: logger.LevelInfo,
	}
	rootCmd := &cobra.Command{
		Use:           "dtln",
		Short:         "streaming two-stage noise suppression for 16 kHz speech",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			belt.Flush(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.Var(&a.loggerLevel, "log-level", "Log level")
	flags.StringVar(&a.fftBackend, "fft-backend", "", "FFT implementation: gonum, godsp or fourier")
	flags.StringVar(&a.estimator, "estimator", "", "estimator kind: unity, spectralgate or remote")
	flags.StringVar(&a.estimatorURL, "estimator-url", "", "base URL of a remote estimator server")
	flags.StringVar(&a.netPprofAddr, "net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")

	rootCmd.AddCommand(
		newDenoiseCommand(a),
		newLiveCommand(a),
		newServeCommand(a),
	)
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("fft-backend") {
		cfg.Engine.FFTBackend = a.fftBackend
	}
	if flags.Changed("estimator") {
		cfg.Estimator.Kind = config.EstimatorKind(a.estimator)
	}
	if flags.Changed("estimator-url") {
		cfg.Estimator.RemoteURL = a.estimatorURL
	}
	if !flags.Changed("log-level") {
		if a.loggerLevel, err = cfg.Level(); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	l := logrus.Default().WithLevel(a.loggerLevel)
	ctx := logger.CtxWithLogger(cmd.Context(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	cmd.SetContext(ctx)

	if a.netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(a.netPprofAddr, nil)) })
	}
	return nil
}

func (a *app) newEngine(ctx context.Context) (*dtln.Engine, error) {
	opts, err := a.cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	return dtln.New(ctx, opts...)
}
