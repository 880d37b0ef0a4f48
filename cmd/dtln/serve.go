package main

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/server"
)

func newServeCommand(a *app) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "host the estimators over websocket and a file denoising endpoint over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen-addr") {
				a.cfg.Server.ListenAddr = listenAddr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "address to listen on (overrides server.listen_addr)")
	return cmd
}

func (a *app) serve(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "serve")
	defer func() { logger.Tracef(ctx, "/serve: %v", _err) }()

	factory, err := a.cfg.EstimatorFactory()
	if err != nil {
		return err
	}
	logger.Infof(ctx, "serving %s estimators on %s", a.cfg.Estimator.Kind, a.cfg.Server.ListenAddr)
	return server.New(factory, dtln.OptionFFTBackend(a.cfg.Engine.FFTBackend)).Run(ctx, a.cfg.Server.ListenAddr)
}
