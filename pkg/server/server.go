// Package server exposes the estimators and the whole denoiser over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xaionaro-go/dtln/pkg/audio/codec"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/estimator"
	"github.com/xaionaro-go/dtln/pkg/estimator/implementations/remote"
	"github.com/xaionaro-go/observability"
)

const (
	shutdownTimeout = 5 * time.Second

	// MaxUploadSize limits the body of a denoise request.
	MaxUploadSize = 64 << 20
)

// Server is the Echo application.
type Server struct {
	echo          *echo.Echo
	factory       estimator.Factory
	engineOptions []dtln.Option
	estimators    *remote.Server
	connections   atomic.Int64
	requests      atomic.Uint64
}

// New builds the application; every estimator it serves (both over
// websocket and inside the denoise endpoint) comes from factory.
func New(
	factory estimator.Factory,
	engineOptions ...dtln.Option,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.Itoa(MaxUploadSize / 1024 / 1024) + "M"))

	s := &Server{
		echo:          e,
		factory:       factory,
		engineOptions: engineOptions,
		estimators:    remote.NewServer(factory),
	}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET(remote.PathPrefix+":stage", s.handleEstimator)
	s.echo.POST("/v1/denoise", s.handleDenoise)
}

// Run starts Echo and blocks until ctx cancellation or a startup failure.
func (s *Server) Run(ctx context.Context, addr string) (_err error) {
	logger.Debugf(ctx, "Run: %s", addr)
	defer func() { logger.Debugf(ctx, "/Run: %s: %v", addr, _err) }()

	errCh := make(chan error, 1)
	observability.Go(ctx, func(ctx context.Context) {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var mErr *multierror.Error
		if err := s.echo.Shutdown(shutCtx); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to shutdown gracefully: %w", err))
			if err := s.echo.Close(); err != nil {
				mErr = multierror.Append(mErr, fmt.Errorf("unable to close the listener: %w", err))
			}
		}
		return mErr.ErrorOrNil()
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int64  `json:"connections"`
	Requests    uint64 `json:"requests"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: s.connections.Load(),
		Requests:    s.requests.Load(),
	})
}

func (s *Server) handleEstimator(c echo.Context) error {
	ctx := c.Request().Context()
	stage := estimator.StageFromString(c.Param("stage"))
	if stage == estimator.StageUndefined {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown stage %q", c.Param("stage")))
	}

	s.connections.Add(1)
	defer s.connections.Add(-1)
	err := s.estimators.ServeHTTP(ctx, c.Response(), c.Request(), stage)
	if err != nil {
		logger.Warnf(ctx, "estimator session %s: %v", stage, err)
	}
	// the response is already hijacked or written
	return nil
}

func (s *Server) handleDenoise(c echo.Context) error {
	ctx := c.Request().Context()
	s.requests.Add(1)

	sample := codec.DefaultWAVSample
	if v := c.QueryParam("bit_depth"); v != "" {
		var err error
		sample, err = codec.ParseWAVSample(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid bit_depth: %v", err))
		}
	}
	var compensateLatency bool
	if v := c.QueryParam("compensate_latency"); v != "" {
		var err error
		compensateLatency, err = strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid compensate_latency: %v", err))
		}
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read the body: %v", err))
	}
	in, err := codec.Decode(bytes.NewReader(body), codec.FormatWAV, codec.RawConfig{})
	if err != nil {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, fmt.Sprintf("decode WAV: %v", err))
	}

	out, err := Denoise(ctx, in.Resample(dtln.SampleRate).Samples, compensateLatency, s.factory, s.engineOptions...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("denoise: %v", err))
	}

	data, err := codec.EncodeBytes(codec.FormatWAV, out, dtln.SampleRate, sample)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("encode WAV: %v", err))
	}
	return c.Blob(http.StatusOK, "audio/wav", data)
}

// Denoise runs a whole 16 kHz mono signal through a fresh engine, see
// dtln.Engine.ProcessSignal.
func Denoise(
	ctx context.Context,
	samples []float32,
	compensateLatency bool,
	factory estimator.Factory,
	opts ...dtln.Option,
) (_ret []float32, _err error) {
	logger.Tracef(ctx, "Denoise, len:%d", len(samples))
	defer func() { logger.Tracef(ctx, "/Denoise, len:%d: %v", len(samples), _err) }()

	opts = append([]dtln.Option{dtln.OptionEstimatorFactory{Factory: factory}}, opts...)
	engine, err := dtln.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the engine: %v", err)
		}
	}()

	return engine.ProcessSignal(ctx, samples, compensateLatency)
}
