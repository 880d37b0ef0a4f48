package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/dtln/pkg/audio"
	_ "github.com/xaionaro-go/dtln/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/dtln/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/dtln/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/dtln/deferred"
	nsdtln "github.com/xaionaro-go/dtln/pkg/noisesuppression/implementations/dtln"
	"github.com/xaionaro-go/dtln/pkg/noisesuppressionstream"
	"github.com/xaionaro-go/observability"
)

const (
	liveModeDeferred = "deferred"
	liveModeStream   = "stream"
)

const livePCMFormat = audio.PCMFormatFloat32LE

func newLiveCommand(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "live",
		Short: "denoise the default recording device into the default playback device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.live(cmd.Context(), mode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", liveModeDeferred, "deferred: a real-time pipeline that never blocks the audio path; stream: a blocking byte stream")
	return cmd
}

func (a *app) live(
	ctx context.Context,
	mode string,
) (_err error) {
	logger.Tracef(ctx, "live: %s", mode)
	defer func() { logger.Tracef(ctx, "/live: %s: %v", mode, _err) }()

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	recorder := audio.NewRecorderAuto(ctx)
	player := audio.NewPlayerAuto(ctx)

	recordedReader, recordedWriter := io.Pipe()
	defer recordedReader.Close()
	recordedCounter := datacounter.NewWriterCounter(recordedWriter)

	var (
		source   io.Reader
		pipeline *deferred.Pipeline
	)
	switch mode {
	case liveModeDeferred:
		engine, err := a.newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := engine.Close(); err != nil {
				logger.Errorf(ctx, "unable to close the engine: %v", err)
			}
		}()
		pipeline, err = deferred.New(ctx, engine, deferred.OptionQueueSize(a.cfg.Deferred.QueueSize))
		if err != nil {
			return err
		}
		defer pipeline.Stop(ctx)

		denoisedReader, denoisedWriter := io.Pipe()
		defer denoisedReader.Close()
		observability.Go(ctx, func(ctx context.Context) {
			err := pumpDeferred(ctx, pipeline, recordedReader, denoisedWriter, a.cfg.Live.ChunkSamples)
			denoisedWriter.CloseWithError(err)
		})
		source = denoisedReader
	case liveModeStream:
		opts, err := a.cfg.EngineOptions()
		if err != nil {
			return err
		}
		ns, err := nsdtln.New(ctx, 1, opts...)
		if err != nil {
			return fmt.Errorf("unable to initialize the noise suppressor: %w", err)
		}
		stream, err := noisesuppressionstream.NewNoiseSuppressionStream(
			ctx,
			recordedReader,
			ns,
			a.cfg.Live.BufferSize,
			a.cfg.Live.BufferSize,
		)
		if err != nil {
			ns.Close()
			return fmt.Errorf("unable to initialize the noise suppression stream: %w", err)
		}
		defer func() {
			if err := stream.Close(); err != nil {
				logger.Errorf(ctx, "unable to close the noise suppression stream: %v", err)
			}
		}()
		source = stream
	default:
		return fmt.Errorf("unknown mode %q, expected %s or %s", mode, liveModeDeferred, liveModeStream)
	}
	playedCounter := datacounter.NewReaderCounter(source)

	bytesPerSecond := uint64(livePCMFormat.Size()) * dtln.SampleRate
	bufferDuration := time.Duration(uint64(a.cfg.Live.BufferSize) * uint64(time.Second) / bytesPerSecond)
	playStream, err := player.PlayPCM(ctx, dtln.SampleRate, 1, livePCMFormat, bufferDuration, playedCounter)
	if err != nil {
		return fmt.Errorf("unable to start playing: %w", err)
	}
	defer func() {
		if err := playStream.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the playback: %v", err)
		}
	}()

	recordStream, err := recorder.RecordPCM(ctx, dtln.SampleRate, 1, livePCMFormat, recordedCounter)
	if err != nil {
		return fmt.Errorf("unable to start recording: %w", err)
	}
	defer func() {
		if err := recordStream.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the recording: %v", err)
		}
		recordedWriter.Close()
	}()

	logger.Infof(ctx, "denoising the microphone in the %s mode, press Ctrl+C to stop", mode)
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if pipeline == nil {
			logger.Debugf(ctx, "recorded: %d, played: %d", recordedCounter.Count(), playedCounter.Count())
			continue
		}
		stats := pipeline.Stats()
		logger.Debugf(ctx, "recorded: %d, played: %d, submitted: %d, starved: %d, discarded: %d, failed: %d",
			recordedCounter.Count(), playedCounter.Count(),
			stats.Submitted.Load(), stats.Starved.Load(), stats.Discarded.Load(), stats.Failed.Load(),
		)
	}
}

// pumpDeferred feeds the recorded bytes to the pipeline chunk by
// chunk and writes every result out as soon as Submit returns it.
func pumpDeferred(
	ctx context.Context,
	pipeline *deferred.Pipeline,
	r io.Reader,
	w io.Writer,
	chunkSamples int,
) (_err error) {
	logger.Debugf(ctx, "pumpDeferred")
	defer func() { logger.Debugf(ctx, "/pumpDeferred: %v", _err) }()

	frameSize := int(livePCMFormat.Size())
	input := make([]byte, chunkSamples*frameSize)
	var (
		chunk  []float32
		output []byte
		err    error
	)
	for {
		if _, err := io.ReadFull(r, input); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("unable to read the recorded audio: %w", err)
		}
		chunk, err = pcm.DecodeFloat32(livePCMFormat, chunk[:0], input)
		if err != nil {
			return err
		}
		res, err := pipeline.Submit(ctx, chunk)
		switch {
		case err == nil:
		case errors.Is(err, dtln.ErrEstimatorFailure):
			logger.Errorf(ctx, "%v", err)
		default:
			return err
		}
		if res.ProcessorStarved {
			logger.Debugf(ctx, "starved, playing silence")
		}
		output, err = pcm.EncodeFloat32(livePCMFormat, output[:0], res.Samples)
		if err != nil {
			return err
		}
		if _, err := w.Write(output); err != nil {
			return fmt.Errorf("unable to write the denoised audio: %w", err)
		}
	}
}
