package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/dtln/pkg/audio"
	"github.com/xaionaro-go/dtln/pkg/audio/codec"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/dtln/deferred"
	nsdtln "github.com/xaionaro-go/dtln/pkg/noisesuppression/implementations/dtln"
	"github.com/xaionaro-go/dtln/pkg/vad"
	nsvad "github.com/xaionaro-go/dtln/pkg/vad/implementations/noisesuppression"
	"github.com/xaionaro-go/dtln/pkg/vad/implementations/webrtc"
)

type denoiseFlags struct {
	inputFormat       formatFlag
	outputFormat      formatFlag
	rawSampleRate     uint32
	rawChannels       uint32
	wavSample         codec.WAVSample
	deferred          bool
	deferredTimeout   time.Duration
	chunkSamples      int
	compensateLatency bool

	vad            string
	vadMode        int
	vadThreshold   float64
	vadMinDuration time.Duration
}

func newDenoiseCommand(a *app) *cobra.Command {
	f := &denoiseFlags{}
	cmd := &cobra.Command{
		Use:   "denoise <input> <output>",
		Short: "denoise an audio file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.denoise(cmd.Context(), f, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.Var(&f.inputFormat, "input-format", "input format: auto, wav, ogg, s16 or f32")
	flags.Var(&f.outputFormat, "output-format", "output format: auto, wav, s16 or f32")
	flags.Uint32Var(&f.rawSampleRate, "raw-sample-rate", dtln.SampleRate, "sample rate of a headerless input")
	flags.Uint32Var(&f.rawChannels, "raw-channels", 1, "amount of interleaved channels of a headerless input")
	f.wavSample = codec.DefaultWAVSample
	flags.Var(&f.wavSample, "bit-depth", "sample format of a WAV output: 16, 24, 32 or 32f (float, not clipped)")
	flags.BoolVar(&f.deferred, "deferred", false, "feed the engine through the deferred pipeline the way a real-time caller would")
	flags.DurationVar(&f.deferredTimeout, "deferred-timeout", 0, "how long to wait for each deferred result; 0 means one chunk duration")
	flags.IntVar(&f.chunkSamples, "chunk-samples", 0, "chunk length for --deferred; 0 means the configured live chunk")
	flags.BoolVar(&f.compensateLatency, "compensate-latency", false, "remove the algorithmic delay so that the output lines up with the input")
	flags.StringVar(&f.vad, "vad", "", "report the first voice activity: webrtc (on the output) or dtln (retention on the input)")
	flags.IntVar(&f.vadMode, "vad-mode", int(webrtc.ModeAggressive), "webrtc aggressiveness, 0..3")
	flags.Float64Var(&f.vadThreshold, "vad-threshold", 0.5, "voice confidence threshold")
	flags.DurationVar(&f.vadMinDuration, "vad-min-duration", 100*time.Millisecond, "how much voice must be found before the scan stops")
	return cmd
}

func (a *app) denoise(
	ctx context.Context,
	f *denoiseFlags,
	inputPath string,
	outputPath string,
) (_err error) {
	logger.Tracef(ctx, "denoise: %s -> %s", inputPath, outputPath)
	defer func() { logger.Tracef(ctx, "/denoise: %s -> %s: %v", inputPath, outputPath, _err) }()

	inputFormat, err := f.inputFormat.resolve(inputPath)
	if err != nil {
		return err
	}
	outputFormat, err := f.outputFormat.resolve(outputPath)
	if err != nil {
		return err
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("unable to open the input: %w", err)
	}
	decoded, err := codec.Decode(input, inputFormat, codec.RawConfig{
		SampleRate: audio.SampleRate(f.rawSampleRate),
		Channels:   audio.Channel(f.rawChannels),
	})
	input.Close()
	if err != nil {
		return fmt.Errorf("unable to decode '%s': %w", inputPath, err)
	}
	logger.Infof(ctx, "decoded %d samples at %d Hz from %d channel(s)", len(decoded.Samples), decoded.SampleRate, decoded.SourceChannels)
	signal := decoded.Resample(dtln.SampleRate).Samples

	engine, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the engine: %v", err)
		}
	}()

	startedAt := time.Now()
	var output []float32
	if f.deferred {
		output, err = a.denoiseDeferred(ctx, f, engine, signal)
	} else {
		output, err = engine.ProcessSignal(ctx, signal, f.compensateLatency)
	}
	if err != nil {
		return fmt.Errorf("unable to denoise: %w", err)
	}
	logger.Infof(ctx, "denoised %v of audio in %v", time.Duration(len(signal))*time.Second/dtln.SampleRate, time.Since(startedAt))
	output = output[:len(signal)]
	fmt.Printf("retained energy: %.1f%%\n", nsdtln.RetentionRatio(signal, output)*100)

	if f.vad != "" {
		if err := a.reportVoice(ctx, f, signal, output); err != nil {
			return err
		}
	}

	outputFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("unable to create the output: %w", err)
	}
	if err := codec.Encode(outputFile, outputFormat, output, dtln.SampleRate, f.wavSample); err != nil {
		outputFile.Close()
		return fmt.Errorf("unable to encode '%s': %w", outputPath, err)
	}
	return outputFile.Close()
}

// denoiseDeferred submits the signal chunk by chunk. Every result
// belongs to the previous chunk, so one extra chunk of silence flushes
// the last one and the silent first result is dropped. The output has
// the same length and alignment as ProcessSignal's.
func (a *app) denoiseDeferred(
	ctx context.Context,
	f *denoiseFlags,
	engine *dtln.Engine,
	samples []float32,
) ([]float32, error) {
	chunkSamples := f.chunkSamples
	if chunkSamples == 0 {
		chunkSamples = a.cfg.Live.ChunkSamples
	}
	if chunkSamples <= 0 || chunkSamples%dtln.BlockShift != 0 {
		return nil, fmt.Errorf("the chunk length must be a positive multiple of %d, got %d", dtln.BlockShift, chunkSamples)
	}

	opts := []deferred.Option{deferred.OptionQueueSize(a.cfg.Deferred.QueueSize)}
	if f.deferredTimeout > 0 {
		opts = append(opts, deferred.OptionTimeout(func(int) time.Duration { return f.deferredTimeout }))
	}
	pipeline, err := deferred.New(ctx, engine, opts...)
	if err != nil {
		return nil, err
	}
	defer pipeline.Stop(ctx)

	length := len(samples)
	if f.compensateLatency {
		length += dtln.Latency
	}
	chunks := (length + chunkSamples - 1) / chunkSamples
	input := make([]float32, (chunks+1)*chunkSamples)
	copy(input, samples)

	output := make([]float32, 0, len(input))
	for pos := 0; pos < len(input); pos += chunkSamples {
		res, err := pipeline.Submit(ctx, input[pos:pos+chunkSamples])
		switch {
		case err == nil:
		case errors.Is(err, dtln.ErrEstimatorFailure):
			logger.Errorf(ctx, "chunk at %d: %v", pos, err)
		default:
			return nil, err
		}
		if pos > 0 {
			output = append(output, res.Samples...)
		}
	}

	stats := pipeline.Stats()
	if starved := stats.Starved.Load(); starved > 0 {
		logger.Warnf(ctx, "the processor was starved %d times out of %d chunks; try a larger --deferred-timeout", starved, stats.Submitted.Load())
	}
	if f.compensateLatency {
		return output[dtln.Latency : dtln.Latency+len(samples)], nil
	}
	return output[:len(samples)], nil
}

func (a *app) reportVoice(
	ctx context.Context,
	f *denoiseFlags,
	input []float32,
	output []float32,
) (_err error) {
	logger.Tracef(ctx, "reportVoice: %s", f.vad)
	defer func() { logger.Tracef(ctx, "/reportVoice: %s: %v", f.vad, _err) }()

	var (
		detector vad.VAD
		data     []byte
		err      error
	)
	switch f.vad {
	case "webrtc":
		detector, err = webrtc.New(dtln.SampleRate, webrtc.Mode(f.vadMode), webrtc.DefaultFrameDuration)
		if err != nil {
			return fmt.Errorf("unable to initialize the webrtc VAD: %w", err)
		}
		data, err = pcm.EncodeFloat32(audio.PCMFormatS16LE, nil, output)
	case "dtln":
		var opts []dtln.Option
		opts, err = a.cfg.EngineOptions()
		if err != nil {
			return err
		}
		var ns *nsdtln.DTLN
		ns, err = nsdtln.New(ctx, 1, opts...)
		if err != nil {
			return fmt.Errorf("unable to initialize the noise suppressor: %w", err)
		}
		detector, err = nsvad.NewVAD(ctx, ns, webrtc.DefaultFrameDuration)
		if err != nil {
			ns.Close()
			return fmt.Errorf("unable to initialize the noise suppression VAD: %w", err)
		}
		data, err = pcm.EncodeFloat32(audio.PCMFormatFloat32LE, nil, input)
	default:
		return fmt.Errorf("unknown VAD %q, expected webrtc or dtln", f.vad)
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the VAD: %v", err)
		}
	}()
	if err != nil {
		return fmt.Errorf("unable to encode the samples for the VAD: %w", err)
	}

	confidence, at, err := detector.FindNextVoice(ctx, data, f.vadThreshold, f.vadMinDuration)
	if err != nil {
		return fmt.Errorf("unable to detect voice: %w", err)
	}
	if at < 0 {
		fmt.Printf("no voice found (max confidence %.2f)\n", confidence)
		return nil
	}
	fmt.Printf("voice starts at %v (max confidence %.2f)\n", at, confidence)
	return nil
}
