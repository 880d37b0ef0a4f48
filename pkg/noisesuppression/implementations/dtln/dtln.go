// Package dtln adapts the streaming denoiser to the byte-oriented
// NoiseSuppression interface, running one engine per channel.
package dtln

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/dtln/pkg/audio"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/audio/planar"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/dtln/pkg/noisesuppression"
	"github.com/xaionaro-go/observability"
)

const pcmFormat = audio.PCMFormatFloat32LE

type DTLN struct {
	Locker       sync.Mutex
	Engines      []*dtln.Engine
	ChannelCount audio.Channel

	interleaved []float32
	planes      [][]float32
	denoised    [][]float32
	output      []float32
}

var _ noisesuppression.NoiseSuppression = (*DTLN)(nil)

func New(
	ctx context.Context,
	channels audio.Channel,
	opts ...dtln.Option,
) (_ret *DTLN, _err error) {
	logger.Tracef(ctx, "New(%d)", channels)
	defer func() { logger.Tracef(ctx, "/New(%d): %v", channels, _err) }()

	if channels == 0 {
		return nil, fmt.Errorf("zero channels")
	}
	s := &DTLN{
		ChannelCount: channels,
	}
	for ch := 0; ch < int(channels); ch++ {
		engine, err := dtln.New(ctx, opts...)
		if err != nil {
			if closeErr := s.Close(); closeErr != nil {
				logger.Errorf(ctx, "unable to close the engines: %v", closeErr)
			}
			return nil, fmt.Errorf("unable to initialize the engine for channel %d: %w", ch, err)
		}
		s.Engines = append(s.Engines, engine)
	}
	return s, nil
}

func (s *DTLN) Close() error {
	var mErr *multierror.Error
	for ch, engine := range s.Engines {
		if err := engine.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the engine of channel %d: %w", ch, err))
		}
	}
	return mErr.ErrorOrNil()
}

func (s *DTLN) Encoding(context.Context) (audio.Encoding, error) {
	return audio.EncodingPCM{
		PCMFormat:  pcmFormat,
		SampleRate: dtln.SampleRate,
	}, nil
}

func (s *DTLN) Channels(context.Context) (audio.Channel, error) {
	return s.ChannelCount, nil
}

func chunkSize(channels audio.Channel) uint {
	return uint(channels) * dtln.BlockShift * pcmFormat.Size()
}

func (s *DTLN) ChunkSize() uint {
	return chunkSize(s.ChannelCount)
}

// SuppressNoise returns how much of the input energy survived the
// suppression (the highest value across the channels).
func (s *DTLN) SuppressNoise(
	ctx context.Context,
	input []byte,
	outputVoice []byte,
) (_ret float64, _err error) {
	logger.Tracef(ctx, "SuppressNoise, len:%d", len(input))
	defer func() { logger.Tracef(ctx, "/SuppressNoise, len:%d: %v %v", len(input), _ret, _err) }()

	if len(input) != len(outputVoice) {
		return 0, fmt.Errorf("lengths of input and output slices are not equal: %d != %d", len(input), len(outputVoice))
	}
	if len(input)%int(s.ChunkSize()) != 0 {
		return 0, fmt.Errorf("the size of the input is not a multiple of ChunkSize: %d %% %d != 0", len(input), s.ChunkSize())
	}
	if len(input) == 0 {
		return 0, nil
	}

	s.Locker.Lock()
	defer s.Locker.Unlock()

	var err error
	s.interleaved, err = pcm.DecodeFloat32(pcmFormat, s.interleaved[:0], input)
	if err != nil {
		return 0, err
	}
	s.planes, err = planar.Float32(s.planes, s.ChannelCount, s.interleaved)
	if err != nil {
		return 0, err
	}
	if len(s.denoised) != len(s.planes) {
		s.denoised = make([][]float32, len(s.planes))
	}

	var (
		wg         sync.WaitGroup
		locker     sync.Mutex
		mErr       *multierror.Error
		maxRetains float64
	)
	for ch := range s.planes {
		if cap(s.denoised[ch]) < len(s.planes[ch]) {
			s.denoised[ch] = make([]float32, len(s.planes[ch]))
		}
		s.denoised[ch] = s.denoised[ch][:len(s.planes[ch])]

		engine, in, out := s.Engines[ch], s.planes[ch], s.denoised[ch]
		wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			_, err := engine.ProcessInto(ctx, out, in)
			retains := RetentionRatio(in, out)
			locker.Lock()
			defer locker.Unlock()
			if err != nil {
				mErr = multierror.Append(mErr, fmt.Errorf("channel %d: %w", ch, err))
			}
			if retains > maxRetains {
				maxRetains = retains
			}
		})
	}
	wg.Wait()
	if err := mErr.ErrorOrNil(); err != nil {
		return 0, err
	}

	s.output, err = planar.InterleaveFloat32(s.output, s.denoised)
	if err != nil {
		return 0, err
	}
	if _, err := pcm.EncodeFloat32(pcmFormat, outputVoice[:0], s.output); err != nil {
		return 0, err
	}
	return maxRetains, nil
}

// RetentionRatio is RMS(out)/RMS(in) clipped to [0, 1]; silence is 0.
func RetentionRatio(in, out []float32) float64 {
	var inEnergy, outEnergy float64
	for _, v := range in {
		inEnergy += float64(v) * float64(v)
	}
	for _, v := range out {
		outEnergy += float64(v) * float64(v)
	}
	if inEnergy == 0 {
		return 0
	}
	return math.Min(1, math.Sqrt(outEnergy/inEnergy))
}
