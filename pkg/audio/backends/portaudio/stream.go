package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/dtln/pkg/audio/pcm"
	"github.com/xaionaro-go/dtln/pkg/audio/types"
	"github.com/xaionaro-go/observability"
)

const (
	RecordBufferSize = time.Millisecond * 100
)

// stream always talks float32 to PortAudio and converts from/to the
// caller's PCM format.
type stream struct {
	PortAudioStream *portaudio.Stream
	Format          types.PCMFormat
	Samples         []float32
	Bytes           []byte
	CancelFunc      context.CancelFunc
	WaitGroup       sync.WaitGroup
	closeOnce       sync.Once
	err             error
}

func newStream(
	ctx context.Context,
	inChannels, outChannels types.Channel,
	sampleRate types.SampleRate,
	format types.PCMFormat,
	bufferSize time.Duration,
) (*stream, error) {
	if format.Size() == 0 {
		return nil, fmt.Errorf("do not know how to start a stream for PCM format %s", format)
	}
	frames := int(bufferSize.Seconds() * float64(sampleRate))
	if frames < 1 {
		return nil, fmt.Errorf("the buffer of %v is too short", bufferSize)
	}
	channels := max(inChannels, outChannels)
	samples := make([]float32, frames*int(channels))
	logger.Debugf(ctx, "newStream: in:%d out:%d %d %s %s(%d frames)", inChannels, outChannels, sampleRate, format, bufferSize, frames)

	var (
		paStream *portaudio.Stream
		err      error
	)
	if outChannels > 0 {
		paStream, err = portaudio.OpenDefaultStream(0, int(outChannels), float64(sampleRate), frames, &samples)
	} else {
		paStream, err = portaudio.OpenDefaultStream(int(inChannels), 0, float64(sampleRate), frames, samples)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open the stream: %w", err)
	}
	return &stream{
		PortAudioStream: paStream,
		Format:          format,
		Samples:         samples,
		Bytes:           make([]byte, len(samples)*int(format.Size())),
	}, nil
}

func (s *stream) start(
	ctx context.Context,
	loop func(context.Context) error,
) error {
	ctx, s.CancelFunc = context.WithCancel(ctx)
	if err := s.PortAudioStream.Start(); err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer s.WaitGroup.Done()
		defer s.CancelFunc()
		err := loop(ctx)
		logger.Debugf(ctx, "the stream loop ended: %v", err)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.err = err
		}
	})
	return nil
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.CancelFunc != nil {
			s.CancelFunc()
		}
		err = s.PortAudioStream.Abort()
		if closeErr := s.PortAudioStream.Close(); err == nil {
			err = closeErr
		}
	})
	return err
}

// Drain waits until the loop ends and returns its error.
func (s *stream) Drain() error {
	s.WaitGroup.Wait()
	return s.err
}

type PlayPCMStream struct {
	*stream
	Reader io.Reader
}

var _ types.PlayStream = (*PlayPCMStream)(nil)

func (s *PlayPCMStream) loop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "PlayPCMStream.loop")
	defer func() { logger.Debugf(ctx, "/PlayPCMStream.loop: %v", _err) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := io.ReadFull(s.Reader, s.Bytes)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return fmt.Errorf("unable to read: %w", err)
		}
		n -= n % int(s.Format.Size())
		if n == 0 && eof {
			return nil
		}
		clear(s.Bytes[n:])
		if _, err := pcm.DecodeFloat32(s.Format, s.Samples[:0], s.Bytes); err != nil {
			return err
		}

		logger.Tracef(ctx, "Write")
		err = s.PortAudioStream.Write()
		logger.Tracef(ctx, "/Write: %v", err)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
		if eof {
			return nil
		}
	}
}

type RecordPCMStream struct {
	*stream
	Writer io.Writer
}

var _ types.RecordStream = (*RecordPCMStream)(nil)

func (s *RecordPCMStream) loop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "RecordPCMStream.loop")
	defer func() { logger.Debugf(ctx, "/RecordPCMStream.loop: %v", _err) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logger.Tracef(ctx, "Read")
		err := s.PortAudioStream.Read()
		logger.Tracef(ctx, "/Read: %v", err)
		if err != nil {
			return fmt.Errorf("unable to read: %w", err)
		}
		if _, err := pcm.EncodeFloat32(s.Format, s.Bytes[:0], s.Samples); err != nil {
			return err
		}

		n, err := s.Writer.Write(s.Bytes)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
		if n != len(s.Bytes) {
			return fmt.Errorf("invalid write length: %d != %d", n, len(s.Bytes))
		}
	}
}
