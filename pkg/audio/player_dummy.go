package audio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
)

// PlayerPCMDummy is used when no real output device is available: it
// consumes the stream at its own pace and throws the samples away.
type PlayerPCMDummy struct{}

var _ PlayerPCM = PlayerPCMDummy{}

func (PlayerPCMDummy) Close() error {
	return nil
}

func (PlayerPCMDummy) Ping(context.Context) error {
	return nil
}

func (PlayerPCMDummy) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	format PCMFormat,
	bufferSize time.Duration,
	reader io.Reader,
) (PlayStream, error) {
	ctx, cancelFn := context.WithCancel(ctx)
	s := &discardStream{cancelFn: cancelFn}
	s.wg.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer s.wg.Done()
		buf := make([]byte, 4096)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, err := reader.Read(buf)
			if err != nil {
				logger.Debugf(ctx, "the dummy player stopped reading: %v", err)
				return
			}
		}
	})
	return s, nil
}

type discardStream struct {
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
}

func (s *discardStream) Drain() error {
	s.wg.Wait()
	return nil
}

func (s *discardStream) Close() error {
	s.cancelFn()
	return nil
}

type StreamDummy struct{}

var _ Stream = StreamDummy{}

func (StreamDummy) Drain() error {
	return nil
}

func (StreamDummy) Close() error {
	return nil
}
