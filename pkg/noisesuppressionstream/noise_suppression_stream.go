package noisesuppressionstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/dtln/pkg/audio"
	"github.com/xaionaro-go/dtln/pkg/noisesuppression"
	"github.com/xaionaro-go/observability"
)

// defaultChunkFrames is used when the noise suppressor accepts any
// amount of frames.
const defaultChunkFrames = 256

// NoiseSuppressionStream pulls PCM of any granularity from an upstream
// reader, feeds it to the noise suppressor in aligned chunks and serves
// the result. The stream owns the noise suppressor.
type NoiseSuppressionStream struct {
	noisesuppression.NoiseSuppression
	frameSize uint
	chunkSize uint

	inputBufferLocker sync.Mutex
	inputBuffer       *circular.Buffer
	inputBufferSize   uint
	inputEOF          bool

	outputBufferLocker sync.Mutex
	outputBuffer       *circular.Buffer
	outputEOF          bool
	resultError        error

	readCtx    context.Context
	cancelFunc context.CancelFunc
	loopWG     sync.WaitGroup
	closeOnce  sync.Once

	readProgressedCh                   chan struct{}
	noiseSuppressionInputProgressedCh  chan struct{}
	noiseSuppressionOutputProgressedCh chan struct{}
	outputProgressedCh                 chan struct{}
}

var _ io.ReadCloser = (*NoiseSuppressionStream)(nil)

func NewNoiseSuppressionStream(
	ctx context.Context,
	input io.Reader,
	noiseSuppression noisesuppression.NoiseSuppression,
	inputBufferSize uint,
	outputBufferSize uint,
) (*NoiseSuppressionStream, error) {
	frameSize, err := audio.FrameSize(ctx, noiseSuppression)
	if err != nil {
		return nil, fmt.Errorf("unable to get the frame size of the noise suppression: %w", err)
	}
	chunkSize := noiseSuppression.ChunkSize()
	if chunkSize == 0 {
		chunkSize = frameSize * defaultChunkFrames
	}
	if chunkSize%frameSize != 0 {
		return nil, fmt.Errorf("the chunk size %d is not a multiple of the frame size %d", chunkSize, frameSize)
	}
	if inputBufferSize < chunkSize || outputBufferSize < chunkSize {
		return nil, fmt.Errorf("the buffers (%d and %d) must fit at least one chunk (%d)", inputBufferSize, outputBufferSize, chunkSize)
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	s := &NoiseSuppressionStream{
		NoiseSuppression: noiseSuppression,
		frameSize:        frameSize,
		chunkSize:        chunkSize,
		inputBuffer:      circular.NewBuffer(int(inputBufferSize)),
		inputBufferSize:  inputBufferSize,
		outputBuffer:     circular.NewBuffer(int(outputBufferSize)),
		readCtx:          ctx,
		cancelFunc:       cancelFunc,

		readProgressedCh:                   make(chan struct{}),
		noiseSuppressionInputProgressedCh:  make(chan struct{}),
		noiseSuppressionOutputProgressedCh: make(chan struct{}),
		outputProgressedCh:                 make(chan struct{}),
	}
	observability.Go(ctx, func(ctx context.Context) {
		if err := s.readerLoop(ctx, input); err != nil {
			s.setError(fmt.Errorf("got an error from the reader loop: %w", err))
		}
	})
	s.loopWG.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer s.loopWG.Done()
		err := s.noiseSuppressionLoop(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.setError(fmt.Errorf("got an error from the noise suppressor loop: %w", err))
		}
	})
	return s, nil
}

func (s *NoiseSuppressionStream) setError(err error) {
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	if s.resultError == nil {
		s.resultError = err
	}
	s.notifyNoiseSuppressionOutputProgressed()
}

func notify(ch *chan struct{}) {
	oldCh := *ch
	*ch = make(chan struct{})
	close(oldCh)
}

// must be called with inputBufferLocker held
func (s *NoiseSuppressionStream) notifyReadProgressed() {
	notify(&s.readProgressedCh)
}

// must be called with outputBufferLocker held
func (s *NoiseSuppressionStream) notifyNoiseSuppressionOutputProgressed() {
	notify(&s.noiseSuppressionOutputProgressedCh)
}

func (s *NoiseSuppressionStream) readerLoop(
	ctx context.Context,
	input io.Reader,
) (_err error) {
	logger.Tracef(ctx, "readerLoop")
	defer func() { logger.Tracef(ctx, "/readerLoop %v", _err) }()

	// a single write must fit into the circular buffer
	readBuf := make([]byte, min(65536, s.inputBufferSize))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logger.Tracef(ctx, "readerLoop: Read()")
		n, readErr := input.Read(readBuf)
		logger.Tracef(ctx, "/readerLoop: Read(): %v %v", n, readErr)
		if n < 0 || n > len(readBuf) {
			return fmt.Errorf("received invalid value of received bytes: %d", n)
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("unable to read the backend: %w", readErr)
		}

		if err := s.pushInput(ctx, readBuf[:n], errors.Is(readErr, io.EOF)); err != nil {
			return err
		}
		if readErr != nil {
			return nil
		}
	}
}

func (s *NoiseSuppressionStream) pushInput(
	ctx context.Context,
	data []byte,
	eof bool,
) error {
	s.inputBufferLocker.Lock()
	defer s.inputBufferLocker.Unlock()
	for len(data) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w, err := s.inputBuffer.Write(data)
		if err != nil {
			if errors.Is(err, circular.ErrNoSpace) {
				s.waitForNoiseSuppressionInputProgressed(ctx)
				continue
			}
			return fmt.Errorf("unable to write to the circular buffer: %w", err)
		}
		if w != len(data) {
			return fmt.Errorf("wrote != read: %d != %d", w, len(data))
		}
		break
	}
	s.inputEOF = s.inputEOF || eof
	logger.Tracef(ctx, "closing readProgressedCh")
	s.notifyReadProgressed()
	return nil
}

func (s *NoiseSuppressionStream) waitForNoiseSuppressionInputProgressed(ctx context.Context) {
	logger.Tracef(ctx, "waitForNoiseSuppressionInputProgressed")
	defer logger.Tracef(ctx, "/waitForNoiseSuppressionInputProgressed")

	ch := s.noiseSuppressionInputProgressedCh
	s.inputBufferLocker.Unlock()
	defer s.inputBufferLocker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
		logger.Tracef(ctx, "waitForNoiseSuppressionInputProgressed: received an event")
	}
}

// pullInput fills buf with a whole chunk. It returns less only at the
// end of the input.
func (s *NoiseSuppressionStream) pullInput(
	ctx context.Context,
	buf []byte,
) (int, error) {
	receivedCount := 0
	for {
		var (
			waitCh chan struct{}
			eof    bool
		)
		if err := func() error {
			s.inputBufferLocker.Lock()
			defer s.inputBufferLocker.Unlock()
			n, err := s.inputBuffer.Read(buf[receivedCount:])
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("unable to read from the circular buffer: %w", err)
			}
			if n < 0 {
				return fmt.Errorf("received a negative count: %d", n)
			}
			receivedCount += n
			waitCh = s.readProgressedCh
			eof = s.inputEOF && n == 0
			logger.Tracef(ctx, "closing noiseSuppressionInputProgressedCh")
			notify(&s.noiseSuppressionInputProgressedCh)
			return nil
		}(); err != nil {
			return receivedCount, err
		}
		if receivedCount >= len(buf) || eof {
			return receivedCount, nil
		}
		select {
		case <-ctx.Done():
			return receivedCount, ctx.Err()
		case <-waitCh:
			logger.Tracef(ctx, "noiseSuppressionLoop: received a read event")
		}
	}
}

func (s *NoiseSuppressionStream) noiseSuppressionLoop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "noiseSuppressionLoop")
	defer func() { logger.Tracef(ctx, "/noiseSuppressionLoop: %v", _err) }()
	logger.Debugf(ctx, "chunkSize: %d", s.chunkSize)

	inputBuf := make([]byte, s.chunkSize)
	outputBuf := make([]byte, s.chunkSize)
	for {
		received, err := s.pullInput(ctx, inputBuf)
		if err != nil {
			return err
		}
		if received < len(inputBuf) {
			// the tail is zero-padded, and only whole frames of it are served
			clear(inputBuf[received:])
			received -= received % int(s.frameSize)
		}

		if received > 0 {
			logger.Tracef(ctx, "s.NoiseSuppression.SuppressNoise")
			_, err := s.NoiseSuppression.SuppressNoise(ctx, inputBuf, outputBuf)
			logger.Tracef(ctx, "/s.NoiseSuppression.SuppressNoise: %v", err)
			if err != nil {
				return fmt.Errorf("unable to noise-suppress: %w", err)
			}
			if err := s.pushOutput(ctx, outputBuf[:received]); err != nil {
				return err
			}
		}

		if received < len(inputBuf) {
			s.outputBufferLocker.Lock()
			s.outputEOF = true
			s.notifyNoiseSuppressionOutputProgressed()
			s.outputBufferLocker.Unlock()
			return nil
		}
	}
}

func (s *NoiseSuppressionStream) pushOutput(
	ctx context.Context,
	data []byte,
) error {
	logger.Tracef(ctx, "s.outputBufferLocker.Lock()")
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	logger.Tracef(ctx, "/s.outputBufferLocker.Lock()")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w, err := s.outputBuffer.Write(data)
		if err != nil {
			if errors.Is(err, circular.ErrNoSpace) {
				s.waitForOutput(ctx)
				continue
			}
			return fmt.Errorf("unable to write to the circular buffer: %w", err)
		}
		if w != len(data) {
			return fmt.Errorf("wrote != read: %d != %d", w, len(data))
		}
		logger.Tracef(ctx, "closing noiseSuppressionOutputProgressedCh")
		s.notifyNoiseSuppressionOutputProgressed()
		return nil
	}
}

func (s *NoiseSuppressionStream) waitForOutput(ctx context.Context) {
	logger.Tracef(ctx, "waitForOutput")
	defer logger.Tracef(ctx, "/waitForOutput")

	ch := s.outputProgressedCh
	s.outputBufferLocker.Unlock()
	defer s.outputBufferLocker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
		logger.Tracef(ctx, "waitForOutput: received an event")
	}
}

// Read serves denoised bytes; it blocks until some are available and
// returns io.EOF once the upstream ended and everything was served.
func (s *NoiseSuppressionStream) Read(pcm []byte) (_ret int, _err error) {
	logger.Tracef(s.readCtx, "Read, len:%d", len(pcm))
	defer func() { logger.Tracef(s.readCtx, "/Read, len:%d: %d, %v", len(pcm), _ret, _err) }()

	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()

	for {
		logger.Tracef(s.readCtx, "Read: s.outputBuffer.Read()")
		n, err := s.outputBuffer.Read(pcm)
		logger.Tracef(s.readCtx, "/Read: s.outputBuffer.Read(): %v %v", n, err)
		if n > 0 {
			notify(&s.outputProgressedCh)
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
		switch {
		case s.resultError != nil:
			return 0, s.resultError
		case s.outputEOF:
			return 0, io.EOF
		}
		if err := s.waitForNoiseSuppressionOutputProgressed(s.readCtx); err != nil {
			return 0, err
		}
	}
}

func (s *NoiseSuppressionStream) waitForNoiseSuppressionOutputProgressed(ctx context.Context) error {
	logger.Tracef(ctx, "waitForNoiseSuppressionOutputProgressed")
	defer logger.Tracef(ctx, "/waitForNoiseSuppressionOutputProgressed")

	ch := s.noiseSuppressionOutputProgressedCh
	s.outputBufferLocker.Unlock()
	defer s.outputBufferLocker.Lock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		logger.Tracef(ctx, "waitForNoiseSuppressionOutputProgressed: received an event")
		return nil
	}
}

// Close stops the processing and closes the noise suppressor. The
// upstream reader is not closed.
func (s *NoiseSuppressionStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancelFunc()
		s.loopWG.Wait()
		err = s.NoiseSuppression.Close()
	})
	return err
}
