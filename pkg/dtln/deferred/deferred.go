// Package deferred runs an engine on a dedicated goroutine so that a
// real-time caller never blocks for longer than one chunk's worth of
// time: every Submit returns the result of the previous chunk, or
// silence if the worker did not make it in time.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/dtln/pkg/dtln"
	"github.com/xaionaro-go/observability"
)

var (
	ErrStopped         = errors.New("the pipeline is stopped")
	ErrWorkerFailed    = errors.New("the pipeline worker failed")
	ErrBacklogOverflow = errors.New("the pipeline backlog is full")
)

const DefaultQueueSize = 1024

// Processor is the part of *dtln.Engine the pipeline needs.
type Processor interface {
	ProcessInto(ctx context.Context, out []float32, samples []float32) (int, error)
}

var _ Processor = (*dtln.Engine)(nil)

type Result struct {
	Samples []float32

	// ProcessorStarved is set when the worker did not deliver the
	// previous chunk in time and Samples is silence.
	ProcessorStarved bool
}

type request struct {
	seq     uint64
	samples []float32
}

type response struct {
	seq     uint64
	samples []float32
	err     error
}

type Stats struct {
	Submitted atomic.Uint64
	Starved   atomic.Uint64
	Discarded atomic.Uint64
	Failed    atomic.Uint64
}

type Pipeline struct {
	processor Processor
	requests  chan request
	results   chan response

	submitLocker sync.Mutex
	nextSeq      uint64

	stopOnce  sync.Once
	stopCh    chan struct{}
	failedCh  chan struct{}
	fatalErr  error
	workerWG  sync.WaitGroup
	stopped   atomic.Bool
	timeoutFn func(chunkLen int) time.Duration

	stats Stats
}

type config struct {
	QueueSize int
	Timeout   func(chunkLen int) time.Duration
}

type Option interface {
	apply(*config)
}

// OptionQueueSize bounds the amount of chunks waiting for the worker.
type OptionQueueSize int

func (opt OptionQueueSize) apply(cfg *config) {
	cfg.QueueSize = int(opt)
}

// OptionTimeout overrides ResultTimeout.
type OptionTimeout func(chunkLen int) time.Duration

func (opt OptionTimeout) apply(cfg *config) {
	cfg.Timeout = opt
}

// ResultTimeout is how long Submit waits for the previous chunk: one
// chunk duration at dtln.SampleRate, in whole milliseconds, minus one
// millisecond of headroom for the caller.
func ResultTimeout(chunkLen int) time.Duration {
	ms := chunkLen*1000/dtln.SampleRate - 1
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// New starts the worker. The pipeline does not own processor: the
// caller closes it after Stop returned.
func New(
	ctx context.Context,
	processor Processor,
	opts ...Option,
) (*Pipeline, error) {
	cfg := config{
		QueueSize: DefaultQueueSize,
		Timeout:   ResultTimeout,
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if processor == nil {
		return nil, fmt.Errorf("%w: the processor is nil", dtln.ErrCreationFailure)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("%w: the queue size must be positive, got %d", dtln.ErrCreationFailure, cfg.QueueSize)
	}

	p := &Pipeline{
		processor: processor,
		requests:  make(chan request, cfg.QueueSize),
		results:   make(chan response, cfg.QueueSize+1),
		stopCh:    make(chan struct{}),
		failedCh:  make(chan struct{}),
		timeoutFn: cfg.Timeout,
	}
	p.workerWG.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer p.workerWG.Done()
		p.worker(ctx)
	})
	return p, nil
}

func (p *Pipeline) worker(ctx context.Context) {
	logger.Debugf(ctx, "worker")
	defer logger.Debugf(ctx, "/worker")

	// an in-flight cycle is never interrupted by Stop
	processCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case req := <-p.requests:
			resp, ok := p.process(processCtx, req)
			if !ok {
				return
			}
			select {
			case p.results <- resp:
			case <-p.stopCh:
				return
			}
		}
	}
}

func (p *Pipeline) process(ctx context.Context, req request) (_ response, _ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		p.fatalErr = fmt.Errorf("%w: got a panic while processing chunk %d: %v", ErrWorkerFailed, req.seq, r)
		logger.Errorf(ctx, "%v", p.fatalErr)
		close(p.failedCh)
		_ok = false
	}()

	out := make([]float32, len(req.samples))
	n, err := p.processor.ProcessInto(ctx, out, req.samples)
	if err != nil {
		logger.Errorf(ctx, "unable to process chunk %d: %v", req.seq, err)
		p.stats.Failed.Add(1)
		clear(out[n:])
	}
	return response{
		seq:     req.seq,
		samples: out,
		err:     err,
	}, true
}

func (p *Pipeline) fatal() error {
	select {
	case <-p.failedCh:
		return p.fatalErr
	default:
		return nil
	}
}

// Submit hands chunk to the worker and returns the result for the
// chunk submitted by the previous call. The very first call returns
// silence. If the previous result does not arrive within the timeout
// the call returns silence with ProcessorStarved set, and that result
// is dropped once it arrives.
//
// If processing the previous chunk failed, its slot is returned as
// silence together with the error, while chunk is still accepted.
func (p *Pipeline) Submit(
	ctx context.Context,
	chunk []float32,
) (_ Result, _err error) {
	logger.Tracef(ctx, "Submit, len:%d", len(chunk))
	defer func() { logger.Tracef(ctx, "/Submit, len:%d: %v", len(chunk), _err) }()

	p.submitLocker.Lock()
	defer p.submitLocker.Unlock()

	if p.stopped.Load() {
		return Result{}, ErrStopped
	}
	if err := p.fatal(); err != nil {
		return Result{}, err
	}
	if len(chunk)%dtln.BlockShift != 0 {
		return Result{}, fmt.Errorf("%w: %d %% %d != 0", dtln.ErrUnalignedInputLength, len(chunk), dtln.BlockShift)
	}

	seq := p.nextSeq
	select {
	case p.requests <- request{seq: seq, samples: append([]float32(nil), chunk...)}:
	default:
		return Result{}, fmt.Errorf("%w: %d chunks are queued", ErrBacklogOverflow, cap(p.requests))
	}
	p.nextSeq++
	p.stats.Submitted.Add(1)

	if seq == 0 {
		return Result{Samples: make([]float32, len(chunk))}, nil
	}
	return p.awaitResult(ctx, seq-1, len(chunk))
}

func (p *Pipeline) awaitResult(
	ctx context.Context,
	seq uint64,
	chunkLen int,
) (Result, error) {
	timeout := p.timeoutFn(chunkLen)
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	for {
		var resp response
		if timer == nil {
			select {
			case resp = <-p.results:
			case <-p.failedCh:
				return Result{}, p.fatalErr
			case <-ctx.Done():
				return Result{}, ctx.Err()
			default:
				return p.starved(ctx, seq, chunkLen), nil
			}
		} else {
			select {
			case resp = <-p.results:
			case <-timer:
				return p.starved(ctx, seq, chunkLen), nil
			case <-p.failedCh:
				return Result{}, p.fatalErr
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		switch {
		case resp.seq < seq:
			p.stats.Discarded.Add(1)
			logger.Debugf(ctx, "discarding the late result of chunk %d", resp.seq)
			continue
		case resp.seq > seq:
			return Result{}, fmt.Errorf("internal error: received the result of chunk %d while waiting for %d", resp.seq, seq)
		}

		if resp.err != nil {
			return Result{Samples: make([]float32, len(resp.samples))}, fmt.Errorf("unable to process chunk %d: %w", resp.seq, resp.err)
		}
		return Result{Samples: resp.samples}, nil
	}
}

func (p *Pipeline) starved(ctx context.Context, seq uint64, chunkLen int) Result {
	p.stats.Starved.Add(1)
	logger.Debugf(ctx, "the processor is starved: chunk %d is not ready", seq)
	return Result{
		Samples:          make([]float32, chunkLen),
		ProcessorStarved: true,
	}
}

// Stop waits for the in-flight cycle (if any) and halts the worker.
// Chunks still queued are dropped. It is safe to call Stop many times.
func (p *Pipeline) Stop(ctx context.Context) {
	logger.Tracef(ctx, "Stop")
	defer logger.Tracef(ctx, "/Stop")
	p.stopOnce.Do(func() {
		// a concurrent Submit either completes first or sees the flag
		p.submitLocker.Lock()
		defer p.submitLocker.Unlock()
		p.stopped.Store(true)
		close(p.stopCh)
	})
	p.workerWG.Wait()
}

func (p *Pipeline) Stats() *Stats {
	return &p.stats
}
