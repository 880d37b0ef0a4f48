package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
)

type pingCloser interface {
	Ping(context.Context) error
	Close() error
}

type autoFactory[T pingCloser] interface {
	New() (T, error)
	Name() string
}

// lastSuccessful remembers the backend that worked last time, so that
// re-opening a device does not walk the whole registry again.
type lastSuccessful[T pingCloser] struct {
	locker  sync.Mutex
	factory autoFactory[T]
}

func (l *lastSuccessful[T]) get() autoFactory[T] {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.factory
}

func (l *lastSuccessful[T]) set(f autoFactory[T]) {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.factory = f
}

func pickAuto[T pingCloser](
	ctx context.Context,
	kind string,
	last *lastSuccessful[T],
	factories []autoFactory[T],
) (T, error) {
	if factory := last.get(); factory != nil {
		backend, err := factory.New()
		if err == nil {
			if err := backend.Ping(ctx); err == nil {
				return backend, nil
			}
			_ = backend.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range factories {
		backend, err := factory.New()
		logger.Debugf(ctx, "initializing %s %s result is %v", kind, factory.Name(), err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %s: %w", factory.Name(), err))
			continue
		}

		err = backend.Ping(ctx)
		logger.Debugf(ctx, "pinging %s %s result is %v", kind, factory.Name(), err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %s: %w", factory.Name(), err))
			_ = backend.Close()
			continue
		}

		last.set(factory)
		return backend, nil
	}

	var zero T
	if mErr == nil {
		return zero, fmt.Errorf("no %s backends are registered", kind)
	}
	return zero, mErr.ErrorOrNil()
}
