package worker

import (
	"context"
	"sync"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

// Pool is a set of independent owners. Each job goes to whichever owner is idle, so an owner only ever has one job at a time.
// A pool of one is a single warm instance.
type Pool struct {
	logger *logpkg.Logger
	owners []*Owner
	idle   chan *Owner

	mu      sync.RWMutex
	stopped bool
}

func NewPool(logger *logpkg.Logger, size int, factory Factory) (*Pool, errorsx.Error) {
	if size < 1 {
		return nil, errorsx.Errorf("pool size must be at least 1, got %d", size)
	}

	pool := &Pool{
		logger: logger,
		idle:   make(chan *Owner, size),
	}

	for i := 0; i < size; i++ {
		owner, err := NewOwner(logger, i, factory)
		if err != nil {
			// tear down the owners already created
			for _, created := range pool.owners {
				stopErr := created.Stop()
				if stopErr != nil {
					logger.Error("couldn't stop owner %d: %s", created.ID(), stopErr)
				}
			}
			return nil, err
		}

		pool.owners = append(pool.owners, owner)
		pool.idle <- owner
	}

	return pool, nil
}

func (p *Pool) Size() int {
	return len(p.owners)
}

// Do waits for an idle owner, and runs fn on it
func (p *Pool) Do(ctx context.Context, fn WorkFunc) errorsx.Error {
	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()
	if stopped {
		return errorsx.Wrap(ErrStopped)
	}

	var owner *Owner
	select {
	case owner = <-p.idle:
	case <-ctx.Done():
		return errorsx.Wrap(ctx.Err())
	}

	done, err := owner.do(ctx, fn)
	if done == nil {
		p.idle <- owner
		return err
	}

	select {
	case <-done:
		p.idle <- owner
	default:
		// ctx was cancelled while fn is still running; the owner is only idle once it has finished
		go func() {
			<-done
			p.idle <- owner
		}()
	}

	return err
}

func (p *Pool) Stats() []Stats {
	var stats []Stats
	for _, owner := range p.owners {
		stats = append(stats, owner.Stats())
	}
	return stats
}

// Stop stops every owner. Jobs already handed to an owner are finished first.
func (p *Pool) Stop() errorsx.Error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	var firstErr errorsx.Error
	for _, owner := range p.owners {
		err := owner.Stop()
		if err != nil {
			p.logger.Error("couldn't stop owner %d: %s", owner.ID(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
