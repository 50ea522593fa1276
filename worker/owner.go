package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-paparazzi/paparazzi"
)

var ErrStopped = errors.New("worker stopped")

// Factory creates the Paparazzi for an owner. It is called on the owner's own OS thread,
// so the graphics context is created on the thread that will use it.
type Factory func(ownerID int) (*paparazzi.Paparazzi, errorsx.Error)

// WorkFunc runs on the owner goroutine, with sole access to the Paparazzi.
type WorkFunc func(p *paparazzi.Paparazzi)

type ItemStatus int

const (
	ItemStatusQueued ItemStatus = iota + 1
	ItemStatusInProgress
	ItemStatusDone
	ItemStatusSkipped
)

type item struct {
	ctx    context.Context
	fn     WorkFunc
	status ItemStatus
	done   chan struct{}
}

type Stats struct {
	ID        int              `json:"id"`
	Queued    int              `json:"queued"`
	Processed int              `json:"processed"`
	Skipped   int              `json:"skipped"`
	Stopped   bool             `json:"stopped"`
	Status    paparazzi.Status `json:"status"`
}

// Owner is the only goroutine allowed to touch its Paparazzi.
// Work is queued by any number of producers and run strictly in order, one item at a time.
type Owner struct {
	logger *logpkg.Logger
	id     int

	paparazzi *paparazzi.Paparazzi

	mu        sync.Mutex
	items     []*item
	stopping  bool
	processed int
	skipped   int

	wake     chan struct{}
	finished chan struct{}
	closeErr errorsx.Error
}

// NewOwner starts the owner goroutine and waits for its Paparazzi to be created.
func NewOwner(logger *logpkg.Logger, id int, factory Factory) (*Owner, errorsx.Error) {
	o := &Owner{
		logger:   logger,
		id:       id,
		wake:     make(chan struct{}, 1),
		finished: make(chan struct{}),
	}

	ready := make(chan errorsx.Error)
	go o.run(factory, ready)

	err := <-ready
	if err != nil {
		return nil, errorsx.Wrap(err, "ownerID", id)
	}

	return o, nil
}

func (o *Owner) ID() int {
	return o.id
}

func (o *Owner) run(factory Factory, ready chan<- errorsx.Error) {
	defer close(o.finished)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p, err := factory(o.id)
	if err != nil {
		ready <- err
		return
	}
	o.paparazzi = p
	ready <- nil

	for {
		it := o.next()
		if it == nil {
			break
		}
		o.execute(it)
	}

	o.logger.Debug("owner %d: queue drained, tearing down", o.id)
	o.closeErr = p.Close()
}

// next blocks until there is an item to run. It returns nil once stopped and drained.
func (o *Owner) next() *item {
	for {
		o.mu.Lock()
		if len(o.items) > 0 {
			it := o.items[0]
			o.items = o.items[1:]
			o.mu.Unlock()
			return it
		}
		if o.stopping {
			o.mu.Unlock()
			return nil
		}
		o.mu.Unlock()

		<-o.wake
	}
}

func (o *Owner) execute(it *item) {
	defer close(it.done)

	if it.ctx.Err() != nil {
		o.mu.Lock()
		it.status = ItemStatusSkipped
		o.skipped++
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	it.status = ItemStatusInProgress
	o.mu.Unlock()

	it.fn(o.paparazzi)

	o.mu.Lock()
	it.status = ItemStatusDone
	o.processed++
	o.mu.Unlock()
}

func (o *Owner) enqueue(ctx context.Context, fn WorkFunc) (*item, errorsx.Error) {
	it := &item{ctx: ctx, fn: fn, status: ItemStatusQueued, done: make(chan struct{})}

	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		return nil, errorsx.Wrap(ErrStopped, "ownerID", o.id)
	}
	o.items = append(o.items, it)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}

	return it, nil
}

// Submit queues fn without waiting for it to run
func (o *Owner) Submit(fn WorkFunc) errorsx.Error {
	_, err := o.enqueue(context.Background(), fn)
	return err
}

// Do queues fn and waits for it to run.
// If ctx is cancelled while fn is still queued, fn is skipped. Once running, fn always runs to the end.
func (o *Owner) Do(ctx context.Context, fn WorkFunc) errorsx.Error {
	_, err := o.do(ctx, fn)
	return err
}

// do is Do, also giving back a channel that is closed once fn has run or been skipped.
// The channel is nil if fn was never queued.
func (o *Owner) do(ctx context.Context, fn WorkFunc) (<-chan struct{}, errorsx.Error) {
	it, err := o.enqueue(ctx, fn)
	if err != nil {
		return nil, err
	}

	select {
	case <-it.done:
	case <-ctx.Done():
		return it.done, errorsx.Wrap(ctx.Err(), "ownerID", o.id)
	}

	o.mu.Lock()
	skipped := it.status == ItemStatusSkipped
	o.mu.Unlock()

	if skipped {
		return it.done, errorsx.Wrap(ctx.Err(), "ownerID", o.id)
	}

	return it.done, nil
}

// Stop stops taking new work, runs everything already queued, then tears the Paparazzi down.
func (o *Owner) Stop() errorsx.Error {
	o.mu.Lock()
	o.stopping = true
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}

	<-o.finished

	return o.closeErr
}

func (o *Owner) Stats() Stats {
	o.mu.Lock()
	stats := Stats{
		ID:        o.id,
		Queued:    len(o.items),
		Processed: o.processed,
		Skipped:   o.skipped,
		Stopped:   o.stopping,
	}
	o.mu.Unlock()

	if o.paparazzi != nil {
		stats.Status = o.paparazzi.Status()
	}

	return stats
}
