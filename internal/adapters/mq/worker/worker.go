// Package worker delivers committed ledger events to their sinks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/pkg/logger"
	"github.com/okian/scorenft/pkg/metrics"
)

const (
	defaultWorkerCount  = 2
	defaultDeliverLimit = 5 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = model.Event

// Sink receives delivered events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker drains the queue until it is closed or ctx is cancelled.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker fans each event out to every sink.
type InMemoryWorker struct {
	queue        Queue
	sinks        []Sink
	name         string
	deliverLimit time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(queue Queue, sinks []Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:        queue,
		sinks:        sinks,
		name:         "worker",
		deliverLimit: defaultDeliverLimit,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes events until the queue channel closes, Shutdown is called
// or ctx is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.deliver(ctx, e); err != nil {
				w.logger.Error(ctx, "event delivery failed",
					logger.String("event_id", e.EventID),
					logger.String("kind", string(e.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker without draining the queue.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) deliver(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events travel by value
	metrics.RecordQueueDequeue()
	var errs []error
	for _, sink := range w.sinks {
		dctx, cancel := context.WithTimeout(ctx, w.deliverLimit)
		err := sink.Deliver(dctx, e)
		cancel()
		if err != nil {
			metrics.RecordDeliveryError(sink.Name())
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.RecordEventDelivered(sink.Name())
	}
	return errors.Join(errs...)
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	started bool
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers sharing queue and sinks.
func NewPool(workerCount int, queue Queue, sinks []Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(queue, sinks, workerOpts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain what is left.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	if !p.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool drain: %w", shutdownCtx.Err())
	}
	return nil
}
