// Package queue buffers committed ledger events between the service and the
// delivery workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/scorenft/internal/domain/model"
	"github.com/okian/scorenft/pkg/metrics"
)

const defaultCapacity = 10000

// Event is the payload flowing through the queue.
type Event = model.Event

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns the channel workers read from. It is closed once the
	// queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Event

	Len(ctx context.Context) int

	// Close stops accepting events. Buffered events remain readable.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	mu       sync.RWMutex
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: events travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return false
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return true
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return false
	}
}

// Dequeue implements Queue. Every call shares the same underlying channel, so
// concurrent workers each receive distinct events.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Event {
	return q.events
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	return size
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
