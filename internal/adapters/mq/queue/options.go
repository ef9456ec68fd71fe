package queue

// Option configures an InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets how many events may wait for delivery.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}
