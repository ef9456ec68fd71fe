package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/scorenft/internal/domain/model"
)

func event(id string) model.Event {
	return model.Event{EventID: id, Kind: model.EventScoreUpdated, Identity: "IDalice", Score: 502, Delta: 2}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, event("e1")) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.EventID != "e1" || got.Score != 502 {
		t.Errorf("unexpected event %+v", got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, event("e1")) || !q.Enqueue(ctx, event("e2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, event("e3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, event("e1")) {
		t.Error("expected enqueue to fail on a cancelled context")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()
	q.Enqueue(ctx, event("e1"))

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, event("e2")) {
		t.Error("expected enqueue to fail after close")
	}

	// buffered events drain before the channel reports closed
	var ids []string
	for e := range q.Dequeue(ctx) {
		ids = append(ids, e.EventID)
	}
	if len(ids) != 1 || ids[0] != "e1" {
		t.Errorf("expected [e1], got %v", ids)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const producers, perProducer = 10, 100
	q := NewInMemoryQueue(WithCapacity(producers * perProducer))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if !q.Enqueue(ctx, event(fmt.Sprintf("e-%d-%d", id, j))) {
					t.Errorf("enqueue e-%d-%d failed", id, j)
				}
			}
		}(i)
	}
	wg.Wait()
	_ = q.Close()

	seen := make(map[string]bool)
	for e := range q.Dequeue(ctx) {
		if seen[e.EventID] {
			t.Errorf("duplicate event %s", e.EventID)
		}
		seen[e.EventID] = true
	}
	if len(seen) != producers*perProducer {
		t.Errorf("expected %d events, got %d", producers*perProducer, len(seen))
	}
}
