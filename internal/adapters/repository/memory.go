package repository

import (
	"bytes"
	"context"
	"maps"
	"sync"
)

// MemoryStore is an in-process Store. Update calls are serialized by a
// single writer lock; staged writes are applied only when fn succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Driver implements Store.
func (s *MemoryStore) Driver() string { return "memory" }

// View implements Store.
func (s *MemoryStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTxn{base: s.data})
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	tx := &memTxn{base: s.data, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	maps.Copy(s.data, tx.writes)
	return nil
}

// Snapshot returns a copy of every stored key and value.
func (s *MemoryStore) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		out[k] = bytes.Clone(v)
	}
	return out
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memTxn struct {
	base   map[string][]byte
	writes map[string][]byte // nil for read-only views
}

func (t *memTxn) Get(key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return bytes.Clone(v), true, nil
	}
	v, ok := t.base[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (t *memTxn) Put(key string, value []byte) error {
	t.writes[key] = bytes.Clone(value)
	return nil
}
