// Package repository defines the contract key/value store and its in-memory
// implementation. Backends live in sub-packages.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
)

// Reader reads committed state, plus the caller's own staged writes when
// used inside Update.
type Reader interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) ([]byte, bool, error)
}

// Txn is the write set of one contract call.
type Txn interface {
	Reader
	// Put stages value under key. Staged writes become visible to other
	// calls only when the enclosing Update returns nil.
	Put(key string, value []byte) error
}

// Store provides atomic, serialized access to contract state.
type Store interface {
	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(Reader) error) error
	// Update runs fn as one all-or-nothing transaction. If fn returns an
	// error nothing it staged is written.
	Update(ctx context.Context, fn func(Txn) error) error
	// Driver names the backend for logs and metrics.
	Driver() string
	Close() error
}

// GetJSON decodes the JSON value under key into v. It reports false when the
// key is absent.
func GetJSON(r Reader, key string, v any) (bool, error) {
	raw, ok, err := r.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// PutJSON stages v encoded as JSON under key.
func PutJSON(tx Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Put(key, raw)
}
