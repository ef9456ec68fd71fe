// Package redis provides a Redis-backed contract store using optimistic
// WATCH/MULTI transactions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/pkg/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix  = "scorenft:"
	defaultMaxRetries = 16
)

// Store keeps each contract key as a Redis string under a prefix.
type Store struct {
	client     *goredis.Client
	prefix     string
	maxRetries int
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds how often a conflicting transaction is re-run.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New wraps an existing client. The client lifecycle stays with the caller
// unless Close is called.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultKeyPrefix, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open parses url, connects and pings.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	options, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := goredis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(client, opts...), nil
}

// Driver implements repository.Store.
func (s *Store) Driver() string { return "redis" }

// View implements repository.Store. A view issues no EXEC, so its WATCHes
// are never validated and the retry loop does not cover it: a view spanning
// several keys may observe commits that land between them. Every current
// reader pairs the admin key, which is written once, with at most one
// other key, so no reader can see a torn state.
func (s *Store) View(ctx context.Context, fn func(repository.Reader) error) error {
	return s.run(ctx, func(t *txn) error { return fn(t) })
}

// Update implements repository.Store. An update that stages no writes has
// the same read semantics as View.
func (s *Store) Update(ctx context.Context, fn func(repository.Txn) error) error {
	return s.run(ctx, func(t *txn) error { return fn(t) })
}

func (s *Store) run(ctx context.Context, fn func(*txn) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *goredis.Tx) error {
			t := &txn{ctx: ctx, rtx: rtx, prefix: s.prefix, writes: make(map[string][]byte)}
			if err := fn(t); err != nil {
				return err
			}
			if len(t.writes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				for _, key := range slices.Sorted(maps.Keys(t.writes)) {
					pipe.Set(ctx, s.prefix+key, t.writes[key], 0)
				}
				return nil
			})
			return err
		})
		if errors.Is(err, goredis.TxFailedErr) {
			metrics.RecordStoreRetry(s.Driver())
			continue
		}
		return err
	}
	return repository.ErrConflict
}

// Health pings the server.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

type txn struct {
	ctx    context.Context
	rtx    *goredis.Tx
	prefix string
	writes map[string][]byte
}

func (t *txn) Get(key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return v, true, nil
	}
	full := t.prefix + key
	if err := t.rtx.Watch(t.ctx, full).Err(); err != nil {
		return nil, false, fmt.Errorf("watch %s: %w", key, err)
	}
	v, err := t.rtx.Get(t.ctx, full).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

func (t *txn) Put(key string, value []byte) error {
	t.writes[key] = append([]byte(nil), value...)
	return nil
}
