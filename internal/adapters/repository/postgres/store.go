// Package postgres provides a PostgreSQL-backed contract store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/pkg/metrics"
)

const (
	defaultMaxRetries = 16

	// SQLSTATE 40001 and 40P01.
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

const schema = `
CREATE TABLE IF NOT EXISTS contract_kv (
    key   TEXT PRIMARY KEY,
    value BYTEA NOT NULL
)`

// Store persists contract state in one table using SERIALIZABLE
// transactions.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds how often a serialization failure is re-run.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// Open connects to dsn and ensures the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	s := &Store{pool: pool, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Driver implements repository.Store.
func (s *Store) Driver() string { return "postgres" }

// View implements repository.Store.
func (s *Store) View(ctx context.Context, fn func(repository.Reader) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(t *txn) error {
		return fn(t)
	})
}

// Update implements repository.Store.
func (s *Store) Update(ctx context.Context, fn func(repository.Txn) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(t *txn) error {
		if err := fn(t); err != nil {
			return err
		}
		return t.flush()
	})
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(*txn) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
			return fn(&txn{ctx: ctx, tx: tx, writes: make(map[string][]byte)})
		})
		if isRetryable(err) {
			metrics.RecordStoreRetry(s.Driver())
			continue
		}
		return err
	}
	return repository.ErrConflict
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type txn struct {
	ctx    context.Context
	tx     pgx.Tx
	writes map[string][]byte
}

func (t *txn) Get(key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return v, true, nil
	}
	var value []byte
	err := t.tx.QueryRow(t.ctx, `SELECT value FROM contract_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (t *txn) Put(key string, value []byte) error {
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *txn) flush() error {
	if len(t.writes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for key, value := range t.writes {
		batch.Queue(
			`INSERT INTO contract_kv (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			key, value,
		)
	}
	if err := t.tx.SendBatch(t.ctx, batch).Close(); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}
