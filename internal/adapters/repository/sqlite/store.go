// Package sqlite provides a SQLite-backed contract store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/okian/scorenft/internal/adapters/repository"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS contract_kv (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
`

// Store persists contract state in a single SQLite table.
type Store struct {
	sqlDB *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes every contract call.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Driver implements repository.Store.
func (s *Store) Driver() string { return "sqlite" }

// View implements repository.Store.
func (s *Store) View(ctx context.Context, fn func(repository.Reader) error) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&txn{ctx: ctx, tx: tx})
}

// Update implements repository.Store.
func (s *Store) Update(ctx context.Context, fn func(repository.Txn) error) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	t := &txn{ctx: ctx, tx: tx, writes: make(map[string][]byte)}
	if err := fn(t); err != nil {
		_ = tx.Rollback()
		return err
	}
	for key, value := range t.writes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contract_kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	if s == nil || s.sqlDB == nil {
		return nil, repository.ErrClosed
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return nil, repository.ErrClosed
		}
		return nil, fmt.Errorf("begin: %w", err)
	}
	return tx, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type txn struct {
	ctx    context.Context
	tx     *sql.Tx
	writes map[string][]byte
}

func (t *txn) Get(key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return v, true, nil
	}
	var value []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT value FROM contract_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
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
