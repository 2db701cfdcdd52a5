// Package sqlite persists the in-memory store to a single SQLite table as
// JSON buckets.
package sqlite

import (
	"btocore/internal/infra/persistence/memory"
	"btocore/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	backendName = "sqlite"
	defaultPath = "btocore.db"
)

// Store keeps state in memory and writes a full snapshot on Flush.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating when absent) the database at path and loads any
// previously flushed snapshot.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, persistErr("open", fmt.Errorf("create dirs: %w", err))
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistErr("open", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, persistErr("open", fmt.Errorf("create state table: %w", err))
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return persistErr("load", fmt.Errorf("select state: %w", err))
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return persistErr("load", fmt.Errorf("scan: %w", err))
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return persistErr("load", err)
		}
	}
	if err := rows.Err(); err != nil {
		return persistErr("load", err)
	}
	s.ImportState(snapshot)
	return nil
}

// Flush writes every bucket inside one database transaction. A failure rolls
// back, leaving the previous snapshot in place.
func (s *Store) Flush(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets, err := memory.EncodeBuckets(s.ExportState())
	if err != nil {
		return persistErr("flush", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("flush", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, buckets[bucket]); err != nil {
			return persistErr("flush", fmt.Errorf("upsert %s: %w", bucket, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("flush", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Close releases the database handle. Unflushed changes are discarded.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func persistErr(op string, err error) error {
	return &domain.PersistenceError{Backend: backendName, Op: op, Err: err}
}
