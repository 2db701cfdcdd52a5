// Package testutil provides an in-memory stand-in for the postgres state
// table. It understands the statements the store issues: the table DDL, the
// per-bucket upsert and the bucket scan.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StateTable holds one JSONB payload per bucket name. Upserts made inside a
// transaction become visible on commit only.
type StateTable struct {
	mu      sync.Mutex
	buckets map[string][]byte
	pending map[string][]byte

	// Statements lists every statement executed, in order.
	Statements []string

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	// FailBucket makes the upsert of the named bucket fail.
	FailBucket string
	// ScanErr is returned after the last row of a bucket scan.
	ScanErr error
}

// NewStateDB registers a sql.DB backed by an empty state table.
func NewStateDB() (*sql.DB, *StateTable) {
	table := &StateTable{buckets: make(map[string][]byte)}
	name := fmt.Sprintf("btocore-state-%d", driverSeq.Add(1))
	sql.Register(name, stateDriver{table: table})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, table
}

// Bucket returns the committed payload of a bucket.
func (s *StateTable) Bucket(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.buckets[name]
	return payload, ok
}

// BucketNames returns the committed bucket names in sorted order.
func (s *StateTable) BucketNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetBucket stores a payload directly, bypassing the store.
func (s *StateTable) SetBucket(name string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[name] = payload
}

type stateDriver struct {
	table *StateTable
}

func (d stateDriver) Open(string) (driver.Conn, error) { return &stateConn{table: d.table}, nil }

type stateConn struct {
	table *StateTable
}

func (c *stateConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepared statements are not supported: %s", query)
}

func (c *stateConn) Close() error { return nil }

func (c *stateConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stateConn) Ping(context.Context) error {
	if c.table.FailPing {
		return errors.New("connection refused")
	}
	return nil
}

func (c *stateConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailBegin {
		return nil, errors.New("begin refused")
	}
	t.pending = make(map[string][]byte)
	return stateTx{table: t}, nil
}

func (c *stateConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Statements = append(t.Statements, query)

	normalized := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	switch {
	case strings.HasPrefix(normalized, "CREATE TABLE IF NOT EXISTS STATE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(normalized, "INSERT INTO STATE") && strings.Contains(normalized, "ON CONFLICT (BUCKET)"):
		if len(args) != 2 {
			return nil, fmt.Errorf("state upsert takes bucket and payload, got %d args", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket must be text, got %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
		}
		if bucket == t.FailBucket {
			return nil, fmt.Errorf("write %s refused", bucket)
		}
		target := t.buckets
		if t.pending != nil {
			target = t.pending
		}
		target[bucket] = append([]byte(nil), payload...)
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

func (c *stateConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	normalized := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	if normalized != "SELECT BUCKET, PAYLOAD FROM STATE" {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	names := make([]string, 0, len(t.buckets))
	for name := range t.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := &stateRows{err: t.ScanErr}
	for _, name := range names {
		rows.rows = append(rows.rows, []driver.Value{name, t.buckets[name]})
	}
	return rows, nil
}

type stateTx struct {
	table *StateTable
}

func (tx stateTx) Commit() error {
	t := tx.table
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := t.pending
	t.pending = nil
	if t.FailCommit {
		return errors.New("commit refused")
	}
	for name, payload := range pending {
		t.buckets[name] = payload
	}
	return nil
}

func (tx stateTx) Rollback() error {
	tx.table.mu.Lock()
	defer tx.table.mu.Unlock()
	tx.table.pending = nil
	return nil
}

type stateRows struct {
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stateRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stateRows) Close() error      { return nil }

func (r *stateRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
