// Package store implements the SQLite storage layer for the graph: typed
// nodes and directed typed edges, each carrying a free-form JSON property
// map. The query and traversal engines sit on top of this package and only
// ever reach the database through it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultBusyTimeoutMS is how long a writer waits on the database lock
// before SQLITE_BUSY is surfaced to the caller.
const DefaultBusyTimeoutMS = 5000

// Direction selects which edge endpoint a hop follows relative to the
// current node: Out follows from_id -> to_id, In the reverse, Both either.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	return d == DirectionOut || d == DirectionIn || d == DirectionBoth
}

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection for graph storage.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// Node is a graph vertex: a typed label plus a property map. Identity is
// the generated integer id; Type is immutable after creation.
type Node struct {
	ID         int64
	Type       string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Edge is a directed relationship From -> To with a typed label and
// properties. Deleting either endpoint cascades the edge away.
type Edge struct {
	ID         int64
	Type       string
	From       int64
	To         int64
	Properties map[string]any
	CreatedAt  time.Time
}

// OpenPath opens (or creates) a SQLite database at the given path.
// busyTimeoutMS <= 0 falls back to DefaultBusyTimeoutMS.
func OpenPath(dbPath string, busyTimeoutMS int) (*Store, error) {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = DefaultBusyTimeoutMS
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)", dbPath, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// Every pooled connection to :memory: is a separate empty database;
	// pin the pool to one connection.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, dbPath: ":memory:"}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction.
// The callback receives a transaction-scoped Store: all store methods
// called on txStore use the transaction. The receiver's q field is never
// mutated, so concurrent read-only callers (using s.q == s.db) are
// unaffected.
func (s *Store) WithTransaction(fn func(txStore *Store) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sql.DB (for advanced queries).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query runs an arbitrary parameterized SQL statement against the active
// querier. The pattern compiler executes its generated statements through
// this.
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	return s.q.Query(query, args...)
}

// QueryRow runs a single-row query against the active querier.
func (s *Store) QueryRow(query string, args ...any) *sql.Row {
	return s.q.QueryRow(query, args...)
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		properties TEXT DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		from_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		to_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		properties TEXT DEFAULT '{}',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_edges_from_type ON edges(from_id, type);
	CREATE INDEX IF NOT EXISTS idx_edges_to_type ON edges(to_id, type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// marshalProps serializes properties to JSON.
func marshalProps(props map[string]any) string {
	if props == nil {
		return "{}"
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// unmarshalProps deserializes JSON properties, tolerating bad data by
// returning an empty map. Scan paths use this; the result binder uses
// UnmarshalPropsStrict instead.
func unmarshalProps(data string) map[string]any {
	if data == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// UnmarshalPropsStrict deserializes JSON properties and reports corruption
// instead of swallowing it.
func UnmarshalPropsStrict(data string) (map[string]any, error) {
	if data == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("corrupt properties %q: %w", truncate(data, 64), err)
	}
	return m, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Now returns the current time in UTC, truncated to second precision so a
// round trip through the TEXT column compares equal.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// formatTime serializes a timestamp for the TEXT columns (RFC 3339 UTC).
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime deserializes a TEXT column timestamp. The zero time is
// returned for empty or unparseable values.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
