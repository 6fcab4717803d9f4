// Package grafton is an embeddable property graph over SQLite. Data is
// modeled as typed nodes and typed directed edges carrying JSON property
// maps; the graph is queried declaratively through chained pattern steps
// compiled to a single SQL statement, or imperatively through directional
// breadth-first traversal.
package grafton

import (
	"github.com/grafton-db/grafton/config"
	"github.com/grafton-db/grafton/query"
	"github.com/grafton-db/grafton/store"
	"github.com/grafton-db/grafton/traverse"
)

// Re-exported storage types, so simple embedders only import this package.
type (
	Node = store.Node
	Edge = store.Edge
)

// Edge direction aliases.
const (
	Out  = store.DirectionOut
	In   = store.DirectionIn
	Both = store.DirectionBoth
)

// DB is an open graph database.
type DB struct {
	st    *store.Store
	cfg   *config.Config
	plans *query.PlanCache
}

// Open opens (or creates) a graph database per the given configuration.
// A nil cfg uses config.Default.
func Open(cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := store.OpenPath(cfg.Database.Path, cfg.Database.BusyTimeoutMS)
	if err != nil {
		return nil, err
	}
	return &DB{st: st, cfg: cfg, plans: query.NewPlanCache()}, nil
}

// OpenPath opens a graph database file with default settings.
func OpenPath(path string) (*DB, error) {
	cfg := config.Default()
	cfg.Database.Path = path
	return Open(cfg)
}

// OpenMemory opens an in-memory graph database (for testing and scratch
// work).
func OpenMemory() (*DB, error) {
	st, err := store.OpenMemory()
	if err != nil {
		return nil, err
	}
	return &DB{st: st, cfg: config.Default(), plans: query.NewPlanCache()}, nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.st.Close()
}

// Store exposes the storage layer for CRUD beyond the conveniences below.
func (db *DB) Store() *store.Store {
	return db.st
}

// Query starts a declarative pattern query. The returned builder shares
// this database's compiled-plan cache.
func (db *DB) Query() *query.Pattern {
	return query.New(db.st).WithCache(db.plans)
}

// Traverse starts an imperative traversal from the given node, with this
// database's configured result cap applied.
func (db *DB) Traverse(startID int64) *traverse.Traversal {
	return traverse.New(db.st, startID).
		MaxResults(db.cfg.Traversal.MaxResults).
		MaxPaths(db.cfg.Traversal.MaxPaths)
}

// WithTransaction runs fn inside one storage transaction. The callback's
// DB shares the plan cache but scopes every storage call to the
// transaction.
func (db *DB) WithTransaction(fn func(tx *DB) error) error {
	return db.st.WithTransaction(func(txStore *store.Store) error {
		return fn(&DB{st: txStore, cfg: db.cfg, plans: db.plans})
	})
}

// AddNode inserts a node and returns its id.
func (db *DB) AddNode(nodeType string, props map[string]any) (int64, error) {
	return db.st.InsertNode(&store.Node{Type: nodeType, Properties: props})
}

// AddEdge inserts a directed edge from -> to and returns its id.
func (db *DB) AddEdge(edgeType string, from, to int64, props map[string]any) (int64, error) {
	return db.st.InsertEdge(&store.Edge{Type: edgeType, From: from, To: to, Properties: props})
}
