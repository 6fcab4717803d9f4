package grafton

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/grafton-db/grafton/query"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenPathPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")

	db, err := OpenPath(path)
	require.NoError(t, err)
	id, err := db.AddNode("Person", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenPath(path)
	require.NoError(t, err)
	defer db.Close()
	n, err := db.Store().GetNode(id)
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, "Alice", n.Properties["name"])
}

func TestQueryAndTraverseEndToEnd(t *testing.T) {
	db := openTestDB(t)

	alice, err := db.AddNode("Person", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	bob, err := db.AddNode("Person", map[string]any{"name": "Bob"})
	require.NoError(t, err)
	acme, err := db.AddNode("Company", map[string]any{"name": "Acme"})
	require.NoError(t, err)
	_, err = db.AddEdge("KNOWS", alice, bob, nil)
	require.NoError(t, err)
	_, err = db.AddEdge("WORKS_AT", bob, acme, nil)
	require.NoError(t, err)

	res, err := db.Query().
		Start("p", "Person").
		Through("KNOWS", Out).
		Node("f", "Person").
		Through("WORKS_AT", Out).
		End("c", "Company").
		Where("p", query.Filters{"id": query.Eq(alice)}).
		Exec()
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, acme, res.Bindings[0].Node("c").ID)

	nodes, err := db.Traverse(alice).Out("KNOWS").Out("WORKS_AT").ToArray()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, acme, nodes[1].ID)

	p, err := db.Traverse(alice).Both("KNOWS").Repeat().MaxDepth(5).ShortestPath(bob)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 1, p.Len())
}

func TestWithTransactionRollsBack(t *testing.T) {
	db := openTestDB(t)

	err := db.WithTransaction(func(tx *DB) error {
		if _, err := tx.AddNode("Person", nil); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	n, err := db.Query().Start("p", "Person").End("p").Count()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestConcurrentReaders(t *testing.T) {
	db := openTestDB(t)

	hub, err := db.AddNode("Hub", nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		leaf, err := db.AddNode("Leaf", map[string]any{"i": i})
		require.NoError(t, err)
		_, err = db.AddEdge("LINKS", hub, leaf, nil)
		require.NoError(t, err)
	}

	// Pattern queries and traversals share one connection pool and one
	// plan cache across goroutines.
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res, err := db.Query().
				Start("h", "Hub").
				Through("LINKS", Out).
				End("l", "Leaf").
				Exec()
			if err != nil {
				return err
			}
			if len(res.Bindings) != 20 {
				return fmt.Errorf("expected 20 bindings, got %d", len(res.Bindings))
			}
			return nil
		})
		g.Go(func() error {
			nodes, err := db.Traverse(hub).Out("LINKS").ToArray()
			if err != nil {
				return err
			}
			if len(nodes) != 20 {
				return fmt.Errorf("expected 20 nodes, got %d", len(nodes))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestTraverseUsesConfiguredCaps(t *testing.T) {
	db := openTestDB(t)
	db.cfg.Traversal.MaxResults = 5

	hub, err := db.AddNode("Hub", nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		leaf, err := db.AddNode("Leaf", nil)
		require.NoError(t, err)
		_, err = db.AddEdge("LINKS", hub, leaf, nil)
		require.NoError(t, err)
	}

	nodes, err := db.Traverse(hub).Out("LINKS").ToArray()
	require.NoError(t, err)
	require.Len(t, nodes, 5)
}
