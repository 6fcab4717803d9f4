package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const nodeCols = "id, type, properties, created_at, updated_at"

// InsertNode inserts a node and returns its generated id. CreatedAt and
// UpdatedAt are set server-side; values on n are ignored.
func (s *Store) InsertNode(n *Node) (int64, error) {
	now := formatTime(Now())
	res, err := s.q.Exec(`
		INSERT INTO nodes (type, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		n.Type, marshalProps(n.Properties), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert node: %w", err)
	}
	return res.LastInsertId()
}

// GetNode fetches a node by id. Returns (nil, nil) when it does not exist.
func (s *Store) GetNode(id int64) (*Node, error) {
	row := s.q.QueryRow(`SELECT `+nodeCols+` FROM nodes WHERE id=?`, id)
	return scanNode(row)
}

// UpdateNode replaces a node's properties and bumps updated_at. The type
// is immutable and not touched.
func (s *Store) UpdateNode(id int64, props map[string]any) error {
	res, err := s.q.Exec(`UPDATE nodes SET properties=?, updated_at=? WHERE id=?`,
		marshalProps(props), formatTime(Now()), id)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("update node %d: not found", id)
	}
	return nil
}

// UpdateNodeProps merges the given keys into the node's existing property
// map rather than replacing it wholesale.
func (s *Store) UpdateNodeProps(id int64, props map[string]any) error {
	n, err := s.GetNode(id)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("update node props %d: not found", id)
	}
	merged := n.Properties
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range props {
		merged[k] = v
	}
	return s.UpdateNode(id, merged)
}

// DeleteNode removes a node. Edges referencing it as either endpoint are
// removed by the ON DELETE CASCADE foreign keys.
func (s *Store) DeleteNode(id int64) error {
	_, err := s.q.Exec(`DELETE FROM nodes WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return nil
}

// FindNodesByType returns all nodes with the given type.
func (s *Store) FindNodesByType(nodeType string) ([]*Node, error) {
	rows, err := s.q.Query(`SELECT `+nodeCols+` FROM nodes WHERE type=?`, nodeType)
	if err != nil {
		return nil, fmt.Errorf("find nodes by type: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AllNodes returns every node in the database.
func (s *Store) AllNodes() ([]*Node, error) {
	rows, err := s.q.Query(`SELECT ` + nodeCols + ` FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountNodes returns the number of nodes.
func (s *Store) CountNodes() (int, error) {
	var count int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&count)
	return count, err
}

// NodeExists reports whether a node with the given id exists.
func (s *Store) NodeExists(id int64) (bool, error) {
	var one int
	err := s.q.QueryRow(`SELECT 1 FROM nodes WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindNodesByIDs returns a map of nodeID -> *Node for the given IDs.
func (s *Store) FindNodesByIDs(ids []int64) (map[int64]*Node, error) {
	if len(ids) == 0 {
		return map[int64]*Node{}, nil
	}
	result := make(map[int64]*Node, len(ids))
	const batchSize = 998 // leave room under SQLite's 999 bind-variable limit

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for j, id := range chunk {
			placeholders[j] = "?"
			args[j] = id
		}

		query := fmt.Sprintf("SELECT %s FROM nodes WHERE id IN (%s)",
			nodeCols, strings.Join(placeholders, ","))

		if err := func() error {
			rows, err := s.q.Query(query, args...)
			if err != nil {
				return fmt.Errorf("find nodes by ids: %w", err)
			}
			defer rows.Close()
			nodes, err := scanNodes(rows)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				result[n.ID] = n
			}
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var props, created, updated string
	err := row.Scan(&n.ID, &n.Type, &props, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	n.Properties = unmarshalProps(props)
	n.CreatedAt = ParseTime(created)
	n.UpdatedAt = ParseTime(updated)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var result []*Node
	for rows.Next() {
		var n Node
		var props, created, updated string
		if err := rows.Scan(&n.ID, &n.Type, &props, &created, &updated); err != nil {
			return nil, err
		}
		n.Properties = unmarshalProps(props)
		n.CreatedAt = ParseTime(created)
		n.UpdatedAt = ParseTime(updated)
		result = append(result, &n)
	}
	return result, rows.Err()
}

// SQLite caps bind variables at 999; 4 bound columns per node row.
const numNodeInsertCols = 4
const nodesBatchSize = 999 / numNodeInsertCols

// InsertNodeBatch inserts multiple nodes in batched multi-row INSERTs and
// fills in the generated IDs on the passed nodes.
func (s *Store) InsertNodeBatch(nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}
	for i := 0; i < len(nodes); i += nodesBatchSize {
		end := i + nodesBatchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if err := s.insertNodeChunk(nodes[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertNodeChunk(batch []*Node) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO nodes (type, properties, created_at, updated_at) VALUES `)

	now := formatTime(Now())
	args := make([]any, 0, len(batch)*numNodeInsertCols)
	for i, n := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?)")
		args = append(args, n.Type, marshalProps(n.Properties), now, now)
	}

	res, err := s.q.Exec(sb.String(), args...)
	if err != nil {
		return fmt.Errorf("insert node batch: %w", err)
	}
	// Multi-row INSERT ids are contiguous in SQLite; LastInsertId is the
	// id of the final row in the batch.
	last, err := res.LastInsertId()
	if err != nil {
		return err
	}
	first := last - int64(len(batch)) + 1
	for i, n := range batch {
		n.ID = first + int64(i)
	}
	return nil
}
