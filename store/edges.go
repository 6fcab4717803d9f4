package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const edgeCols = "id, type, from_id, to_id, properties, created_at"

// InsertEdge inserts an edge and returns its generated id. Both endpoints
// must already exist; the foreign keys reject dangling references.
func (s *Store) InsertEdge(e *Edge) (int64, error) {
	res, err := s.q.Exec(`
		INSERT INTO edges (type, from_id, to_id, properties, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.Type, e.From, e.To, marshalProps(e.Properties), formatTime(Now()))
	if err != nil {
		return 0, fmt.Errorf("insert edge %d-[%s]->%d: %w", e.From, e.Type, e.To, err)
	}
	return res.LastInsertId()
}

// GetEdge fetches an edge by id. Returns (nil, nil) when it does not exist.
func (s *Store) GetEdge(id int64) (*Edge, error) {
	row := s.q.QueryRow(`SELECT `+edgeCols+` FROM edges WHERE id=?`, id)
	return scanEdge(row)
}

// DeleteEdge removes an edge by id.
func (s *Store) DeleteEdge(id int64) error {
	_, err := s.q.Exec(`DELETE FROM edges WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	return nil
}

// FindEdgesFrom finds edges leaving a node, optionally restricted to a type.
func (s *Store) FindEdgesFrom(fromID int64, edgeType string) ([]*Edge, error) {
	var rows *sql.Rows
	var err error
	if edgeType != "" {
		rows, err = s.q.Query(`SELECT `+edgeCols+` FROM edges WHERE from_id=? AND type=? ORDER BY id`, fromID, edgeType)
	} else {
		rows, err = s.q.Query(`SELECT `+edgeCols+` FROM edges WHERE from_id=? ORDER BY id`, fromID)
	}
	if err != nil {
		return nil, fmt.Errorf("find edges from %d: %w", fromID, err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// FindEdgesTo finds edges arriving at a node, optionally restricted to a type.
func (s *Store) FindEdgesTo(toID int64, edgeType string) ([]*Edge, error) {
	var rows *sql.Rows
	var err error
	if edgeType != "" {
		rows, err = s.q.Query(`SELECT `+edgeCols+` FROM edges WHERE to_id=? AND type=? ORDER BY id`, toID, edgeType)
	} else {
		rows, err = s.q.Query(`SELECT `+edgeCols+` FROM edges WHERE to_id=? ORDER BY id`, toID)
	}
	if err != nil {
		return nil, fmt.Errorf("find edges to %d: %w", toID, err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// CountEdges returns the number of edges.
func (s *Store) CountEdges() (int, error) {
	var count int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM edges`).Scan(&count)
	return count, err
}

// Degree returns the number of edges touching a node in the given
// direction, optionally restricted to an edge type.
func (s *Store) Degree(nodeID int64, dir Direction, edgeType string) (int, error) {
	var count int
	var err error
	switch dir {
	case DirectionOut:
		err = s.countDegree(`from_id=?`, nodeID, edgeType, &count)
	case DirectionIn:
		err = s.countDegree(`to_id=?`, nodeID, edgeType, &count)
	case DirectionBoth:
		err = s.countDegree(`(from_id=? OR to_id=?)`, nodeID, edgeType, &count)
	default:
		return 0, fmt.Errorf("degree: unknown direction %q", dir)
	}
	return count, err
}

func (s *Store) countDegree(cond string, nodeID int64, edgeType string, out *int) error {
	args := []any{nodeID}
	if strings.Contains(cond, "OR") {
		args = append(args, nodeID)
	}
	q := `SELECT COUNT(*) FROM edges WHERE ` + cond
	if edgeType != "" {
		q += ` AND type=?`
		args = append(args, edgeType)
	}
	return s.q.QueryRow(q, args...).Scan(out)
}

func scanEdge(row scanner) (*Edge, error) {
	var e Edge
	var props, created string
	err := row.Scan(&e.ID, &e.Type, &e.From, &e.To, &props, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.Properties = unmarshalProps(props)
	e.CreatedAt = ParseTime(created)
	return &e, nil
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var result []*Edge
	for rows.Next() {
		var e Edge
		var props, created string
		if err := rows.Scan(&e.ID, &e.Type, &e.From, &e.To, &props, &created); err != nil {
			return nil, err
		}
		e.Properties = unmarshalProps(props)
		e.CreatedAt = ParseTime(created)
		result = append(result, &e)
	}
	return result, rows.Err()
}

// edgesBatchSize keeps each multi-row INSERT under the 999 bind-variable
// limit (5 bound columns per edge row).
const edgesBatchSize = 150

// InsertEdgeBatch inserts multiple edges in batched multi-row INSERTs.
func (s *Store) InsertEdgeBatch(edges []*Edge) error {
	if len(edges) == 0 {
		return nil
	}
	for i := 0; i < len(edges); i += edgesBatchSize {
		end := i + edgesBatchSize
		if end > len(edges) {
			end = len(edges)
		}
		if err := s.insertEdgeChunk(edges[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertEdgeChunk(batch []*Edge) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO edges (type, from_id, to_id, properties, created_at) VALUES `)

	now := formatTime(Now())
	args := make([]any, 0, len(batch)*5)
	for i, e := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, e.Type, e.From, e.To, marshalProps(e.Properties), now)
	}

	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert edge batch: %w", err)
	}
	return nil
}
