package store

import "fmt"

// Neighbors returns the ids of nodes one hop away from nodeID over edges
// of the given type, as a single query. targetType, when non-empty,
// restricts results to neighbors with that node type.
//
// Enumeration order: ascending edge id for out/in, ascending neighbor id
// for both (the UNION both deduplicates within the hop and discards edge
// order). Callers that care about tie-breaking should treat the order as
// implementation-defined.
func (s *Store) Neighbors(nodeID int64, edgeType string, dir Direction, targetType string) ([]int64, error) {
	var query string
	var args []any

	switch dir {
	case DirectionOut:
		if targetType != "" {
			query = `SELECT e.to_id FROM edges e JOIN nodes n ON n.id = e.to_id AND n.type = ?
				WHERE e.from_id = ? AND e.type = ? ORDER BY e.id`
			args = []any{targetType, nodeID, edgeType}
		} else {
			query = `SELECT to_id FROM edges WHERE from_id = ? AND type = ? ORDER BY id`
			args = []any{nodeID, edgeType}
		}
	case DirectionIn:
		if targetType != "" {
			query = `SELECT e.from_id FROM edges e JOIN nodes n ON n.id = e.from_id AND n.type = ?
				WHERE e.to_id = ? AND e.type = ? ORDER BY e.id`
			args = []any{targetType, nodeID, edgeType}
		} else {
			query = `SELECT from_id FROM edges WHERE to_id = ? AND type = ? ORDER BY id`
			args = []any{nodeID, edgeType}
		}
	case DirectionBoth:
		// UNION (not UNION ALL) so a node reached by both an outgoing and
		// an incoming edge appears once per hop.
		if targetType != "" {
			query = `SELECT e.to_id AS nid FROM edges e JOIN nodes n ON n.id = e.to_id AND n.type = ?
				WHERE e.from_id = ? AND e.type = ?
				UNION
				SELECT e.from_id AS nid FROM edges e JOIN nodes n ON n.id = e.from_id AND n.type = ?
				WHERE e.to_id = ? AND e.type = ?
				ORDER BY nid`
			args = []any{targetType, nodeID, edgeType, targetType, nodeID, edgeType}
		} else {
			query = `SELECT to_id AS nid FROM edges WHERE from_id = ? AND type = ?
				UNION
				SELECT from_id AS nid FROM edges WHERE to_id = ? AND type = ?
				ORDER BY nid`
			args = []any{nodeID, edgeType, nodeID, edgeType}
		}
	default:
		return nil, fmt.Errorf("neighbors: unknown direction %q", dir)
	}

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %d via %s/%s: %w", nodeID, edgeType, dir, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
