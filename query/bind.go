package query

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/grafton-db/grafton/store"
)

// Binding maps the selected pattern variables of one result row to their
// matched entities.
type Binding struct {
	Nodes map[string]*store.Node
	Edges map[string]*store.Edge
}

// Node returns the node bound to a variable, or nil.
func (b *Binding) Node(variable string) *store.Node {
	return b.Nodes[variable]
}

// Edge returns the edge bound to a variable, or nil.
func (b *Binding) Edge(variable string) *store.Edge {
	return b.Edges[variable]
}

// Result is the outcome of executing a pattern.
type Result struct {
	Bindings []Binding
	// PathLength is the number of edge steps in the pattern.
	PathLength int
	// ExecutionTime covers SQL execution and row binding.
	ExecutionTime time.Duration
}

// bindRows maps flat result rows (columns prefixed per variable) back
// into per-variable bindings. Property deserialization is strict here:
// corrupt JSON surfaces as an error rather than an empty map.
func bindRows(rows *sql.Rows, sel []selVar) ([]Binding, error) {
	// One scan slot per projected column, laid out in selection order.
	type nodeSlots struct {
		id                         int64
		typ, props, created, updated string
	}
	type edgeSlots struct {
		id, from, to         int64
		typ, props, created string
	}

	var bindings []Binding
	for rows.Next() {
		// Capacity covers all appends, so pointers handed to Scan stay
		// valid.
		nodeVals := make([]nodeSlots, 0, len(sel))
		edgeVals := make([]edgeSlots, 0, len(sel))
		dest := make([]any, 0, len(sel)*6)
		// Index pairs into nodeVals/edgeVals per sel entry.
		kind := make([]int, len(sel))

		for i, v := range sel {
			if v.isEdge {
				edgeVals = append(edgeVals, edgeSlots{})
				e := &edgeVals[len(edgeVals)-1]
				kind[i] = -len(edgeVals)
				dest = append(dest, &e.id, &e.typ, &e.from, &e.to, &e.props, &e.created)
			} else {
				nodeVals = append(nodeVals, nodeSlots{})
				n := &nodeVals[len(nodeVals)-1]
				kind[i] = len(nodeVals)
				dest = append(dest, &n.id, &n.typ, &n.props, &n.created, &n.updated)
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan pattern row: %w", err)
		}

		b := Binding{
			Nodes: make(map[string]*store.Node),
			Edges: make(map[string]*store.Edge),
		}
		for i, v := range sel {
			if v.isEdge {
				e := edgeVals[-kind[i]-1]
				props, err := store.UnmarshalPropsStrict(e.props)
				if err != nil {
					return nil, fmt.Errorf("bind edge %q: %w", v.name, err)
				}
				b.Edges[v.name] = &store.Edge{
					ID:         e.id,
					Type:       e.typ,
					From:       e.from,
					To:         e.to,
					Properties: props,
					CreatedAt:  store.ParseTime(e.created),
				}
			} else {
				n := nodeVals[kind[i]-1]
				props, err := store.UnmarshalPropsStrict(n.props)
				if err != nil {
					return nil, fmt.Errorf("bind node %q: %w", v.name, err)
				}
				b.Nodes[v.name] = &store.Node{
					ID:         n.id,
					Type:       n.typ,
					Properties: props,
					CreatedAt:  store.ParseTime(n.created),
					UpdatedAt:  store.ParseTime(n.updated),
				}
			}
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}
