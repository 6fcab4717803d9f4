// Package traverse implements imperative directional traversal over the
// graph: breadth-first reachability, shortest path, and bounded all-paths
// enumeration. Each hop is a single neighbor query against the store; no
// in-memory adjacency is kept between calls.
package traverse

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grafton-db/grafton/store"
)

var (
	// ErrStartNodeNotFound is returned when the traversal's start id does
	// not reference an existing node.
	ErrStartNodeNotFound = errors.New("start node not found")
	// ErrDepthExceeded is returned when a traversal is unbounded: a
	// repeating step list with no max depth, or all-paths without a depth
	// cap. Unbounded walks are rejected rather than run to graph
	// exhaustion.
	ErrDepthExceeded = errors.New("traversal depth exceeded")
)

// DefaultMaxResults caps BFS emission when the caller sets no cap.
const DefaultMaxResults = 200

// DefaultMaxPaths caps all-paths enumeration when the caller passes no cap.
const DefaultMaxPaths = 100

// Step is one hop specification: follow edges of EdgeType in Direction,
// optionally restricted to neighbors of TargetType.
type Step struct {
	EdgeType   string
	Direction  store.Direction
	TargetType string
}

// Traversal is an imperative traversal specification under construction.
// It is a pure value until a terminal method (ToArray, ShortestPath,
// AllPaths) runs. Builder misuse is recorded and surfaced by the
// terminal.
type Traversal struct {
	st    *store.Store
	start int64

	steps      []Step
	minDepth   int
	maxDepth   int // -1 = unset; 0 is a real (empty) depth window
	maxResults int // 0 = DefaultMaxResults
	maxPaths   int // 0 = DefaultMaxPaths
	unique     bool
	repeat     bool
	filter     func(*store.Node) bool

	buildErr error
}

// New starts a traversal from the given node id.
func New(st *store.Store, startID int64) *Traversal {
	return &Traversal{st: st, start: startID, minDepth: 1, maxDepth: -1, unique: true}
}

// Out appends a hop following outgoing edges of the given type.
func (t *Traversal) Out(edgeType string) *Traversal {
	t.steps = append(t.steps, Step{EdgeType: edgeType, Direction: store.DirectionOut})
	return t
}

// In appends a hop following incoming edges of the given type.
func (t *Traversal) In(edgeType string) *Traversal {
	t.steps = append(t.steps, Step{EdgeType: edgeType, Direction: store.DirectionIn})
	return t
}

// Both appends a hop following edges of the given type in either
// direction. A node reached by both an outgoing and an incoming edge in
// the same hop is expanded once.
func (t *Traversal) Both(edgeType string) *Traversal {
	t.steps = append(t.steps, Step{EdgeType: edgeType, Direction: store.DirectionBoth})
	return t
}

// ToType restricts the immediately preceding hop to neighbors of the
// given node type.
func (t *Traversal) ToType(nodeType string) *Traversal {
	if len(t.steps) == 0 {
		if t.buildErr == nil {
			t.buildErr = fmt.Errorf("ToType requires a preceding Out/In/Both step")
		}
		return t
	}
	t.steps[len(t.steps)-1].TargetType = nodeType
	return t
}

// MinDepth sets the minimum depth for emitted nodes. The default of 1
// excludes the start node; 0 includes it.
func (t *Traversal) MinDepth(n int) *Traversal {
	t.minDepth = n
	return t
}

// MaxDepth caps the traversal depth. Zero is an empty depth window:
// nothing past the start node is reachable.
func (t *Traversal) MaxDepth(n int) *Traversal {
	t.maxDepth = n
	return t
}

// MaxResults caps the number of emitted nodes (default DefaultMaxResults).
func (t *Traversal) MaxResults(n int) *Traversal {
	t.maxResults = n
	return t
}

// MaxPaths sets the fallback path cap used when AllPaths is called with a
// non-positive maxPaths (default DefaultMaxPaths).
func (t *Traversal) MaxPaths(n int) *Traversal {
	t.maxPaths = n
	return t
}

// Unique toggles re-expansion suppression (default true). With false the
// same node may be visited and emitted once per distinct arrival.
func (t *Traversal) Unique(u bool) *Traversal {
	t.unique = u
	return t
}

// Repeat marks the step list as repeating: after the declared steps are
// exhausted the last step is reapplied up to MaxDepth. Repeat without a
// MaxDepth is rejected at execution with ErrDepthExceeded.
func (t *Traversal) Repeat() *Traversal {
	t.repeat = true
	return t
}

// Filter sets a predicate gating emission: only matching nodes are
// returned or counted toward MaxResults. It does not stop expansion
// through non-matching nodes.
func (t *Traversal) Filter(fn func(*store.Node) bool) *Traversal {
	t.filter = fn
	return t
}

// depthCap resolves the effective traversal depth: the step list length,
// shortened by MaxDepth, or MaxDepth alone when the list repeats.
func (t *Traversal) depthCap() (int, error) {
	if len(t.steps) == 0 {
		return 0, fmt.Errorf("traversal requires at least one step")
	}
	if t.repeat {
		if t.maxDepth < 0 {
			return 0, fmt.Errorf("%w: repeating traversal requires MaxDepth", ErrDepthExceeded)
		}
		return t.maxDepth, nil
	}
	depth := len(t.steps)
	if t.maxDepth >= 0 && t.maxDepth < depth {
		depth = t.maxDepth
	}
	return depth, nil
}

// stepAt returns the step for the hop leaving the given depth; past the
// end of the list the last step applies (reachable only under Repeat or
// an explicit all-paths depth).
func (t *Traversal) stepAt(depth int) Step {
	if depth >= len(t.steps) {
		return t.steps[len(t.steps)-1]
	}
	return t.steps[depth]
}

func (t *Traversal) checkStart() error {
	exists, err := t.st.NodeExists(t.start)
	if err != nil {
		return fmt.Errorf("check start node: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: node %d", ErrStartNodeNotFound, t.start)
	}
	return nil
}

type frontierItem struct {
	id    int64
	depth int
}

// ToArray performs a breadth-first traversal and returns the reached
// nodes in discovery order. Nodes are emitted only when their depth falls
// within [MinDepth, MaxDepth] and they pass the Filter predicate.
func (t *Traversal) ToArray() ([]*store.Node, error) {
	if t.buildErr != nil {
		return nil, t.buildErr
	}
	maxHops, err := t.depthCap()
	if err != nil {
		return nil, err
	}
	if err := t.checkStart(); err != nil {
		return nil, err
	}

	maxResults := t.maxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	tid := uuid.NewString()
	begin := time.Now()

	emitted := []*store.Node{}
	if t.minDepth <= 0 {
		nodes, err := t.materialize([]int64{t.start})
		if err != nil {
			return nil, err
		}
		if t.filter == nil || t.filter(nodes[0]) {
			emitted = append(emitted, nodes[0])
		}
	}

	visited := map[int64]bool{t.start: true}
	queue := []frontierItem{{t.start, 0}}

	for len(queue) > 0 && len(emitted) < maxResults {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxHops {
			continue
		}
		step := t.stepAt(item.depth)
		neighbors, err := t.st.Neighbors(item.id, step.EdgeType, step.Direction, step.TargetType)
		if err != nil {
			return nil, fmt.Errorf("traverse hop %d: %w", item.depth, err)
		}

		var fresh []int64
		for _, nid := range neighbors {
			if t.unique {
				if visited[nid] {
					continue
				}
				visited[nid] = true
			}
			fresh = append(fresh, nid)
		}
		if len(fresh) == 0 {
			continue
		}

		depth := item.depth + 1
		for _, nid := range fresh {
			queue = append(queue, frontierItem{nid, depth})
		}
		if depth < t.minDepth {
			continue
		}

		// Filtered-out nodes never count toward maxResults, but they stay
		// on the frontier: the walk expands through them.
		nodes, err := t.materialize(fresh)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if t.filter != nil && !t.filter(n) {
				continue
			}
			emitted = append(emitted, n)
			if len(emitted) >= maxResults {
				break
			}
		}
	}

	slog.Debug("traverse.toArray", "tid", tid, "start", t.start, "emitted", len(emitted), "elapsed", time.Since(begin))
	return emitted, nil
}

// materialize fetches nodes for the given ids, preserving order.
func (t *Traversal) materialize(ids []int64) ([]*store.Node, error) {
	if len(ids) == 0 {
		return []*store.Node{}, nil
	}
	byID, err := t.st.FindNodesByIDs(ids)
	if err != nil {
		return nil, err
	}
	nodes := make([]*store.Node, 0, len(ids))
	for _, id := range ids {
		n, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("traverse: node %d disappeared during traversal", id)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
