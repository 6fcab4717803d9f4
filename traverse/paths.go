package traverse

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grafton-db/grafton/store"
)

// Path is an ordered node sequence from the start node to a target.
type Path struct {
	Nodes []*store.Node
}

// Len returns the number of hops (edges) in the path.
func (p *Path) Len() int {
	if len(p.Nodes) == 0 {
		return 0
	}
	return len(p.Nodes) - 1
}

// IDs returns the node ids along the path.
func (p *Path) IDs() []int64 {
	ids := make([]int64, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// ShortestPath runs a breadth-first search toward targetID and returns a
// shortest path, or nil when the target is unreachable within the step
// and depth bounds. Self-targets yield a single-node path of length zero.
//
// When several shortest paths exist the one discovered first under the
// store's neighbor enumeration order wins; the tie-break is
// implementation-defined, not canonical.
func (t *Traversal) ShortestPath(targetID int64) (*Path, error) {
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

	if t.start == targetID {
		return t.buildPath([]int64{t.start})
	}

	tid := uuid.NewString()
	begin := time.Now()

	pred := map[int64]int64{}
	visited := map[int64]bool{t.start: true}
	queue := []frontierItem{{t.start, 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxHops {
			continue
		}
		step := t.stepAt(item.depth)
		neighbors, err := t.st.Neighbors(item.id, step.EdgeType, step.Direction, step.TargetType)
		if err != nil {
			return nil, fmt.Errorf("shortest path hop %d: %w", item.depth, err)
		}
		for _, nid := range neighbors {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			pred[nid] = item.id

			if nid == targetID {
				ids := []int64{nid}
				for cur := item.id; ; cur = pred[cur] {
					ids = append(ids, cur)
					if cur == t.start {
						break
					}
				}
				reverse(ids)
				slog.Debug("traverse.shortestPath", "tid", tid, "start", t.start, "target", targetID,
					"hops", len(ids)-1, "elapsed", time.Since(begin))
				return t.buildPath(ids)
			}
			queue = append(queue, frontierItem{nid, item.depth + 1})
		}
	}

	slog.Debug("traverse.shortestPath", "tid", tid, "start", t.start, "target", targetID,
		"hops", -1, "elapsed", time.Since(begin))
	return nil, nil
}

// AllPaths enumerates up to maxPaths cycle-free paths from the start node
// to targetID, none longer than maxDepth hops. A depth-first search with
// an explicit path stack is used rather than BFS with a global visited
// set, because a node may legitimately sit on several distinct paths.
// Returns an empty slice when no path exists within bounds.
func (t *Traversal) AllPaths(targetID int64, maxPaths, maxDepth int) ([]Path, error) {
	if t.buildErr != nil {
		return nil, t.buildErr
	}
	if len(t.steps) == 0 {
		return nil, fmt.Errorf("traversal requires at least one step")
	}
	if maxDepth <= 0 {
		return nil, fmt.Errorf("%w: all-paths enumeration requires a positive max depth", ErrDepthExceeded)
	}
	if maxPaths <= 0 {
		maxPaths = t.maxPaths
	}
	if maxPaths <= 0 {
		maxPaths = DefaultMaxPaths
	}
	if err := t.checkStart(); err != nil {
		return nil, err
	}

	tid := uuid.NewString()
	begin := time.Now()

	var idPaths [][]int64
	if t.start == targetID {
		idPaths = append(idPaths, []int64{t.start})
	}

	type frame struct {
		id    int64
		depth int
		neigh []int64
		next  int
	}

	onPath := map[int64]bool{t.start: true}
	pathIDs := []int64{t.start}
	stack := []frame{{id: t.start}}

	pop := func() {
		top := stack[len(stack)-1]
		delete(onPath, top.id)
		pathIDs = pathIDs[:len(pathIDs)-1]
		stack = stack[:len(stack)-1]
	}

	for len(stack) > 0 && len(idPaths) < maxPaths {
		f := &stack[len(stack)-1]

		if f.neigh == nil {
			if f.depth >= maxDepth {
				pop()
				continue
			}
			step := t.stepAt(f.depth)
			neigh, err := t.st.Neighbors(f.id, step.EdgeType, step.Direction, step.TargetType)
			if err != nil {
				return nil, fmt.Errorf("all paths hop %d: %w", f.depth, err)
			}
			if neigh == nil {
				neigh = []int64{}
			}
			f.neigh = neigh
			f.next = 0
		}

		if f.next >= len(f.neigh) {
			pop()
			continue
		}
		nid := f.neigh[f.next]
		f.next++

		if onPath[nid] {
			continue // cycle guard: a path never revisits a node
		}
		if nid == targetID {
			ids := make([]int64, len(pathIDs)+1)
			copy(ids, pathIDs)
			ids[len(ids)-1] = nid
			idPaths = append(idPaths, ids)
			continue
		}

		depth := f.depth + 1
		onPath[nid] = true
		pathIDs = append(pathIDs, nid)
		stack = append(stack, frame{id: nid, depth: depth})
	}

	paths := make([]Path, 0, len(idPaths))
	for _, ids := range idPaths {
		p, err := t.buildPath(ids)
		if err != nil {
			return nil, err
		}
		paths = append(paths, *p)
	}

	slog.Debug("traverse.allPaths", "tid", tid, "start", t.start, "target", targetID,
		"paths", len(paths), "elapsed", time.Since(begin))
	return paths, nil
}

func (t *Traversal) buildPath(ids []int64) (*Path, error) {
	nodes, err := t.materialize(ids)
	if err != nil {
		return nil, err
	}
	return &Path{Nodes: nodes}, nil
}

func reverse(ids []int64) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
