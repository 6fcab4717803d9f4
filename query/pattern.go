// Package query implements the declarative pattern side of the graph: a
// fluent builder describing a chain of node and edge steps, a compiler
// that turns the chain into one parameterized SQLite statement built from
// chained CTEs, and a binder that maps result rows back into per-variable
// node and edge bindings.
package query

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grafton-db/grafton/store"
)

// patternStep is either a nodeStep or an edgeStep.
type patternStep interface {
	patternStep()
}

// nodeStep matches one graph node, binding it to a variable.
type nodeStep struct {
	variable string
	nodeType string // optional
	isStart  bool
	isEnd    bool
	cyclic   bool // end step re-using the start variable
}

func (*nodeStep) patternStep() {}

// edgeStep matches one directed edge between its surrounding node steps.
type edgeStep struct {
	variable string // optional, set via As
	edgeType string
	dir      store.Direction
}

func (*edgeStep) patternStep() {}

type orderTerm struct {
	variable string
	property string
	desc     bool
}

// Pattern is a declarative multi-hop graph query under construction. It
// is a pure value: nothing touches the database until Exec, First or
// Count runs. Builder methods record the first misuse and surface it from
// the terminal, so call sites can chain without per-step error checks.
type Pattern struct {
	st    *store.Store
	cache *PlanCache

	steps    []patternStep
	filters  map[string]Filters
	selected []string
	order    []orderTerm
	limit    int // -1 = unset
	offset   int // -1 = unset

	buildErr error
}

// New starts an empty pattern against the given store.
func New(st *store.Store) *Pattern {
	return &Pattern{
		st:      st,
		filters: map[string]Filters{},
		limit:   -1,
		offset:  -1,
	}
}

// WithCache attaches a compiled-SQL cache shared across patterns.
func (p *Pattern) WithCache(c *PlanCache) *Pattern {
	p.cache = c
	return p
}

func (p *Pattern) fail(err error) *Pattern {
	if p.buildErr == nil {
		p.buildErr = err
	}
	return p
}

func optType(nodeType []string) (string, bool) {
	switch len(nodeType) {
	case 0:
		return "", true
	case 1:
		return nodeType[0], true
	default:
		return "", false
	}
}

// Start declares the first node step of the pattern.
func (p *Pattern) Start(variable string, nodeType ...string) *Pattern {
	t, ok := optType(nodeType)
	if !ok {
		return p.fail(patternErr(ErrInvalidPattern, variable, 0, "Start takes at most one node type"))
	}
	if len(p.steps) != 0 {
		return p.fail(patternErr(ErrInvalidPattern, variable, len(p.steps), "Start must be the first step"))
	}
	p.steps = append(p.steps, &nodeStep{variable: variable, nodeType: t, isStart: true})
	return p
}

// Node declares an intermediate node step.
func (p *Pattern) Node(variable string, nodeType ...string) *Pattern {
	t, ok := optType(nodeType)
	if !ok {
		return p.fail(patternErr(ErrInvalidPattern, variable, len(p.steps), "Node takes at most one node type"))
	}
	p.steps = append(p.steps, &nodeStep{variable: variable, nodeType: t})
	return p
}

// End declares the final node step. Reusing the start variable closes the
// pattern into a cycle: the compiled query additionally requires the
// first and last bound node ids to be equal. With zero edge steps, End
// with the start variable degenerates to a plain filtered node scan.
func (p *Pattern) End(variable string, nodeType ...string) *Pattern {
	t, ok := optType(nodeType)
	if !ok {
		return p.fail(patternErr(ErrInvalidPattern, variable, len(p.steps), "End takes at most one node type"))
	}
	if len(p.steps) == 0 {
		return p.fail(patternErr(ErrInvalidPattern, variable, 0, "End requires a preceding Start"))
	}
	start, _ := p.steps[0].(*nodeStep)

	if !p.hasEdges() {
		if start == nil || variable != start.variable {
			return p.fail(patternErr(ErrInvalidPattern, variable, len(p.steps),
				"a pattern without edge steps must end on its start variable"))
		}
		// An untyped side is compatible with anything.
		if t != "" && start.nodeType != "" && t != start.nodeType {
			return p.fail(patternErr(ErrCyclicTypeMismatch, variable, len(p.steps),
				"end type %q vs start type %q", t, start.nodeType))
		}
		start.isEnd = true
		return p
	}

	cyclic := start != nil && variable == start.variable
	p.steps = append(p.steps, &nodeStep{variable: variable, nodeType: t, isEnd: true, cyclic: cyclic})
	return p
}

// Through declares an edge step between the surrounding node steps.
func (p *Pattern) Through(edgeType string, dir store.Direction) *Pattern {
	p.steps = append(p.steps, &edgeStep{edgeType: edgeType, dir: dir})
	return p
}

// As binds the immediately preceding Through to a variable so the edge
// can be selected or filtered.
func (p *Pattern) As(variable string) *Pattern {
	if len(p.steps) == 0 {
		return p.fail(patternErr(ErrInvalidPattern, variable, 0, "As requires a preceding Through"))
	}
	last, ok := p.steps[len(p.steps)-1].(*edgeStep)
	if !ok {
		return p.fail(patternErr(ErrInvalidPattern, variable, len(p.steps)-1, "As requires a preceding Through"))
	}
	last.variable = variable
	return p
}

// Where adds property filters for a declared variable. Multiple calls for
// the same variable merge; a repeated key overwrites the earlier filter.
func (p *Pattern) Where(variable string, f Filters) *Pattern {
	existing, ok := p.filters[variable]
	if !ok {
		existing = Filters{}
		p.filters[variable] = existing
	}
	for k, v := range f {
		existing[k] = v
	}
	return p
}

// Select restricts the projected variables. Default is every node
// variable plus every named edge variable, in declaration order.
func (p *Pattern) Select(variables ...string) *Pattern {
	p.selected = append(p.selected, variables...)
	return p
}

// OrderBy sorts results ascending by a variable's property. The keys
// "id", "type", "created_at" and "updated_at" address the real columns;
// anything else addresses the JSON property map.
func (p *Pattern) OrderBy(variable, property string) *Pattern {
	p.order = append(p.order, orderTerm{variable: variable, property: property})
	return p
}

// OrderByDesc sorts results descending by a variable's property.
func (p *Pattern) OrderByDesc(variable, property string) *Pattern {
	p.order = append(p.order, orderTerm{variable: variable, property: property, desc: true})
	return p
}

// Limit caps the number of result rows.
func (p *Pattern) Limit(n int) *Pattern {
	p.limit = n
	return p
}

// Offset skips the first n result rows.
func (p *Pattern) Offset(n int) *Pattern {
	p.offset = n
	return p
}

func (p *Pattern) hasEdges() bool {
	for _, s := range p.steps {
		if _, ok := s.(*edgeStep); ok {
			return true
		}
	}
	return false
}

// Compile validates the pattern and returns the SQL text and ordered
// parameter list that Exec would run. Compiling the same pattern twice
// yields identical text and parameter order.
func (p *Pattern) Compile() (string, []any, error) {
	c, err := p.compile(false)
	if err != nil {
		return "", nil, err
	}
	return c.sql, c.args, nil
}

// Exec compiles and runs the pattern, returning one binding per matched
// row.
func (p *Pattern) Exec() (*Result, error) {
	c, err := p.compile(false)
	if err != nil {
		return nil, err
	}

	qid := uuid.NewString()
	start := time.Now()
	rows, err := p.st.Query(c.sql, c.args...)
	if err != nil {
		return nil, fmt.Errorf("execute pattern: %w", err)
	}
	defer rows.Close()

	bindings, err := bindRows(rows, c.sel)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	slog.Debug("query.exec", "qid", qid, "steps", len(p.steps), "rows", len(bindings), "elapsed", elapsed)

	return &Result{
		Bindings:      bindings,
		PathLength:    c.edges,
		ExecutionTime: elapsed,
	}, nil
}

// First runs the pattern with LIMIT 1 and returns the first binding, or
// nil when nothing matches.
func (p *Pattern) First() (*Binding, error) {
	clone := *p
	clone.limit = 1
	clone.offset = p.offset
	res, err := clone.Exec()
	if err != nil {
		return nil, err
	}
	if len(res.Bindings) == 0 {
		return nil, nil
	}
	return &res.Bindings[0], nil
}

// Count compiles the pattern into a COUNT(*) over the same CTE chain and
// returns the number of matching rows without materializing them.
func (p *Pattern) Count() (int64, error) {
	c, err := p.compile(true)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := p.st.QueryRow(c.sql, c.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pattern: %w", err)
	}
	return n, nil
}
