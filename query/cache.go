package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

// PlanCache memoizes compiled SQL text keyed by the structural shape of a
// pattern. Parameter values are never cached; two patterns that differ
// only in filter values share one entry. The cache is safe for concurrent
// use and purely an optimization; compilation without it is correct.
type PlanCache struct {
	mu    sync.RWMutex
	plans map[uint64]string
}

// NewPlanCache returns an empty cache.
func NewPlanCache() *PlanCache {
	return &PlanCache{plans: map[uint64]string{}}
}

func (c *PlanCache) get(key uint64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sql, ok := c.plans[key]
	return sql, ok
}

func (c *PlanCache) put(key uint64, sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[key] = sql
}

// Len returns the number of cached plans.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}

// shapeKey hashes everything that influences the generated SQL text
// (step kinds, variables, directions, which filters exist and their
// operators, the projection, ordering, and limit/offset presence) but
// none of the parameter values.
func (p *Pattern) shapeKey(count bool) uint64 {
	var sb strings.Builder
	for _, s := range p.steps {
		switch st := s.(type) {
		case *nodeStep:
			fmt.Fprintf(&sb, "n:%s:%t:%t:%t:%t;", st.variable, st.nodeType != "", st.isStart, st.isEnd, st.cyclic)
			for _, key := range sortedFilterKeys(p.filters[st.variable]) {
				fmt.Fprintf(&sb, "f:%s:%s;", key, p.filters[st.variable][key].shape())
			}
		case *edgeStep:
			fmt.Fprintf(&sb, "e:%s:%s;", st.variable, st.dir)
			if st.variable != "" {
				for _, key := range sortedFilterKeys(p.filters[st.variable]) {
					fmt.Fprintf(&sb, "f:%s:%s;", key, p.filters[st.variable][key].shape())
				}
			}
		}
	}
	fmt.Fprintf(&sb, "s:%s;", strings.Join(p.selected, ","))
	for _, o := range p.order {
		fmt.Fprintf(&sb, "o:%s.%s:%t;", o.variable, o.property, o.desc)
	}
	fmt.Fprintf(&sb, "l:%t:%t:%t", p.limit >= 0, p.offset >= 0, count)
	return xxh3.HashString(sb.String())
}
