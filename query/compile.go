package query

import (
	"fmt"
	"sort"
	"strings"
)

// sqlEmitter accumulates SQL text and bound parameters during one
// compilation walk. When the text for this pattern shape is already
// cached, the walk runs with text=false and only collects parameters, so
// the cached and uncached paths cannot drift apart.
type sqlEmitter struct {
	text bool
	sb   strings.Builder
	args []any
}

func (w *sqlEmitter) write(s string) {
	if w.text {
		w.sb.WriteString(s)
	}
}

func (w *sqlEmitter) arg(a ...any) {
	w.args = append(w.args, a...)
}

// selVar is one projected variable with its source CTE alias.
type selVar struct {
	name   string
	alias  string
	isEdge bool
}

type compiled struct {
	sql   string
	args  []any
	sel   []selVar
	edges int
}

const nodeCTECols = "n.id, n.type, n.properties, n.created_at, n.updated_at"
const edgeCTECols = "e.id, e.type, e.from_id, e.to_id, e.properties, e.created_at"

func cteAlias(stepIdx int) string {
	return fmt.Sprintf("c%d", stepIdx)
}

// nodeColExpr resolves a filter/order key against a node CTE or table
// alias. Known columns are addressed directly, everything else through
// the JSON property map.
func nodeColExpr(alias, key string) string {
	switch key {
	case "id", "type", "created_at", "updated_at":
		return alias + "." + key
	default:
		return "json_extract(" + alias + ".properties, '$." + key + "')"
	}
}

func edgeColExpr(alias, key string) string {
	switch key {
	case "id", "type", "created_at":
		return alias + "." + key
	case "from":
		return alias + ".from_id"
	case "to":
		return alias + ".to_id"
	default:
		return "json_extract(" + alias + ".properties, '$." + key + "')"
	}
}

// sortedFilterKeys fixes the emission order of a variable's filters so
// compilation is deterministic.
func sortedFilterKeys(fs Filters) []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Pattern) compile(count bool) (*compiled, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	sel, err := p.selectedVars()
	if err != nil {
		return nil, err
	}

	edges := 0
	for _, s := range p.steps {
		if _, ok := s.(*edgeStep); ok {
			edges++
		}
	}

	var cachedSQL string
	var key uint64
	if p.cache != nil {
		key = p.shapeKey(count)
		cachedSQL, _ = p.cache.get(key)
	}

	w := &sqlEmitter{text: cachedSQL == ""}
	if edges == 0 {
		err = p.emitSingleNode(w, sel, count)
	} else {
		err = p.emitChain(w, sel, count)
	}
	if err != nil {
		return nil, err
	}

	sqlText := cachedSQL
	if sqlText == "" {
		sqlText = w.sb.String()
		if p.cache != nil {
			p.cache.put(key, sqlText)
		}
	}

	return &compiled{sql: sqlText, args: w.args, sel: sel, edges: edges}, nil
}

// emitSingleNode handles the zero-edge specialization: a direct filtered
// scan of the node table, no CTE chain.
func (p *Pattern) emitSingleNode(w *sqlEmitter, sel []selVar, count bool) error {
	step := p.steps[0].(*nodeStep)

	if count {
		w.write("SELECT COUNT(*) FROM nodes AS n")
	} else {
		w.write("SELECT ")
		w.write(projection(sel))
		w.write(" FROM nodes AS n")
	}

	wrote := false
	writeCond := func() {
		if wrote {
			w.write(" AND ")
		} else {
			w.write(" WHERE ")
			wrote = true
		}
	}
	if step.nodeType != "" {
		writeCond()
		w.write("n.type = ?")
		w.arg(step.nodeType)
	}
	for _, key := range sortedFilterKeys(p.filters[step.variable]) {
		writeCond()
		if err := p.filters[step.variable][key].emit(w, nodeColExpr("n", key)); err != nil {
			return err
		}
	}

	if !count {
		p.emitOrder(w)
		p.emitLimit(w)
	}
	return nil
}

// emitChain compiles the general case: one CTE per step, filters pushed
// into the earliest CTE that can apply them, then a final SELECT that
// re-joins the chain and projects the selected variables.
func (p *Pattern) emitChain(w *sqlEmitter, sel []selVar, count bool) error {
	w.write("WITH ")
	for i, s := range p.steps {
		if i > 0 {
			w.write(", ")
		}
		w.write(cteAlias(i) + " AS (")
		switch st := s.(type) {
		case *nodeStep:
			if err := p.emitNodeCTE(w, i, st); err != nil {
				return err
			}
		case *edgeStep:
			if err := p.emitEdgeCTE(w, i, st); err != nil {
				return err
			}
		}
		w.write(")")
	}

	if count {
		w.write(" SELECT COUNT(*)")
	} else {
		w.write(" SELECT ")
		w.write(projection(sel))
	}
	w.write(" FROM " + cteAlias(0))

	for i, s := range p.steps {
		st, ok := s.(*edgeStep)
		if !ok {
			continue
		}
		prev, edge, next := cteAlias(i-1), cteAlias(i), cteAlias(i+1)
		switch st.dir {
		case "out":
			w.write(" JOIN " + edge + " ON " + edge + ".from_id = " + prev + ".id")
			w.write(" JOIN " + next + " ON " + next + ".id = " + edge + ".to_id")
		case "in":
			w.write(" JOIN " + edge + " ON " + edge + ".to_id = " + prev + ".id")
			w.write(" JOIN " + next + " ON " + next + ".id = " + edge + ".from_id")
		case "both":
			// Reflexive matches (a node as its own neighbor through one
			// edge) are excluded here.
			w.write(" JOIN " + edge + " ON (" + edge + ".from_id = " + prev + ".id OR " + edge + ".to_id = " + prev + ".id)")
			w.write(" JOIN " + next + " ON (((" + edge + ".from_id = " + prev + ".id AND " + next + ".id = " + edge + ".to_id)" +
				" OR (" + edge + ".to_id = " + prev + ".id AND " + next + ".id = " + edge + ".from_id))" +
				" AND " + next + ".id <> " + prev + ".id)")
		}
	}

	if last, ok := p.steps[len(p.steps)-1].(*nodeStep); ok && last.cyclic {
		w.write(" WHERE " + cteAlias(len(p.steps)-1) + ".id = " + cteAlias(0) + ".id")
	}

	if !count {
		p.emitOrder(w)
		p.emitLimit(w)
	}
	return nil
}

func (p *Pattern) emitNodeCTE(w *sqlEmitter, idx int, st *nodeStep) error {
	if idx == 0 {
		w.write("SELECT " + nodeCTECols + " FROM nodes AS n")
	} else {
		// DISTINCT: a node reachable through several edge rows must
		// appear once here or the final join would multiply rows.
		prevEdge := p.steps[idx-1].(*edgeStep)
		w.write("SELECT DISTINCT " + nodeCTECols + " FROM nodes AS n JOIN " + cteAlias(idx-1) + " ON ")
		switch prevEdge.dir {
		case "out":
			w.write("n.id = " + cteAlias(idx-1) + ".to_id")
		case "in":
			w.write("n.id = " + cteAlias(idx-1) + ".from_id")
		case "both":
			w.write("(n.id = " + cteAlias(idx-1) + ".to_id OR n.id = " + cteAlias(idx-1) + ".from_id)")
		}
	}

	wrote := false
	writeCond := func() {
		if wrote {
			w.write(" AND ")
		} else {
			w.write(" WHERE ")
			wrote = true
		}
	}
	if st.nodeType != "" {
		writeCond()
		w.write("n.type = ?")
		w.arg(st.nodeType)
	}
	for _, key := range sortedFilterKeys(p.filters[st.variable]) {
		writeCond()
		if err := p.filters[st.variable][key].emit(w, nodeColExpr("n", key)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pattern) emitEdgeCTE(w *sqlEmitter, idx int, st *edgeStep) error {
	prev := cteAlias(idx - 1)
	w.write("SELECT " + edgeCTECols + " FROM edges AS e JOIN " + prev + " ON ")
	switch st.dir {
	case "out":
		w.write("e.from_id = " + prev + ".id")
	case "in":
		w.write("e.to_id = " + prev + ".id")
	case "both":
		w.write("(e.from_id = " + prev + ".id OR e.to_id = " + prev + ".id)")
	}

	w.write(" WHERE e.type = ?")
	w.arg(st.edgeType)
	if st.variable != "" {
		for _, key := range sortedFilterKeys(p.filters[st.variable]) {
			w.write(" AND ")
			if err := p.filters[st.variable][key].emit(w, edgeColExpr("e", key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pattern) emitOrder(w *sqlEmitter) {
	if len(p.order) == 0 {
		return
	}
	aliases := p.aliasMap()
	w.write(" ORDER BY ")
	for i, o := range p.order {
		if i > 0 {
			w.write(", ")
		}
		ref := aliases[o.variable]
		if ref.isEdge {
			w.write(edgeColExpr(ref.alias, o.property))
		} else {
			w.write(nodeColExpr(ref.alias, o.property))
		}
		if o.desc {
			w.write(" DESC")
		}
	}
}

// emitLimit appends LIMIT/OFFSET. SQLite requires a LIMIT clause before
// OFFSET, so a bare offset gets the unbounded sentinel LIMIT -1.
func (p *Pattern) emitLimit(w *sqlEmitter) {
	switch {
	case p.limit >= 0 && p.offset >= 0:
		w.write(" LIMIT ? OFFSET ?")
		w.arg(p.limit, p.offset)
	case p.limit >= 0:
		w.write(" LIMIT ?")
		w.arg(p.limit)
	case p.offset >= 0:
		w.write(" LIMIT -1 OFFSET ?")
		w.arg(p.offset)
	}
}

// aliasMap maps each declared variable to the CTE (or table alias, for
// the single-node case) holding its first occurrence.
func (p *Pattern) aliasMap() map[string]selVar {
	m := map[string]selVar{}
	single := !p.hasEdges()
	for i, s := range p.steps {
		switch st := s.(type) {
		case *nodeStep:
			if _, ok := m[st.variable]; ok {
				continue
			}
			alias := cteAlias(i)
			if single {
				alias = "n"
			}
			m[st.variable] = selVar{name: st.variable, alias: alias}
		case *edgeStep:
			if st.variable == "" {
				continue
			}
			m[st.variable] = selVar{name: st.variable, alias: cteAlias(i), isEdge: true}
		}
	}
	return m
}

// selectedVars resolves the projection list: either the caller's Select
// in its given order or, by default, every node variable plus every named
// edge variable in declaration order.
func (p *Pattern) selectedVars() ([]selVar, error) {
	aliases := p.aliasMap()

	if len(p.selected) > 0 {
		out := make([]selVar, 0, len(p.selected))
		seen := map[string]bool{}
		for _, v := range p.selected {
			if seen[v] {
				return nil, patternErr(ErrInvalidPattern, v, -1, "variable selected twice")
			}
			seen[v] = true
			out = append(out, aliases[v])
		}
		return out, nil
	}

	var out []selVar
	seen := map[string]bool{}
	for _, s := range p.steps {
		var v string
		switch st := s.(type) {
		case *nodeStep:
			v = st.variable
		case *edgeStep:
			v = st.variable
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, aliases[v])
	}
	return out, nil
}

func projection(sel []selVar) string {
	var parts []string
	for _, v := range sel {
		if v.isEdge {
			parts = append(parts,
				v.alias+".id AS "+v.name+"_id",
				v.alias+".type AS "+v.name+"_type",
				v.alias+".from_id AS "+v.name+"_from",
				v.alias+".to_id AS "+v.name+"_to",
				v.alias+".properties AS "+v.name+"_properties",
				v.alias+".created_at AS "+v.name+"_created_at")
		} else {
			parts = append(parts,
				v.alias+".id AS "+v.name+"_id",
				v.alias+".type AS "+v.name+"_type",
				v.alias+".properties AS "+v.name+"_properties",
				v.alias+".created_at AS "+v.name+"_created_at",
				v.alias+".updated_at AS "+v.name+"_updated_at")
		}
	}
	return strings.Join(parts, ", ")
}
