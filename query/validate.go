package query

import "regexp"

// Variable names become SQL column aliases and property keys become JSON
// paths, so both are restricted to identifier characters. Everything else
// (node types, edge types, filter values) travels as bound parameters.
var (
	identRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	propKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
)

// validate enforces the structural rules before any SQL is generated:
// alternating node/edge steps, a terminal node step, unique variables
// (except the cyclic close), declared references in where/select/orderBy,
// matching cyclic types, and well-formed identifiers.
func (p *Pattern) validate() error {
	if p.buildErr != nil {
		return p.buildErr
	}
	if len(p.steps) == 0 {
		return patternErr(ErrInvalidPattern, "", -1, "pattern has no steps")
	}

	first, ok := p.steps[0].(*nodeStep)
	if !ok || !first.isStart {
		return patternErr(ErrInvalidPattern, "", 0, "pattern must begin with Start")
	}

	declared := map[string]patternStep{}
	var lastNode *nodeStep
	edges := 0

	for i, s := range p.steps {
		switch st := s.(type) {
		case *nodeStep:
			if i%2 != 0 {
				return patternErr(ErrInvalidPattern, st.variable, i, "node step where an edge step was expected")
			}
			if !identRe.MatchString(st.variable) {
				return patternErr(ErrInvalidPattern, st.variable, i, "variable is not a valid identifier")
			}
			if _, dup := declared[st.variable]; dup && !st.cyclic {
				return patternErr(ErrInvalidPattern, st.variable, i, "variable already declared")
			}
			if !st.cyclic {
				declared[st.variable] = st
			}
			lastNode = st
		case *edgeStep:
			if i%2 != 1 {
				return patternErr(ErrInvalidPattern, st.variable, i, "edge step where a node step was expected")
			}
			if st.edgeType == "" {
				return patternErr(ErrInvalidPattern, st.variable, i, "edge step requires an edge type")
			}
			if !st.dir.Valid() {
				return patternErr(ErrInvalidPattern, st.variable, i, "unknown direction %q", st.dir)
			}
			if st.variable != "" {
				if !identRe.MatchString(st.variable) {
					return patternErr(ErrInvalidPattern, st.variable, i, "variable is not a valid identifier")
				}
				if _, dup := declared[st.variable]; dup {
					return patternErr(ErrInvalidPattern, st.variable, i, "variable already declared")
				}
				declared[st.variable] = st
			}
			edges++
		}
	}

	if _, ok := p.steps[len(p.steps)-1].(*nodeStep); !ok {
		return patternErr(ErrInvalidPattern, "", len(p.steps)-1, "edge step has no following node step")
	}
	if edges == 0 && !(first.isStart && first.isEnd) {
		return patternErr(ErrInvalidPattern, first.variable, 0,
			"a pattern without edge steps is valid only when its single node is both start and end")
	}
	if edges > 0 && !lastNode.isEnd {
		return patternErr(ErrInvalidPattern, lastNode.variable, len(p.steps)-1, "pattern is not closed with End")
	}
	if lastNode.cyclic {
		// The cyclic end must agree with the start's declared type;
		// mismatch is a compile-time error, not an empty result.
		if lastNode.nodeType != "" && first.nodeType != "" && lastNode.nodeType != first.nodeType {
			return patternErr(ErrCyclicTypeMismatch, lastNode.variable, len(p.steps)-1,
				"end type %q vs start type %q", lastNode.nodeType, first.nodeType)
		}
	}

	for variable, fs := range p.filters {
		if _, ok := declared[variable]; !ok {
			return patternErr(ErrUndefinedVariable, variable, -1, "where references unknown variable")
		}
		for key, f := range fs {
			if !propKeyRe.MatchString(key) {
				return patternErr(ErrInvalidPattern, variable, -1, "filter key %q is not a valid property key", key)
			}
			if f.Op != OpIn {
				if _, ok := sqlOps[f.Op]; !ok {
					return patternErr(ErrInvalidFilterOperator, variable, -1, "operator %q on key %q", f.Op, key)
				}
			}
		}
	}
	for _, v := range p.selected {
		if _, ok := declared[v]; !ok {
			return patternErr(ErrUndefinedVariable, v, -1, "select references unknown variable")
		}
	}
	for _, o := range p.order {
		if _, ok := declared[o.variable]; !ok {
			return patternErr(ErrUndefinedVariable, o.variable, -1, "orderBy references unknown variable")
		}
		if !propKeyRe.MatchString(o.property) {
			return patternErr(ErrInvalidPattern, o.variable, -1, "orderBy key %q is not a valid property key", o.property)
		}
	}

	return nil
}
