package query

import (
	"fmt"
	"strings"
)

// Op is a property filter operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Filter is one comparison against a property value. Construct via the
// Eq/Ne/Gt/Gte/Lt/Lte/In helpers; the zero Filter is invalid.
type Filter struct {
	Op     Op
	Value  any
	Values []any // OpIn only
}

// Filters maps property keys to filters for one pattern variable. Keys
// "id" and "type" address the node/edge columns directly; all other keys
// address the JSON property map.
type Filters map[string]Filter

// Eq matches values equal to v.
func Eq(v any) Filter { return Filter{Op: OpEq, Value: v} }

// Ne matches values not equal to v.
func Ne(v any) Filter { return Filter{Op: OpNe, Value: v} }

// Gt matches values greater than v.
func Gt(v any) Filter { return Filter{Op: OpGt, Value: v} }

// Gte matches values greater than or equal to v.
func Gte(v any) Filter { return Filter{Op: OpGte, Value: v} }

// Lt matches values less than v.
func Lt(v any) Filter { return Filter{Op: OpLt, Value: v} }

// Lte matches values less than or equal to v.
func Lte(v any) Filter { return Filter{Op: OpLte, Value: v} }

// In matches values contained in vs. With no values the filter matches
// nothing.
func In(vs ...any) Filter { return Filter{Op: OpIn, Values: vs} }

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// emit writes the SQL condition for this filter against colExpr.
func (f Filter) emit(w *sqlEmitter, colExpr string) error {
	if f.Op == OpIn {
		if len(f.Values) == 0 {
			w.write("1=0")
			return nil
		}
		w.write(colExpr + " IN (" + placeholders(len(f.Values)) + ")")
		w.arg(f.Values...)
		return nil
	}
	op, ok := sqlOps[f.Op]
	if !ok {
		return patternErr(ErrInvalidFilterOperator, "", -1, "operator %q", f.Op)
	}
	w.write(colExpr + " " + op + " ?")
	w.arg(f.Value)
	return nil
}

// shape returns the structural signature of this filter: everything that
// affects the generated SQL text, but not the parameter values.
func (f Filter) shape() string {
	if f.Op == OpIn {
		return fmt.Sprintf("in%d", len(f.Values))
	}
	return string(f.Op)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
