// Package filter compiles structured layer filters into SQL where clauses.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Op is a comparison or logical operator accepted by the compiler. Only
// values from this fixed set ever reach the generated clause; anything else
// compiles to nothing.
type Op string

const (
	OpEqual          Op = "="
	OpNotEqual       Op = "!="
	OpLessThan       Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreaterThan    Op = ">"
	OpGreaterOrEqual Op = ">="
	OpLike           Op = "LIKE"
	OpIsNull         Op = "IS NULL"
	OpIsNotNull      Op = "IS NOT NULL"
	OpAnd            Op = "AND"
	OpOr             Op = "OR"
)

var comparisonOps = map[Op]bool{
	OpEqual: true, OpNotEqual: true,
	OpLessThan: true, OpLessOrEqual: true,
	OpGreaterThan: true, OpGreaterOrEqual: true,
	OpLike: true,
}

// Filter is one node of a layer filter expression tree.
type Filter interface {
	isFilter()
}

// Raw passes a SQL fragment through unchanged (trimmed). Escaping is the
// caller's problem; this is the intentional raw-SQL escape hatch.
type Raw string

// Comparison is `field op value` for the comparison operators above.
type Comparison struct {
	Field string
	Op    Op
	Value any
}

// Between is `field BETWEEN from AND to`.
type Between struct {
	Field string
	From  any
	To    any
}

// In is `field IN (v1, v2, ...)`.
type In struct {
	Field  string
	Values []any
}

// Null is `field IS NULL` or `field IS NOT NULL`.
type Null struct {
	Field string
	Op    Op
}

// Group joins child filters with AND or OR. A single child collapses without
// parentheses; two or more are parenthesized.
type Group struct {
	Op      Op
	Filters []Filter
}

func (Raw) isFilter()        {}
func (Comparison) isFilter() {}
func (Between) isFilter()    {}
func (In) isFilter()         {}
func (Null) isFilter()       {}
func (Group) isFilter()      {}

// And is shorthand for Group{Op: OpAnd}.
func And(filters ...Filter) Group { return Group{Op: OpAnd, Filters: filters} }

// Or is shorthand for Group{Op: OpOr}.
func Or(filters ...Filter) Group { return Group{Op: OpOr, Filters: filters} }

// Compile renders f as a SQL where fragment. ok is false when f carries no
// constraint (an empty Group, or a Group whose every child compiles to
// nothing); callers must then omit the where parameter entirely.
func Compile(f Filter) (clause string, ok bool) {
	switch v := f.(type) {
	case Raw:
		s := strings.TrimSpace(string(v))
		return s, s != ""
	case Comparison:
		if v.Field == "" || !comparisonOps[v.Op] {
			return "", false
		}
		return fmt.Sprintf("%s %s %s", v.Field, v.Op, escape(v.Value)), true
	case Between:
		if v.Field == "" {
			return "", false
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", v.Field, escape(v.From), escape(v.To)), true
	case In:
		if v.Field == "" || len(v.Values) == 0 {
			return "", false
		}
		parts := make([]string, 0, len(v.Values))
		for _, val := range v.Values {
			parts = append(parts, escape(val))
		}
		return fmt.Sprintf("%s IN (%s)", v.Field, strings.Join(parts, ", ")), true
	case Null:
		if v.Field == "" || (v.Op != OpIsNull && v.Op != OpIsNotNull) {
			return "", false
		}
		return fmt.Sprintf("%s %s", v.Field, v.Op), true
	case Group:
		return compileGroup(v)
	default:
		return "", false
	}
}

func compileGroup(g Group) (string, bool) {
	op := g.Op
	if op != OpAnd && op != OpOr {
		return "", false
	}
	parts := make([]string, 0, len(g.Filters))
	for _, child := range g.Filters {
		if s, ok := Compile(child); ok {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 0:
		// no constraint propagates upward rather than emitting "()"
		return "", false
	case 1:
		return parts[0], true
	default:
		return "(" + strings.Join(parts, " "+string(op)+" ") + ")", true
	}
}

// escape renders one literal: numbers unquoted, booleans as '1'/'0', times as
// epoch milliseconds, nil as NULL, everything else single-quoted with ”
// doubling.
func escape(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if t {
			return "'1'"
		}
		return "'0'"
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return strconv.FormatInt(t.UnixMilli(), 10)
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(t), "'", "''") + "'"
	}
}
