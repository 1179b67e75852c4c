package queryir

import (
	"strings"

	"github.com/roach88/polystore/internal/ir"
)

// Condition is a filter over entity elements.
//
// This is a sealed interface - only types in this package implement it.
// Conditions are immutable once built.
type Condition interface {
	conditionNode() // Marker method - seals interface to this package
}

// Equals holds when the field equals the element value.
type Equals struct{ ir.Element }

// GreaterThan holds when the field is strictly greater than the value.
type GreaterThan struct{ ir.Element }

// GreaterEquals holds when the field is greater than or equal to the value.
type GreaterEquals struct{ ir.Element }

// LesserThan holds when the field is strictly less than the value.
type LesserThan struct{ ir.Element }

// LesserEquals holds when the field is less than or equal to the value.
type LesserEquals struct{ ir.Element }

// In holds when the field equals any member of the element's List value.
type In struct{ ir.Element }

// Like holds when the field matches a pattern where % matches any run of
// characters and _ matches exactly one.
type Like struct{ ir.Element }

// Not negates exactly one child.
type Not struct {
	Condition Condition
}

// And holds when every child holds. It has at least two children.
type And struct {
	Conditions []Condition
}

// Or holds when any child holds. It has at least two children.
type Or struct {
	Conditions []Condition
}

func (Equals) conditionNode()        {}
func (GreaterThan) conditionNode()   {}
func (GreaterEquals) conditionNode() {}
func (LesserThan) conditionNode()    {}
func (LesserEquals) conditionNode()  {}
func (In) conditionNode()            {}
func (Like) conditionNode()          {}
func (Not) conditionNode()           {}
func (And) conditionNode()           {}
func (Or) conditionNode()            {}

// Operator names a leaf comparison. Compilers key their operator tables
// on it.
type Operator int

const (
	OpEquals Operator = iota + 1
	OpGreaterThan
	OpGreaterEquals
	OpLesserThan
	OpLesserEquals
	OpIn
	OpLike
)

var operatorNames = map[Operator]string{
	OpEquals:        "equals",
	OpGreaterThan:   "greater_than",
	OpGreaterEquals: "greater_equals",
	OpLesserThan:    "lesser_than",
	OpLesserEquals:  "lesser_equals",
	OpIn:            "in",
	OpLike:          "like",
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "unknown"
}

// Leaf decomposes a leaf condition into its operator and element.
// It reports false for Not, And, Or and nil.
func Leaf(c Condition) (Operator, ir.Element, bool) {
	switch v := c.(type) {
	case Equals:
		return OpEquals, v.Element, true
	case GreaterThan:
		return OpGreaterThan, v.Element, true
	case GreaterEquals:
		return OpGreaterEquals, v.Element, true
	case LesserThan:
		return OpLesserThan, v.Element, true
	case LesserEquals:
		return OpLesserEquals, v.Element, true
	case In:
		return OpIn, v.Element, true
	case Like:
		return OpLike, v.Element, true
	}
	return 0, ir.Element{}, false
}

// Eq builds an Equals condition.
func Eq(name string, v any) Condition { return Equals{ir.NewElement(name, v)} }

// Gt builds a GreaterThan condition.
func Gt(name string, v any) Condition { return GreaterThan{ir.NewElement(name, v)} }

// Gte builds a GreaterEquals condition.
func Gte(name string, v any) Condition { return GreaterEquals{ir.NewElement(name, v)} }

// Lt builds a LesserThan condition.
func Lt(name string, v any) Condition { return LesserThan{ir.NewElement(name, v)} }

// Lte builds a LesserEquals condition.
func Lte(name string, v any) Condition { return LesserEquals{ir.NewElement(name, v)} }

// InList builds an In condition. v should convert to an ir.List; anything
// else is rejected at compile time as a missing argument.
func InList(name string, v any) Condition { return In{ir.NewElement(name, v)} }

// InValues builds an In condition from individual values.
func InValues(name string, vs ...any) Condition {
	list := make(ir.List, len(vs))
	for i, v := range vs {
		list[i] = ir.Of(v)
	}
	return In{ir.NewElement(name, list)}
}

// Match builds a Like condition.
func Match(name, pattern string) Condition { return Like{ir.NewElement(name, pattern)} }

// Negate wraps c in Not.
func Negate(c Condition) Condition { return Not{Condition: c} }

// AllOf conjoins at least two conditions. Children that are themselves And
// are flattened into the result.
func AllOf(a, b Condition, rest ...Condition) Condition {
	return And{Conditions: flatten[And](append([]Condition{a, b}, rest...), func(x And) []Condition { return x.Conditions })}
}

// AnyOf disjoins at least two conditions. Children that are themselves Or
// are flattened into the result.
func AnyOf(a, b Condition, rest ...Condition) Condition {
	return Or{Conditions: flatten[Or](append([]Condition{a, b}, rest...), func(x Or) []Condition { return x.Conditions })}
}

func flatten[T Condition](cs []Condition, children func(T) []Condition) []Condition {
	out := make([]Condition, 0, len(cs))
	for _, c := range cs {
		if same, ok := c.(T); ok {
			out = append(out, children(same)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Describe renders a condition in a compact infix form for logs and CLI
// output, e.g. (city = "Assis" AND NOT age <= 10).
func Describe(c Condition) string {
	var sb strings.Builder
	describe(&sb, c)
	return sb.String()
}

var describeSymbols = map[Operator]string{
	OpEquals:        "=",
	OpGreaterThan:   ">",
	OpGreaterEquals: ">=",
	OpLesserThan:    "<",
	OpLesserEquals:  "<=",
	OpIn:            "IN",
	OpLike:          "LIKE",
}

func describe(sb *strings.Builder, c Condition) {
	if op, el, ok := Leaf(c); ok {
		sb.WriteString(el.Name())
		sb.WriteByte(' ')
		sb.WriteString(describeSymbols[op])
		sb.WriteByte(' ')
		sb.WriteString(ir.String(el.Value()))
		return
	}
	switch v := c.(type) {
	case Not:
		sb.WriteString("NOT ")
		describe(sb, v.Condition)
	case And:
		describeJoined(sb, " AND ", v.Conditions)
	case Or:
		describeJoined(sb, " OR ", v.Conditions)
	default:
		sb.WriteString("<nil>")
	}
}

func describeJoined(sb *strings.Builder, sep string, cs []Condition) {
	sb.WriteByte('(')
	for i, c := range cs {
		if i > 0 {
			sb.WriteString(sep)
		}
		describe(sb, c)
	}
	sb.WriteByte(')')
}
