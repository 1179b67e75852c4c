package queryir

import (
	"github.com/roach88/polystore/internal/ir"
)

// Validate checks the structural rules every compiler relies on:
//  1. And and Or have at least two children, none nil
//  2. Not wraps exactly one non-nil child
//  3. Leaf field names are non-empty
//  4. In carries a List value
//  5. Like carries a string pattern
//
// A nil condition is valid and means "no filter". Validate is a pure
// function with no side effects.
func Validate(backend string, c Condition) error {
	if c == nil {
		return nil
	}
	return validate(backend, c)
}

func validate(backend string, c Condition) error {
	if op, el, ok := Leaf(c); ok {
		return validateLeaf(backend, op, el)
	}

	switch v := c.(type) {
	case Not:
		if v.Condition == nil {
			return Required(backend, "not operand")
		}
		return validate(backend, v.Condition)
	case And:
		return validateChildren(backend, "and", v.Conditions)
	case Or:
		return validateChildren(backend, "or", v.Conditions)
	case nil:
		return Invalid(backend, "condition", "nil condition inside a condition tree")
	}
	return Invalid(backend, "condition", "unknown condition type %T", c)
}

func validateLeaf(backend string, op Operator, el ir.Element) error {
	if el.Name() == "" {
		return Required(backend, op.String()+" field name")
	}
	switch op {
	case OpIn:
		if _, ok := el.Value().(ir.List); !ok {
			return Required(backend, "in list value for "+el.Name())
		}
	case OpLike:
		s, ok := el.Value().(ir.Scalar)
		if !ok {
			return Invalid(backend, "like", "like pattern for %q must be a string", el.Name())
		}
		if _, ok := s.Text(); !ok {
			return Invalid(backend, "like", "like pattern for %q must be a string", el.Name())
		}
	}
	return nil
}

func validateChildren(backend, kind string, cs []Condition) error {
	if len(cs) < 2 {
		return Invalid(backend, kind, "%s requires at least two conditions, got %d", kind, len(cs))
	}
	for _, c := range cs {
		if err := validate(backend, c); err != nil {
			return err
		}
	}
	return nil
}

// Walk visits c and every descendant in depth-first order. Returning false
// from fn skips the node's children.
func Walk(c Condition, fn func(Condition) bool) {
	if c == nil || !fn(c) {
		return
	}
	switch v := c.(type) {
	case Not:
		Walk(v.Condition, fn)
	case And:
		for _, child := range v.Conditions {
			Walk(child, fn)
		}
	case Or:
		for _, child := range v.Conditions {
			Walk(child, fn)
		}
	}
}

// Fields returns the distinct field names referenced by c, in first-seen
// order.
func Fields(c Condition) []string {
	var names []string
	seen := map[string]bool{}
	Walk(c, func(n Condition) bool {
		if _, el, ok := Leaf(n); ok && !seen[el.Name()] {
			seen[el.Name()] = true
			names = append(names, el.Name())
		}
		return true
	})
	return names
}
