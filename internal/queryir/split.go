package queryir

import (
	"github.com/roach88/polystore/internal/ir"
)

// KeySplit separates key lookups from the rest of a condition so a manager
// can fetch the keys directly and run the remainder as a query. The result
// set is the union of both.
type KeySplit struct {
	// Keys are the key values requested by Equals or In predicates on the
	// key field.
	Keys []ir.Value

	// Rest is the remaining condition, or nil when only keys were requested.
	Rest Condition
}

// SplitKeys inspects c for predicates on the key field that can be served
// by direct lookup:
//   - key = v
//   - key IN (v1, v2)
//   - an Or whose children include any of the above
//
// It reports false when c has no such shape; And, Not and range predicates
// on the key are left to the query path.
func SplitKeys(c Condition, key string) (KeySplit, bool) {
	if keys, ok := keyValues(c, key); ok {
		return KeySplit{Keys: keys}, true
	}

	or, ok := c.(Or)
	if !ok {
		return KeySplit{}, false
	}

	var split KeySplit
	var rest []Condition
	for _, child := range or.Conditions {
		if keys, ok := keyValues(child, key); ok {
			split.Keys = append(split.Keys, keys...)
			continue
		}
		rest = append(rest, child)
	}
	if len(split.Keys) == 0 {
		return KeySplit{}, false
	}

	switch len(rest) {
	case 0:
	case 1:
		split.Rest = rest[0]
	default:
		split.Rest = Or{Conditions: rest}
	}
	return split, true
}

func keyValues(c Condition, key string) ([]ir.Value, bool) {
	switch v := c.(type) {
	case Equals:
		if v.Name() == key {
			return []ir.Value{v.Value()}, true
		}
	case In:
		if list, ok := v.Value().(ir.List); ok && v.Name() == key {
			return []ir.Value(list), true
		}
	}
	return nil, false
}
