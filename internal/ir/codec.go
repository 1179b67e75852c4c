package ir

import (
	"fmt"
	"reflect"
)

// Codec converts entities to and from native trees: map[string]any for
// sub-records, []any for lists, and writer-converted primitives for
// scalars. ToNative and FromNative are inverses up to element order.
type Codec struct {
	writers *Writers
}

// NewCodec builds a codec over the given registry. A nil registry selects
// DefaultWriters.
func NewCodec(w *Writers) *Codec {
	if w == nil {
		w = DefaultWriters()
	}
	return &Codec{writers: w}
}

// Writers returns the registry scalars pass through.
func (c *Codec) Writers() *Writers { return c.writers }

// Scalar converts a primitive through the registry.
func (c *Codec) Scalar(v any) any {
	return c.writers.Convert(v)
}

// ToNative converts an entity into a native tree keyed by element name.
func (c *Codec) ToNative(e *Entity) (map[string]any, error) {
	if e == nil {
		return nil, fmt.Errorf("to native: entity: %w", ErrRequiredArgument)
	}
	return c.nestedToNative(Nested(e.elements)), nil
}

// NativeValue converts one Value into its native form.
func (c *Codec) NativeValue(v Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Scalar:
		return c.writers.Convert(val.v)
	case List:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = c.NativeValue(item)
		}
		return out
	case Nested:
		return c.nestedToNative(val)
	}
	return nil
}

func (c *Codec) nestedToNative(n Nested) map[string]any {
	out := make(map[string]any, len(n))
	for _, e := range n {
		out[e.name] = c.NativeValue(e.Value())
	}
	return out
}

// FromNative rebuilds an entity from a native tree. Keys are visited in
// canonical order so the result is deterministic.
func (c *Codec) FromNative(name string, m map[string]any) (*Entity, error) {
	if m == nil {
		return nil, fmt.Errorf("from native %q: document: %w", name, ErrRequiredArgument)
	}
	e := &Entity{name: name, elements: make([]Element, 0, len(m))}
	for _, k := range SortedKeys(m) {
		e.elements = append(e.elements, Element{name: k, value: FromNativeValue(m[k])})
	}
	return e, nil
}

// FromNativeValue rebuilds a Value from a native tree node. Maps with string
// keys become Nested, slices become List and everything else is a Scalar.
func FromNativeValue(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null
	case map[string]any:
		nested := make(Nested, 0, len(val))
		for _, k := range SortedKeys(val) {
			nested = append(nested, Element{name: k, value: FromNativeValue(val[k])})
		}
		return nested
	case []any:
		list := make(List, len(val))
		for i, item := range val {
			list[i] = FromNativeValue(item)
		}
		return list
	case []byte:
		return Scalar{v: val}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return FromNativeValue(m)
		}
	case reflect.Slice:
		if rv.Type().Elem().Kind() != reflect.Uint8 {
			list := make(List, rv.Len())
			for i := range rv.Len() {
				list[i] = FromNativeValue(rv.Index(i).Interface())
			}
			return list
		}
	}
	return NewScalar(v)
}
