package ir

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the three record shapes.
// Only Scalar, List and Nested implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Scalar holds one primitive. Integers are widened to int64 and float32 to
// float64 on construction; anything else is kept as given.
type Scalar struct {
	v any
}

func (Scalar) irValue() {}

// List is an ordered sequence of values.
type List []Value

func (List) irValue() {}

// Nested is exactly one sub-record.
type Nested []Element

func (Nested) irValue() {}

// Null is the Scalar holding nil.
var Null = Scalar{}

// NewScalar builds a Scalar, widening machine integers and float32.
func NewScalar(v any) Scalar {
	return Scalar{v: widen(v)}
}

// Get returns the held primitive.
func (s Scalar) Get() any { return s.v }

// IsNull reports whether the scalar holds nil.
func (s Scalar) IsNull() bool { return s.v == nil }

// Text returns the scalar as a string when it holds one.
func (s Scalar) Text() (string, bool) {
	str, ok := s.v.(string)
	return str, ok
}

// Int64 coerces the scalar to int64. Integral floats and numeric strings
// are accepted.
func (s Scalar) Int64() (int64, bool) {
	switch v := s.v.(type) {
	case int64:
		return v, true
	case uint64:
		if v > 1<<63-1 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// Float64 coerces the scalar to float64.
func (s Scalar) Float64() (float64, bool) {
	switch v := s.v.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Bool coerces the scalar to bool. "true"/"false" strings are accepted.
func (s Scalar) Bool() (bool, bool) {
	switch v := s.v.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	}
	return false, false
}

// Find returns the sub-record element with the given name.
func (n Nested) Find(name string) (Element, bool) {
	for _, e := range n {
		if e.name == name {
			return e, true
		}
	}
	return Element{}, false
}

// Of builds a Value from a Go value.
//
//   - Value passes through unchanged
//   - Element and []Element become Nested
//   - *Entity becomes Nested of its elements
//   - maps with string keys become Nested with keys in sorted order
//   - slices and arrays (except []byte) become List
//   - everything else becomes a Scalar
func Of(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null
	case Value:
		return val
	case Element:
		return Nested{val}
	case []Element:
		return Nested(slices.Clone(val))
	case *Entity:
		return Nested(val.Elements())
	case []byte:
		return Scalar{v: val}
	case []any:
		list := make(List, len(val))
		for i, item := range val {
			list[i] = Of(item)
		}
		return list
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeysRFC8785)
		nested := make(Nested, 0, len(keys))
		for _, k := range keys {
			nested = append(nested, Element{name: k, value: Of(val[k])})
		}
		return nested
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		list := make(List, rv.Len())
		for i := range rv.Len() {
			list[i] = Of(rv.Index(i).Interface())
		}
		return list
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return Of(m)
	}
	return NewScalar(v)
}

// widen normalizes machine integer widths and float32. Named types such as
// time.Duration are left alone so writers can match them.
func widen(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return widenUnsigned(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return widenUnsigned(n)
	case float32:
		return float64(n)
	}
	return v
}

func widenUnsigned(n uint64) any {
	if n > 1<<63-1 {
		return n
	}
	return int64(n)
}

// Equal reports structural equality. Lists compare in order; Nested values
// compare as field sets, ignoring element order.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Scalar:
		bv, ok := b.(Scalar)
		return ok && scalarEqual(av.v, bv.v)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Nested:
		bv, ok := b.(Nested)
		if !ok || len(av) != len(bv) {
			return false
		}
		for _, e := range av {
			other, found := bv.Find(e.name)
			if !found || !Equal(e.value, other.value) {
				return false
			}
		}
		return true
	}
	return false
}

func scalarEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

// String renders a value for diagnostics.
func String(v Value) string {
	var sb strings.Builder
	writeValue(&sb, v)
	return sb.String()
}

func writeValue(sb *strings.Builder, v Value) {
	switch val := v.(type) {
	case Scalar:
		switch p := val.v.(type) {
		case nil:
			sb.WriteString("null")
		case string:
			sb.WriteString(strconv.Quote(p))
		default:
			sb.WriteString(fmt.Sprint(p))
		}
	case List:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, item)
		}
		sb.WriteByte(']')
	case Nested:
		sb.WriteByte('{')
		for i, e := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.name)
			sb.WriteString(": ")
			writeValue(sb, e.value)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString("<nil>")
	}
}

// compareKeysRFC8785 compares strings by UTF-16 code units as required by
// RFC 8785. Go's default string comparison uses UTF-8 and differs for
// characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := range minLen {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// SortedKeys returns the keys of m in RFC 8785 canonical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}
