package querybson

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Decode converts a fetched document into an entity named name.
func Decode(codec *ir.Codec, name string, doc bson.M) (*ir.Entity, error) {
	if doc == nil {
		return nil, queryir.Required(Backend, "document")
	}
	if codec == nil {
		codec = ir.NewCodec(nil)
	}
	native, _ := Normalize(doc).(map[string]any)
	return codec.FromNative(name, native)
}

// Normalize rewrites driver types into the native tree the codec reads:
// documents become maps, arrays become slices, 32-bit integers widen and
// identifiers and timestamps become strings and times.
func Normalize(v any) any {
	switch val := v.(type) {
	case bson.M:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case bson.A:
		return normalizeSlice(val)
	case []any:
		return normalizeSlice(val)
	case int32:
		return int64(val)
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(ir.TimeLayout)
	case primitive.Binary:
		return val.Data
	case primitive.Decimal128:
		return val.String()
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = Normalize(v)
	}
	return out
}
