// Package querybson compiles queryir conditions and queries into MongoDB
// find filters and options.
package querybson

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Backend is the name reported in errors.
const Backend = "mongodb"

// Config controls collection conventions.
type Config struct {
	// IDField is always projected when fields are selected.
	IDField string `mapstructure:"id_field"`

	// CaseInsensitiveLike compiles LIKE patterns with the "i" regex option.
	CaseInsensitiveLike bool `mapstructure:"case_insensitive_like"`
}

// DefaultConfig returns MongoDB's conventions.
func DefaultConfig() Config {
	return Config{IDField: "_id"}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.IDField == "" {
		c.IDField = DefaultConfig().IDField
	}
}

var capabilities = queryir.Capabilities{
	Backend: Backend,
	Or:      true,
	Not:     true,
	In:      true,
	Like:    true,
	Nested:  true,
	Skip:    true,
	Sort:    true,
	Cursor:  false,
}

var operators = map[queryir.Operator]string{
	queryir.OpGreaterThan:   "$gt",
	queryir.OpGreaterEquals: "$gte",
	queryir.OpLesserThan:    "$lt",
	queryir.OpLesserEquals:  "$lte",
	queryir.OpIn:            "$in",
}

// Find is a compiled find call. The collection is named after the entity.
type Find struct {
	Collection string
	Filter     bson.D
	Options    *options.FindOptions
}

// Delete is a compiled DeleteMany call.
type Delete struct {
	Collection string
	Filter     bson.D
}

// Compiler compiles queryir values to BSON. It is safe for concurrent use.
type Compiler struct {
	cfg   Config
	codec *ir.Codec
}

// New creates a compiler. A nil codec uses the default writers.
func New(cfg Config, codec *ir.Codec) *Compiler {
	cfg.validate()
	if codec == nil {
		codec = ir.NewCodec(nil)
	}
	return &Compiler{cfg: cfg, codec: codec}
}

// Capabilities reports what MongoDB can express through this compiler.
func (c *Compiler) Capabilities() queryir.Capabilities { return capabilities }

// Compile converts a query to a find call.
func (c *Compiler) Compile(q queryir.Query) (Find, error) {
	if err := capabilities.CheckQuery(q); err != nil {
		return Find{}, err
	}

	opts := options.Find()
	if len(q.Sorts) > 0 {
		sort := bson.D{}
		for _, s := range q.Sorts {
			direction := 1
			if s.Order == queryir.Descending {
				direction = -1
			}
			sort = append(sort, bson.E{Key: s.Field, Value: direction})
		}
		opts.SetSort(sort)
	}
	if len(q.Fields) > 0 {
		projection := bson.D{{Key: c.cfg.IDField, Value: 1}}
		for _, f := range q.Fields {
			if f != c.cfg.IDField {
				projection = append(projection, bson.E{Key: f, Value: 1})
			}
		}
		opts.SetProjection(projection)
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Skip > 0 {
		opts.SetSkip(int64(q.Skip))
	}

	return Find{
		Collection: q.Entity,
		Filter:     c.filter(q.Condition),
		Options:    opts,
	}, nil
}

// CompilePredicate converts a condition to a filter document.
func (c *Compiler) CompilePredicate(cond queryir.Condition) (bson.D, error) {
	if cond == nil {
		return nil, queryir.Required(Backend, "condition")
	}
	if err := queryir.Validate(Backend, cond); err != nil {
		return nil, err
	}
	return c.filter(cond), nil
}

// CompileDelete converts a delete query. A missing condition matches every
// document in the collection.
func (c *Compiler) CompileDelete(d queryir.DeleteQuery) (Delete, error) {
	if err := capabilities.CheckDelete(d); err != nil {
		return Delete{}, err
	}
	return Delete{Collection: d.Entity, Filter: c.filter(d.Condition)}, nil
}

// CompileInsert converts an entity into a document that keeps the
// entity's element order.
func (c *Compiler) CompileInsert(e *ir.Entity) (bson.D, error) {
	if e == nil {
		return nil, queryir.Required(Backend, "entity")
	}
	doc := make(bson.D, 0, e.Len())
	for _, el := range e.Elements() {
		doc = append(doc, bson.E{Key: el.Name(), Value: c.value(el.Value())})
	}
	return doc, nil
}

func (c *Compiler) filter(cond queryir.Condition) bson.D {
	if cond == nil {
		return bson.D{}
	}

	if op, el, ok := queryir.Leaf(cond); ok {
		return bson.D{{Key: el.Name(), Value: c.leaf(op, el)}}
	}

	switch v := cond.(type) {
	case queryir.Not:
		return bson.D{{Key: "$nor", Value: bson.A{c.filter(v.Condition)}}}
	case queryir.And:
		return bson.D{{Key: "$and", Value: c.filters(v.Conditions)}}
	case queryir.Or:
		return bson.D{{Key: "$or", Value: c.filters(v.Conditions)}}
	}
	return bson.D{}
}

func (c *Compiler) filters(cs []queryir.Condition) bson.A {
	out := make(bson.A, len(cs))
	for i, child := range cs {
		out[i] = c.filter(child)
	}
	return out
}

func (c *Compiler) leaf(op queryir.Operator, el ir.Element) any {
	switch op {
	case queryir.OpEquals:
		return c.value(el.Value())
	case queryir.OpLike:
		pattern, _ := c.codec.NativeValue(el.Value()).(string)
		regex := primitive.Regex{Pattern: queryir.LikeToRegex(pattern)}
		if c.cfg.CaseInsensitiveLike {
			regex.Options = "i"
		}
		return regex
	}
	return bson.D{{Key: operators[op], Value: c.value(el.Value())}}
}

// value converts v to BSON. Sub-records become documents with elements in
// their declared order.
func (c *Compiler) value(v ir.Value) any {
	switch val := v.(type) {
	case ir.List:
		out := make(bson.A, len(val))
		for i, item := range val {
			out[i] = c.value(item)
		}
		return out
	case ir.Nested:
		doc := make(bson.D, 0, len(val))
		for _, el := range val {
			doc = append(doc, bson.E{Key: el.Name(), Value: c.value(el.Value())})
		}
		return doc
	}
	return c.codec.NativeValue(v)
}
