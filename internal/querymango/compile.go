// Package querymango compiles queryir conditions and queries into CouchDB
// Mango find requests.
//
// Every document carries its entity name in a discriminator field, so a
// full query conjoins the entity filter with the caller's condition.
// Output is canonical JSON so the same query always produces the same
// request body.
package querymango

import (
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Backend is the name reported in errors and cursors.
const Backend = "couchdb"

// Config controls document conventions.
type Config struct {
	// EntityField is the discriminator holding the entity name.
	EntityField string `mapstructure:"entity_field"`

	// IDField and RevField are always projected when fields are selected.
	IDField  string `mapstructure:"id_field"`
	RevField string `mapstructure:"rev_field"`
}

// DefaultConfig returns CouchDB's conventions.
func DefaultConfig() Config {
	return Config{
		EntityField: "@entity",
		IDField:     "_id",
		RevField:    "_rev",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.EntityField == "" {
		c.EntityField = def.EntityField
	}
	if c.IDField == "" {
		c.IDField = def.IDField
	}
	if c.RevField == "" {
		c.RevField = def.RevField
	}
}

// Bookmark is the Mango continuation token.
type Bookmark string

func (b Bookmark) Backend() string { return Backend }
func (b Bookmark) Empty() bool     { return b == "" || b == "nil" }
func (b Bookmark) String() string  { return string(b) }

var capabilities = queryir.Capabilities{
	Backend: Backend,
	Or:      true,
	Not:     true,
	In:      true,
	Like:    true,
	Nested:  true,
	Skip:    true,
	Sort:    true,
	Cursor:  true,
}

var operators = map[queryir.Operator]string{
	queryir.OpEquals:        "$eq",
	queryir.OpGreaterThan:   "$gt",
	queryir.OpGreaterEquals: "$gte",
	queryir.OpLesserThan:    "$lt",
	queryir.OpLesserEquals:  "$lte",
	queryir.OpIn:            "$in",
	queryir.OpLike:          "$regex",
}

// Compiler compiles queryir values to Mango. It is safe for concurrent use.
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

// Capabilities reports what Mango can express.
func (c *Compiler) Capabilities() queryir.Capabilities { return capabilities }

// Compile converts a query to a find request.
func (c *Compiler) Compile(q queryir.Query) (Request, error) {
	if err := capabilities.CheckQuery(q); err != nil {
		return Request{}, err
	}

	req := Request{
		Selector: c.entitySelector(q.Entity, q.Condition),
		Fields:   c.projection(q.Fields),
		Limit:    q.Limit,
		Skip:     q.Skip,
	}

	for _, s := range q.Sorts {
		req.Sort = append(req.Sort, map[string]string{s.Field: s.Order.String()})
	}

	if q.Cursor != nil {
		bm, ok := q.Cursor.(Bookmark)
		if !ok {
			return Request{}, queryir.Foreign(Backend, q.Cursor)
		}
		req.Bookmark = bm
	}

	return req, nil
}

// CompilePredicate converts a condition to a bare selector, without the
// entity filter.
func (c *Compiler) CompilePredicate(cond queryir.Condition) (map[string]any, error) {
	if cond == nil {
		return nil, queryir.Required(Backend, "condition")
	}
	if err := queryir.Validate(Backend, cond); err != nil {
		return nil, err
	}
	return c.selector(cond), nil
}

// CompileDelete converts a delete query to the find request that locates
// the documents to remove. Only identifier and revision are fetched, which
// is all a bulk delete needs.
func (c *Compiler) CompileDelete(d queryir.DeleteQuery) (Request, error) {
	if err := capabilities.CheckDelete(d); err != nil {
		return Request{}, err
	}
	return Request{
		Selector: c.entitySelector(d.Entity, d.Condition),
		Fields:   []string{c.cfg.IDField, c.cfg.RevField},
	}, nil
}

// CompileInsert converts an entity into a document tagged with its entity
// name.
func (c *Compiler) CompileInsert(e *ir.Entity) (map[string]any, error) {
	if e == nil {
		return nil, queryir.Required(Backend, "entity")
	}
	doc, err := c.codec.ToNative(e)
	if err != nil {
		return nil, err
	}
	doc[c.cfg.EntityField] = e.Name()
	return doc, nil
}

// Decode converts a fetched document back into an entity, dropping the
// discriminator.
func (c *Compiler) Decode(doc map[string]any) (*ir.Entity, error) {
	name, _ := doc[c.cfg.EntityField].(string)
	if name == "" {
		return nil, queryir.Required(Backend, c.cfg.EntityField+" field")
	}
	e, err := c.codec.FromNative(name, doc)
	if err != nil {
		return nil, err
	}
	e.Remove(c.cfg.EntityField)
	return e, nil
}

func (c *Compiler) entitySelector(entity string, cond queryir.Condition) map[string]any {
	byEntity := map[string]any{c.cfg.EntityField: entity}
	if cond == nil {
		return byEntity
	}

	clauses := []any{byEntity}
	if and, ok := cond.(queryir.And); ok {
		for _, child := range and.Conditions {
			clauses = append(clauses, c.selector(child))
		}
	} else {
		clauses = append(clauses, c.selector(cond))
	}
	return map[string]any{"$and": clauses}
}

func (c *Compiler) projection(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields)+2)
	out = append(out, c.cfg.IDField, c.cfg.RevField)
	for _, f := range fields {
		if f != c.cfg.IDField && f != c.cfg.RevField {
			out = append(out, f)
		}
	}
	return out
}

// selector assumes cond has passed validation.
func (c *Compiler) selector(cond queryir.Condition) map[string]any {
	if op, el, ok := queryir.Leaf(cond); ok {
		return map[string]any{el.Name(): c.leaf(op, el)}
	}

	switch v := cond.(type) {
	case queryir.Not:
		return map[string]any{"$not": c.selector(v.Condition)}
	case queryir.And:
		return map[string]any{"$and": c.selectors(v.Conditions)}
	case queryir.Or:
		return map[string]any{"$or": c.selectors(v.Conditions)}
	}
	return map[string]any{}
}

func (c *Compiler) selectors(cs []queryir.Condition) []any {
	out := make([]any, len(cs))
	for i, child := range cs {
		out[i] = c.selector(child)
	}
	return out
}

func (c *Compiler) leaf(op queryir.Operator, el ir.Element) any {
	value := c.codec.NativeValue(el.Value())
	switch op {
	case queryir.OpEquals:
		if _, isDoc := value.(map[string]any); isDoc {
			return map[string]any{"$eq": value}
		}
		return value
	case queryir.OpLike:
		pattern, _ := value.(string)
		return map[string]any{"$regex": queryir.LikeToRegex(pattern)}
	}
	return map[string]any{operators[op]: value}
}
