// Package queryn1ql compiles queryir conditions and queries into Couchbase
// N1QL statements with positional parameters.
//
// Predicates that only name document keys are split out into Keys so a
// manager can fetch them from the key-value service and run the rest of
// the condition as a query.
package queryn1ql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Backend is the name reported in errors.
const Backend = "n1ql"

// Config controls keyspace conventions.
type Config struct {
	// Keyspace is the bucket, or bucket.scope.collection path, queried.
	Keyspace string `mapstructure:"keyspace"`

	// EntityField holds the entity name on every document.
	EntityField string `mapstructure:"entity_field"`

	// IDField is the element that maps to the document key.
	IDField string `mapstructure:"id_field"`
}

// DefaultConfig returns the conventions used by the documents this package
// writes.
func DefaultConfig() Config {
	return Config{
		Keyspace:    "polystore",
		EntityField: "@entity",
		IDField:     "_id",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.Keyspace == "" {
		c.Keyspace = def.Keyspace
	}
	if c.EntityField == "" {
		c.EntityField = def.EntityField
	}
	if c.IDField == "" {
		c.IDField = def.IDField
	}
}

// alias names the keyspace inside every statement.
const alias = "e"

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
	queryir.OpEquals:        " = ",
	queryir.OpGreaterThan:   " > ",
	queryir.OpGreaterEquals: " >= ",
	queryir.OpLesserThan:    " < ",
	queryir.OpLesserEquals:  " <= ",
	queryir.OpIn:            " IN ",
	queryir.OpLike:          " LIKE ",
}

// Statement is a compiled request. N1QL is empty when every match is served
// by Keys.
type Statement struct {
	Keyspace string
	N1QL     string
	Params   []any
	Keys     []string
}

// HasQuery reports whether the statement needs the query service.
func (s Statement) HasQuery() bool { return s.N1QL != "" }

// Compiler compiles queryir values to N1QL. It is safe for concurrent use.
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

// Capabilities reports what N1QL can express.
func (c *Compiler) Capabilities() queryir.Capabilities { return capabilities }

// Compile converts a query to a statement. Key lookups are split out only
// for unordered, unbounded queries, since key-value results cannot be
// sorted or paged together with query results.
func (c *Compiler) Compile(q queryir.Query) (Statement, error) {
	if err := capabilities.CheckQuery(q); err != nil {
		return Statement{}, err
	}

	stmt := Statement{Keyspace: c.cfg.Keyspace}
	cond := q.Condition
	if cond != nil && len(q.Sorts) == 0 && q.Limit == 0 && q.Skip == 0 {
		if split, ok := queryir.SplitKeys(cond, c.cfg.IDField); ok {
			keys, err := c.keys(split.Keys)
			if err != nil {
				return Statement{}, err
			}
			stmt.Keys = keys
			if split.Rest == nil {
				return stmt, nil
			}
			cond = split.Rest
		}
	}

	b := &builder{c: c}
	b.sb.WriteString("SELECT META(" + alias + ").id AS " + quote(c.cfg.IDField))
	if len(q.Fields) == 0 {
		b.sb.WriteString(", " + alias + ".*")
	} else {
		for _, f := range q.Fields {
			if f != c.cfg.IDField {
				b.sb.WriteString(", " + b.field(f))
			}
		}
	}
	b.sb.WriteString(" FROM " + c.keyspace() + " AS " + alias)
	b.where(q.Entity, cond)

	if len(q.Sorts) > 0 {
		b.sb.WriteString(" ORDER BY ")
		for i, s := range q.Sorts {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.sb.WriteString(b.field(s.Field) + " " + strings.ToUpper(s.Order.String()))
		}
	}
	if q.Limit > 0 {
		b.sb.WriteString(" LIMIT " + strconv.FormatUint(q.Limit, 10))
	}
	if q.Skip > 0 {
		b.sb.WriteString(" OFFSET " + strconv.FormatUint(q.Skip, 10))
	}

	stmt.N1QL = b.sb.String()
	stmt.Params = b.params
	return stmt, nil
}

// CompilePredicate converts a condition to a WHERE fragment and its
// parameters.
func (c *Compiler) CompilePredicate(cond queryir.Condition) (string, []any, error) {
	if cond == nil {
		return "", nil, queryir.Required(Backend, "condition")
	}
	if err := queryir.Validate(Backend, cond); err != nil {
		return "", nil, err
	}
	b := &builder{c: c}
	b.condition(cond, false)
	return b.sb.String(), b.params, nil
}

// CompileDelete converts a delete query. Key predicates become Keys for a
// key-value remove and the statement returns the removed document keys.
func (c *Compiler) CompileDelete(d queryir.DeleteQuery) (Statement, error) {
	if err := capabilities.CheckDelete(d); err != nil {
		return Statement{}, err
	}

	stmt := Statement{Keyspace: c.cfg.Keyspace}
	cond := d.Condition
	if cond != nil {
		if split, ok := queryir.SplitKeys(cond, c.cfg.IDField); ok {
			keys, err := c.keys(split.Keys)
			if err != nil {
				return Statement{}, err
			}
			stmt.Keys = keys
			if split.Rest == nil {
				return stmt, nil
			}
			cond = split.Rest
		}
	}

	b := &builder{c: c}
	b.sb.WriteString("DELETE FROM " + c.keyspace() + " AS " + alias)
	b.where(d.Entity, cond)
	b.sb.WriteString(" RETURNING META(" + alias + ").id")

	stmt.N1QL = b.sb.String()
	stmt.Params = b.params
	return stmt, nil
}

// CompileInsert converts an entity into an UPSERT keyed by its identifier
// element.
func (c *Compiler) CompileInsert(e *ir.Entity) (Statement, error) {
	if e == nil {
		return Statement{}, queryir.Required(Backend, "entity")
	}
	id, ok := e.Find(c.cfg.IDField)
	if !ok {
		return Statement{}, queryir.Required(Backend, c.cfg.IDField+" element")
	}
	keys, err := c.keys([]ir.Value{id.Value()})
	if err != nil {
		return Statement{}, err
	}

	doc, err := c.Document(e)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Keyspace: c.cfg.Keyspace,
		N1QL:     "UPSERT INTO " + c.keyspace() + " (KEY, VALUE) VALUES ($1, $2)",
		Params:   []any{keys[0], doc},
		Keys:     keys,
	}, nil
}

// Document converts an entity into the stored body: the identifier lives in
// the document key, so it is dropped, and the entity name is added.
func (c *Compiler) Document(e *ir.Entity) (map[string]any, error) {
	doc, err := c.codec.ToNative(e)
	if err != nil {
		return nil, err
	}
	delete(doc, c.cfg.IDField)
	doc[c.cfg.EntityField] = e.Name()
	return doc, nil
}

// Decode converts a fetched body and its key back into an entity.
func (c *Compiler) Decode(key string, doc map[string]any) (*ir.Entity, error) {
	name, _ := doc[c.cfg.EntityField].(string)
	if name == "" {
		return nil, queryir.Required(Backend, c.cfg.EntityField+" field")
	}
	e, err := c.codec.FromNative(name, doc)
	if err != nil {
		return nil, err
	}
	e.Remove(c.cfg.EntityField)
	if key != "" {
		e.Set(c.cfg.IDField, key)
	}
	return e, nil
}

// DecodeRow converts a query row into an entity. The key arrives under the
// identifier alias. Projected rows carry no discriminator, so entity names
// them.
func (c *Compiler) DecodeRow(entity string, row map[string]any) (*ir.Entity, error) {
	if row == nil {
		return nil, queryir.Required(Backend, "row")
	}
	if _, ok := row[c.cfg.EntityField]; !ok {
		tagged := make(map[string]any, len(row)+1)
		for k, v := range row {
			tagged[k] = v
		}
		tagged[c.cfg.EntityField] = entity
		row = tagged
	}
	key, _ := row[c.cfg.IDField].(string)
	return c.Decode(key, row)
}

// IDField returns the element name that maps to the document key.
func (c *Compiler) IDField() string { return c.cfg.IDField }

func (c *Compiler) keyspace() string {
	parts := strings.Split(c.cfg.Keyspace, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

func (c *Compiler) keys(values []ir.Value) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(ir.Scalar)
		if !ok || s.IsNull() {
			return nil, queryir.Invalid(Backend, "key", "document key must be a scalar, got %s", ir.String(v))
		}
		switch native := c.codec.Scalar(s.Get()).(type) {
		case string:
			out = append(out, native)
		case int64:
			out = append(out, strconv.FormatInt(native, 10))
		default:
			out = append(out, fmt.Sprint(native))
		}
	}
	return out, nil
}

// quote renders a backtick-escaped identifier.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// builder accumulates statement text and positional parameters.
type builder struct {
	c      *Compiler
	sb     strings.Builder
	params []any
}

func (b *builder) param(v any) string {
	b.params = append(b.params, v)
	return "$" + strconv.Itoa(len(b.params))
}

func (b *builder) field(name string) string {
	if name == b.c.cfg.IDField {
		return "META(" + alias + ").id"
	}
	return alias + "." + quote(name)
}

func (b *builder) where(entity string, cond queryir.Condition) {
	b.sb.WriteString(" WHERE " + b.field(b.c.cfg.EntityField) + " = " + b.param(entity))
	if cond == nil {
		return
	}
	if and, ok := cond.(queryir.And); ok {
		for _, child := range and.Conditions {
			b.sb.WriteString(" AND ")
			b.condition(child, true)
		}
		return
	}
	b.sb.WriteString(" AND ")
	b.condition(cond, true)
}

// condition writes cond. Compound children are parenthesized when nested is
// set.
func (b *builder) condition(cond queryir.Condition, nested bool) {
	if op, el, ok := queryir.Leaf(cond); ok {
		b.leaf(op, el)
		return
	}

	switch v := cond.(type) {
	case queryir.Not:
		b.sb.WriteString("NOT (")
		b.condition(v.Condition, false)
		b.sb.WriteString(")")
	case queryir.And:
		b.join(v.Conditions, " AND ", nested)
	case queryir.Or:
		b.join(v.Conditions, " OR ", nested)
	}
}

func (b *builder) join(cs []queryir.Condition, sep string, nested bool) {
	if nested {
		b.sb.WriteString("(")
	}
	for i, child := range cs {
		if i > 0 {
			b.sb.WriteString(sep)
		}
		b.condition(child, true)
	}
	if nested {
		b.sb.WriteString(")")
	}
}

func (b *builder) leaf(op queryir.Operator, el ir.Element) {
	field := b.field(el.Name())
	value := b.c.codec.NativeValue(el.Value())
	if op == queryir.OpEquals && value == nil {
		b.sb.WriteString(field + " IS NULL")
		return
	}
	b.sb.WriteString(field + operators[op] + b.param(value))
}
