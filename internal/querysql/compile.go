// Package querysql compiles queryir conditions and queries into SQLite
// statements over a table of JSON documents.
//
// Every entity is one row: its collection (the entity name), its key and a
// canonical JSON body. Conditions address body fields through json_extract.
// All values are parameterized, never interpolated, and every SELECT ends
// with a key tiebreaker so results are deterministic.
package querysql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Backend is the name reported in errors.
const Backend = "sqlite"

// Config controls the document table layout.
type Config struct {
	// Table holds every entity.
	Table string `mapstructure:"table"`

	// IDField is the element stored in the key column.
	IDField string `mapstructure:"id_field"`
}

// DefaultConfig returns the layout created by the store's schema.
func DefaultConfig() Config {
	return Config{
		Table:   "entities",
		IDField: "_id",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.Table == "" {
		c.Table = def.Table
	}
	if c.IDField == "" {
		c.IDField = def.IDField
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

var comparators = map[queryir.Operator]string{
	queryir.OpEquals:        " = ",
	queryir.OpGreaterThan:   " > ",
	queryir.OpGreaterEquals: " >= ",
	queryir.OpLesserThan:    " < ",
	queryir.OpLesserEquals:  " <= ",
	queryir.OpLike:          " LIKE ",
}

// Statement is a compiled statement. Fields is the projection applied to
// decoded rows; empty means every field.
type Statement struct {
	SQL    string
	Params []any
	Fields []string
}

// Compiler compiles queryir values to SQLite. It is safe for concurrent use.
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

// Capabilities reports what the document table supports.
func (c *Compiler) Capabilities() queryir.Capabilities { return capabilities }

// IDField returns the element stored in the key column.
func (c *Compiler) IDField() string { return c.cfg.IDField }

// Compile converts a query to a SELECT over the document table.
func (c *Compiler) Compile(q queryir.Query) (Statement, error) {
	if err := capabilities.CheckQuery(q); err != nil {
		return Statement{}, err
	}

	b := &builder{c: c}
	b.sb.WriteString("SELECT body FROM " + c.cfg.Table)
	b.where(q.Entity, q.Condition)

	// MANDATORY: key tiebreaker keeps ordering deterministic
	b.sb.WriteString(" ORDER BY ")
	for _, s := range q.Sorts {
		b.sb.WriteString(b.field(s.Field) + " " + strings.ToUpper(s.Order.String()) + ", ")
	}
	b.sb.WriteString("id ASC COLLATE BINARY")

	switch {
	case q.Limit > 0:
		b.sb.WriteString(" LIMIT " + b.param(int64(q.Limit)))
	case q.Skip > 0:
		b.sb.WriteString(" LIMIT -1")
	}
	if q.Skip > 0 {
		b.sb.WriteString(" OFFSET " + b.param(int64(q.Skip)))
	}

	if b.err != nil {
		return Statement{}, b.err
	}

	var fields []string
	if len(q.Fields) > 0 {
		fields = append([]string{c.cfg.IDField}, withoutID(q.Fields, c.cfg.IDField)...)
	}
	return Statement{SQL: b.sb.String(), Params: b.params, Fields: fields}, nil
}

// CompilePredicate converts a condition to a WHERE fragment.
func (c *Compiler) CompilePredicate(cond queryir.Condition) (string, []any, error) {
	if cond == nil {
		return "", nil, queryir.Required(Backend, "condition")
	}
	if err := queryir.Validate(Backend, cond); err != nil {
		return "", nil, err
	}
	b := &builder{c: c}
	b.condition(cond, false)
	if b.err != nil {
		return "", nil, b.err
	}
	return b.sb.String(), b.params, nil
}

// CompileDelete converts a delete query.
func (c *Compiler) CompileDelete(d queryir.DeleteQuery) (Statement, error) {
	if err := capabilities.CheckDelete(d); err != nil {
		return Statement{}, err
	}
	b := &builder{c: c}
	b.sb.WriteString("DELETE FROM " + c.cfg.Table)
	b.where(d.Entity, d.Condition)
	if b.err != nil {
		return Statement{}, b.err
	}
	return Statement{SQL: b.sb.String(), Params: b.params}, nil
}

// CompileInsert converts an entity into an upsert keyed by collection and
// identifier element.
func (c *Compiler) CompileInsert(e *ir.Entity) (Statement, error) {
	if e == nil {
		return Statement{}, queryir.Required(Backend, "entity")
	}
	id, ok := e.Find(c.cfg.IDField)
	if !ok {
		return Statement{}, queryir.Required(Backend, c.cfg.IDField+" element")
	}
	key, err := c.key(id.Value())
	if err != nil {
		return Statement{}, err
	}

	doc, err := c.codec.ToNative(e)
	if err != nil {
		return Statement{}, err
	}
	body, err := ir.MarshalCanonical(doc)
	if err != nil {
		return Statement{}, queryir.Invalid(Backend, "insert", "encode %s: %v", e.Name(), err)
	}

	return Statement{
		SQL: "INSERT INTO " + c.cfg.Table + " (collection, id, body) VALUES (?, ?, ?)" +
			" ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body",
		Params: []any{e.Name(), key, string(body)},
	}, nil
}

// Decode converts a stored body into an entity. Integral numbers decode as
// int64 and the rest as float64.
func (c *Compiler) Decode(collection, body string) (*ir.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s body: %w", collection, err)
	}
	native, _ := normalizeNumbers(doc).(map[string]any)
	return c.codec.FromNative(collection, native)
}

// Project keeps only the named elements of e. An empty list keeps all.
func Project(e *ir.Entity, fields []string) *ir.Entity {
	if len(fields) == 0 {
		return e
	}
	out := ir.NewEntity(e.Name())
	for _, f := range fields {
		if el, ok := e.Find(f); ok {
			out.Add(el)
		}
	}
	return out
}

func (c *Compiler) key(v ir.Value) (string, error) {
	s, ok := v.(ir.Scalar)
	if !ok || s.IsNull() {
		return "", queryir.Invalid(Backend, "key", "%s must be a scalar, got %s", c.cfg.IDField, ir.String(v))
	}
	switch native := c.codec.Scalar(s.Get()).(type) {
	case string:
		return native, nil
	case int64:
		return strconv.FormatInt(native, 10), nil
	default:
		return fmt.Sprint(native), nil
	}
}

func withoutID(fields []string, id string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != id {
			out = append(out, f)
		}
	}
	return out
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	}
	return v
}

// builder accumulates statement text and parameters.
type builder struct {
	c      *Compiler
	sb     strings.Builder
	params []any
	err    error
}

func (b *builder) param(v any) string {
	b.params = append(b.params, v)
	return "?"
}

// field addresses a body field. Dotted names walk into sub-records.
func (b *builder) field(name string) string {
	if name == b.c.cfg.IDField {
		return "id"
	}
	var path strings.Builder
	path.WriteString("$")
	for _, seg := range strings.Split(name, ".") {
		path.WriteString(`."` + strings.ReplaceAll(seg, `"`, `\"`) + `"`)
	}
	return "json_extract(body, '" + strings.ReplaceAll(path.String(), "'", "''") + "')"
}

func (b *builder) where(entity string, cond queryir.Condition) {
	b.sb.WriteString(" WHERE collection = " + b.param(entity))
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

	if op == queryir.OpIn {
		list, _ := el.Value().(ir.List)
		placeholders := make([]string, len(list))
		for i, item := range list {
			placeholders[i] = b.value(item)
		}
		b.sb.WriteString(field + " IN (" + strings.Join(placeholders, ", ") + ")")
		return
	}

	if s, ok := el.Value().(ir.Scalar); ok && s.IsNull() && op == queryir.OpEquals {
		b.sb.WriteString(field + " IS NULL")
		return
	}
	b.sb.WriteString(field + comparators[op] + b.value(el.Value()))
}

// value binds v. Sub-records and lists compare as canonical JSON text,
// which is how json_extract returns them from a canonical body.
func (b *builder) value(v ir.Value) string {
	switch v.(type) {
	case ir.List, ir.Nested:
		data, err := ir.MarshalCanonical(b.c.codec.NativeValue(v))
		if err != nil && b.err == nil {
			b.err = queryir.Invalid(Backend, "value", "encode %s: %v", ir.String(v), err)
		}
		return "json(" + b.param(string(data)) + ")"
	}
	return b.param(b.c.codec.NativeValue(v))
}
