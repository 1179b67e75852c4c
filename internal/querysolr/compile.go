// Package querysolr compiles queryir conditions and queries into Solr
// standard query parser syntax.
package querysolr

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Backend is the name reported in errors and cursors.
const Backend = "solr"

// StartMark is the cursor mark that begins deep paging.
const StartMark = "*"

// Config controls index conventions.
type Config struct {
	// EntityField holds the entity name on every document.
	EntityField string `mapstructure:"entity_field"`

	// IDField is the uniqueKey. It is always projected and breaks sort ties
	// when deep paging.
	IDField string `mapstructure:"id_field"`

	// DeepPaging starts fresh queries with the cursor mark "*" so every
	// page after the first can resume from a CursorMark.
	DeepPaging bool `mapstructure:"deep_paging"`
}

// DefaultConfig returns the index conventions used by the documents this
// package writes.
func DefaultConfig() Config {
	return Config{
		EntityField: "_entity",
		IDField:     "id",
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
}

// CursorMark is Solr's deep-paging token.
type CursorMark string

func (m CursorMark) Backend() string { return Backend }
func (m CursorMark) Empty() bool     { return m == "" }
func (m CursorMark) String() string  { return string(m) }

var capabilities = queryir.Capabilities{
	Backend: Backend,
	Or:      true,
	Not:     true,
	In:      true,
	Like:    true,
	Nested:  false,
	Skip:    true,
	Sort:    true,
	Cursor:  true,
}

// Compiler compiles queryir values to Solr requests. It is safe for
// concurrent use.
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

// Capabilities reports what Solr can express.
func (c *Compiler) Capabilities() queryir.Capabilities { return capabilities }

// Compile converts a query to a select request.
func (c *Compiler) Compile(q queryir.Query) (Request, error) {
	if err := capabilities.CheckQuery(q); err != nil {
		return Request{}, err
	}

	req := Request{
		Q:      c.entityQuery(q.Entity, q.Condition),
		Fields: c.projection(q.Fields),
		Rows:   q.Limit,
		Start:  q.Skip,
	}
	for _, s := range q.Sorts {
		req.Sort = append(req.Sort, s.Field+" "+s.Order.String())
	}

	switch {
	case q.Cursor != nil:
		mark, ok := q.Cursor.(CursorMark)
		if !ok {
			return Request{}, queryir.Foreign(Backend, q.Cursor)
		}
		req.CursorMark = mark
	case c.cfg.DeepPaging:
		req.CursorMark = StartMark
	}

	if !req.CursorMark.Empty() {
		if req.Start > 0 {
			return Request{}, queryir.Invalid(Backend, "skip", "skip cannot be combined with a cursor mark")
		}
		req.Sort = c.withTiebreak(req.Sort)
	}

	return req, nil
}

// CompilePredicate converts a condition to a query string without the
// entity filter.
func (c *Compiler) CompilePredicate(cond queryir.Condition) (string, error) {
	if cond == nil {
		return "", queryir.Required(Backend, "condition")
	}
	if err := queryir.Validate(Backend, cond); err != nil {
		return "", err
	}
	if err := capabilities.CheckCondition(cond); err != nil {
		return "", err
	}
	return c.clause(cond, false), nil
}

// CompileDelete converts a delete query to a delete-by-query request.
func (c *Compiler) CompileDelete(d queryir.DeleteQuery) (DeleteRequest, error) {
	if err := capabilities.CheckDelete(d); err != nil {
		return DeleteRequest{}, err
	}
	return DeleteRequest{Query: c.entityQuery(d.Entity, d.Condition)}, nil
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

// Decode converts a returned document back into an entity.
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

func (c *Compiler) entityQuery(entity string, cond queryir.Condition) string {
	byEntity := c.cfg.EntityField + ":" + Escape(entity)
	if cond == nil {
		return byEntity
	}
	if and, ok := cond.(queryir.And); ok {
		parts := []string{byEntity}
		for _, child := range and.Conditions {
			parts = append(parts, c.clause(child, true))
		}
		return strings.Join(parts, " AND ")
	}
	return byEntity + " AND " + c.clause(cond, true)
}

func (c *Compiler) projection(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := []string{c.cfg.IDField}
	for _, f := range fields {
		if f != c.cfg.IDField {
			out = append(out, f)
		}
	}
	return out
}

func (c *Compiler) withTiebreak(sorts []string) []string {
	for _, s := range sorts {
		if strings.HasPrefix(s, c.cfg.IDField+" ") {
			return sorts
		}
	}
	return append(sorts, c.cfg.IDField+" asc")
}

// clause renders cond. Compound children are parenthesized when nested is
// set. A bare "-clause" is only kept where Lucene accepts a pure negation:
// at the top level and as a conjunct.
func (c *Compiler) clause(cond queryir.Condition, nested bool) string {
	if op, el, ok := queryir.Leaf(cond); ok {
		return c.leaf(op, el)
	}

	var out string
	switch v := cond.(type) {
	case queryir.Not:
		return "-" + matchAll(c.clause(v.Condition, true))
	case queryir.And:
		parts := c.parts(v.Conditions)
		if nested && allNegated(parts) {
			parts = append([]string{"*:*"}, parts...)
		}
		out = strings.Join(parts, " AND ")
	case queryir.Or:
		parts := c.parts(v.Conditions)
		for i, p := range parts {
			parts[i] = matchAll(p)
		}
		out = strings.Join(parts, " OR ")
	}
	if nested {
		return "(" + out + ")"
	}
	return out
}

func (c *Compiler) parts(cs []queryir.Condition) []string {
	parts := make([]string, len(cs))
	for i, child := range cs {
		parts[i] = c.clause(child, true)
	}
	return parts
}

// matchAll anchors a pure negation to the full document set.
func matchAll(s string) string {
	if strings.HasPrefix(s, "-") {
		return "(*:* " + s + ")"
	}
	return s
}

func allNegated(parts []string) bool {
	for _, p := range parts {
		if !strings.HasPrefix(p, "-") {
			return false
		}
	}
	return len(parts) > 0
}

func (c *Compiler) leaf(op queryir.Operator, el ir.Element) string {
	field := Escape(el.Name())
	value := c.codec.NativeValue(el.Value())

	switch op {
	case queryir.OpEquals:
		if value == nil {
			return "-" + field + ":[* TO *]"
		}
		if list, ok := value.([]any); ok {
			return field + ":(" + c.terms(list, " AND ") + ")"
		}
		return field + ":" + c.term(value)
	case queryir.OpGreaterThan:
		return field + ":{" + c.term(value) + " TO *]"
	case queryir.OpGreaterEquals:
		return field + ":[" + c.term(value) + " TO *]"
	case queryir.OpLesserThan:
		return field + ":[* TO " + c.term(value) + "}"
	case queryir.OpLesserEquals:
		return field + ":[* TO " + c.term(value) + "]"
	case queryir.OpIn:
		list, _ := value.([]any)
		return field + ":(" + c.terms(list, " OR ") + ")"
	case queryir.OpLike:
		pattern, _ := value.(string)
		return field + ":" + wildcard(pattern)
	}
	return field + ":" + c.term(value)
}

func (c *Compiler) terms(values []any, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = c.term(v)
	}
	return strings.Join(parts, sep)
}

// term renders one scalar. Nested values never reach here because the
// capability check rejects them.
func (c *Compiler) term(v any) string {
	switch val := v.(type) {
	case nil:
		return `""`
	case string:
		return Escape(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []byte:
		return Escape(base64.StdEncoding.EncodeToString(val))
	}
	return Escape(fmt.Sprint(v))
}

// specials are the characters the standard query parser treats as syntax.
const specials = `+-&|!(){}[]^"~*?:\/`

// Escape backslash-escapes query syntax and whitespace in s.
func Escape(s string) string {
	if s == "" {
		return `""`
	}
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) || r == ' ' || r == '\t' || r == '\n' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// wildcard converts a LIKE pattern to a Solr wildcard term.
func wildcard(pattern string) string {
	var sb strings.Builder
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteByte('*')
		case '_':
			sb.WriteByte('?')
		default:
			if strings.ContainsRune(specials, r) || r == ' ' {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
