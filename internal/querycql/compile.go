// Package querycql compiles queryir conditions and queries into
// parameterized CQL statements for column-family stores.
//
// CQL has no disjunction or negation and no offset, so Or, Not and Skip
// are rejected with UNSUPPORTED_OPERATION. Paging uses the driver's
// opaque paging state, carried as a PagingState cursor.
package querycql

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Backend is the name reported in errors and cursors.
const Backend = "cassandra"

// Config controls statement shape.
type Config struct {
	// Keyspace qualifies bare entity names (keyspace.table).
	Keyspace string `mapstructure:"keyspace"`

	// AllowFiltering appends ALLOW FILTERING to selects with a condition.
	AllowFiltering bool `mapstructure:"allow_filtering"`

	// FetchSize is the page size handed to the driver.
	FetchSize int `mapstructure:"fetch_size"`
}

// DefaultConfig returns the default statement settings.
func DefaultConfig() Config {
	return Config{
		FetchSize: 5000,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.FetchSize < 1 {
		c.FetchSize = 5000
	}
}

// Statement is a compiled CQL statement.
type Statement struct {
	CQL         string
	Params      []any
	PagingState PagingState
	FetchSize   int
}

// PagingState is the driver's opaque continuation token.
type PagingState []byte

func (p PagingState) Backend() string { return Backend }
func (p PagingState) Empty() bool     { return len(p) == 0 }
func (p PagingState) String() string  { return base64.StdEncoding.EncodeToString(p) }

// ParsePagingState decodes a token rendered by PagingState.String.
func ParsePagingState(s string) (PagingState, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse paging state: %w", err)
	}
	return PagingState(b), nil
}

var capabilities = queryir.Capabilities{
	Backend: Backend,
	In:      true,
	Like:    true,
	Nested:  true,
	Sort:    true,
	Cursor:  true,
}

var operators = map[queryir.Operator]string{
	queryir.OpEquals:        "=",
	queryir.OpGreaterThan:   ">",
	queryir.OpGreaterEquals: ">=",
	queryir.OpLesserThan:    "<",
	queryir.OpLesserEquals:  "<=",
	queryir.OpLike:          " LIKE ",
}

// Compiler compiles queryir values to CQL. It is safe for concurrent use.
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

// Capabilities reports what CQL can express.
func (c *Compiler) Capabilities() queryir.Capabilities { return capabilities }

// Compile converts a query to a parameterized SELECT.
func (c *Compiler) Compile(q queryir.Query) (Statement, error) {
	if err := capabilities.CheckQuery(q); err != nil {
		return Statement{}, err
	}

	var paging PagingState
	if q.Cursor != nil {
		ps, ok := q.Cursor.(PagingState)
		if !ok {
			return Statement{}, queryir.Foreign(Backend, q.Cursor)
		}
		paging = ps
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(q.Fields) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(q.Fields, ","))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(c.table(q.Entity))

	var params []any
	if q.Condition != nil {
		where, whereParams, err := c.predicate(q.Condition)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = whereParams
	}

	if len(q.Sorts) > 0 {
		parts := make([]string, len(q.Sorts))
		for i, s := range q.Sorts {
			parts[i] = s.Field + " " + strings.ToUpper(s.Order.String())
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ","))
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	if c.cfg.AllowFiltering && q.Condition != nil {
		sb.WriteString(" ALLOW FILTERING")
	}

	return Statement{
		CQL:         sb.String(),
		Params:      params,
		PagingState: paging,
		FetchSize:   c.cfg.FetchSize,
	}, nil
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
	if err := capabilities.CheckCondition(cond); err != nil {
		return "", nil, err
	}
	return c.predicate(cond)
}

// CompileDelete converts a delete query. Without a condition the table is
// truncated.
func (c *Compiler) CompileDelete(d queryir.DeleteQuery) (Statement, error) {
	if err := capabilities.CheckDelete(d); err != nil {
		return Statement{}, err
	}
	if d.Condition == nil {
		return Statement{CQL: "TRUNCATE " + c.table(d.Entity)}, nil
	}
	where, params, err := c.predicate(d.Condition)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		CQL:    "DELETE FROM " + c.table(d.Entity) + " WHERE " + where,
		Params: params,
	}, nil
}

// CompileInsert converts an entity to an INSERT. A positive ttl adds
// USING TTL in whole seconds.
func (c *Compiler) CompileInsert(e *ir.Entity, ttl time.Duration) (Statement, error) {
	if e == nil {
		return Statement{}, queryir.Required(Backend, "entity")
	}
	if e.Len() == 0 {
		return Statement{}, queryir.Required(Backend, "entity elements")
	}

	names := make([]string, 0, e.Len())
	marks := make([]string, 0, e.Len())
	params := make([]any, 0, e.Len())
	for _, el := range e.Elements() {
		names = append(names, el.Name())
		marks = append(marks, "?")
		params = append(params, c.codec.NativeValue(el.Value()))
	}

	cql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.table(e.Name()),
		strings.Join(names, ","),
		strings.Join(marks, ","))
	if ttl > 0 {
		cql += fmt.Sprintf(" USING TTL %d", int64(ttl/time.Second))
	}

	return Statement{CQL: cql, Params: params}, nil
}

// Decode converts a result row, as scanned into a map by the driver, into
// an entity named after the table it was read from.
func (c *Compiler) Decode(entity string, row map[string]any) (*ir.Entity, error) {
	if row == nil {
		return nil, queryir.Required(Backend, "row")
	}
	e, err := c.codec.FromNative(entity, row)
	if err != nil {
		return nil, fmt.Errorf("%s: decode row: %w", Backend, err)
	}
	return e, nil
}

func (c *Compiler) table(entity string) string {
	if c.cfg.Keyspace == "" || strings.Contains(entity, ".") {
		return entity
	}
	return c.cfg.Keyspace + "." + entity
}

// predicate assumes cond has already passed validation and capability
// checks.
func (c *Compiler) predicate(cond queryir.Condition) (string, []any, error) {
	op, el, ok := queryir.Leaf(cond)
	if !ok {
		and, isAnd := cond.(queryir.And)
		if !isAnd {
			return "", nil, queryir.Unsupported(Backend, fmt.Sprintf("%T", cond))
		}
		parts := make([]string, 0, len(and.Conditions))
		var params []any
		for _, child := range and.Conditions {
			sql, childParams, err := c.predicate(child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, childParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	}

	if op == queryir.OpIn {
		list := el.Value().(ir.List)
		marks := make([]string, len(list))
		params := make([]any, len(list))
		for i, v := range list {
			marks[i] = "?"
			params[i] = c.codec.NativeValue(v)
		}
		return el.Name() + " IN (" + strings.Join(marks, ",") + ")", params, nil
	}

	return el.Name() + operators[op] + "?", []any{c.codec.NativeValue(el.Value())}, nil
}
