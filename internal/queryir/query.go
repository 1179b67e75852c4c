package queryir

import (
	"fmt"
	"slices"
)

// Order is a sort direction.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Sort orders results by one field.
type Sort struct {
	Field string
	Order Order
}

// Asc sorts by field ascending.
func Asc(field string) Sort { return Sort{Field: field, Order: Ascending} }

// Desc sorts by field descending.
func Desc(field string) Sort { return Sort{Field: field, Order: Descending} }

// Cursor is an opaque, backend-produced continuation token. Compilers
// accept only their own cursor type and reject the rest with
// FOREIGN_CURSOR.
type Cursor interface {
	// Backend names the compiler that produced the cursor.
	Backend() string

	// Empty reports whether the token signals that no more pages exist.
	Empty() bool

	// String renders the token verbatim for logs and CLI output.
	String() string
}

// Query selects elements of one entity.
//
// Semantics:
//
//	SELECT <fields> FROM <entity> WHERE <condition>
//	ORDER BY <sorts> LIMIT <limit> OFFSET <skip>
//
// Limit 0 means unbounded and Skip 0 means no offset. An empty Fields list
// selects every element. Cursor resumes a previous page on backends that
// page by token.
type Query struct {
	Entity    string
	Condition Condition // nil = no filter
	Fields    []string
	Sorts     []Sort
	Limit     uint64
	Skip      uint64
	Cursor    Cursor
}

// WithCursor returns a copy of q that resumes from c.
func (q Query) WithCursor(c Cursor) Query {
	q.Fields = slices.Clone(q.Fields)
	q.Sorts = slices.Clone(q.Sorts)
	q.Cursor = c
	return q
}

// DeleteQuery removes the elements of one entity that match Condition, or
// every row when Condition is nil.
type DeleteQuery struct {
	Entity    string
	Condition Condition
}

// Check validates the query shape and its condition.
func (q Query) Check(backend string) error {
	if q.Entity == "" {
		return Required(backend, "entity name")
	}
	for i, s := range q.Sorts {
		if s.Field == "" {
			return Required(backend, fmt.Sprintf("sort[%d] field", i))
		}
	}
	return Validate(backend, q.Condition)
}

// Check validates the delete shape and its condition.
func (d DeleteQuery) Check(backend string) error {
	if d.Entity == "" {
		return Required(backend, "entity name")
	}
	return Validate(backend, d.Condition)
}

// Builder assembles a Query fluently:
//
//	q, err := queryir.Select("name", "age").From("Person").
//	    Where(queryir.Gt("age", 10)).OrderBy(queryir.Desc("age")).Limit(5).Build()
type Builder struct {
	q Query
}

// Select starts a query projecting fields. No fields selects everything.
func Select(fields ...string) *Builder {
	return &Builder{q: Query{Fields: slices.Clone(fields)}}
}

// From sets the entity name.
func (b *Builder) From(entity string) *Builder {
	b.q.Entity = entity
	return b
}

// Where sets the condition. Calling Where again conjoins with the previous
// condition.
func (b *Builder) Where(c Condition) *Builder {
	if b.q.Condition == nil {
		b.q.Condition = c
	} else if c != nil {
		b.q.Condition = AllOf(b.q.Condition, c)
	}
	return b
}

// OrderBy appends sorts in caller order.
func (b *Builder) OrderBy(sorts ...Sort) *Builder {
	b.q.Sorts = append(b.q.Sorts, sorts...)
	return b
}

// Limit caps the number of results. Zero means unbounded.
func (b *Builder) Limit(n uint64) *Builder {
	b.q.Limit = n
	return b
}

// Skip offsets the first result. Zero means no offset.
func (b *Builder) Skip(n uint64) *Builder {
	b.q.Skip = n
	return b
}

// After resumes from a cursor.
func (b *Builder) After(c Cursor) *Builder {
	b.q.Cursor = c
	return b
}

// Build returns the query after structural validation.
func (b *Builder) Build() (Query, error) {
	q := b.q.WithCursor(b.q.Cursor)
	if err := q.Check(""); err != nil {
		return Query{}, err
	}
	return q, nil
}

// DeleteBuilder assembles a DeleteQuery fluently.
type DeleteBuilder struct {
	d DeleteQuery
}

// Delete starts a delete query.
func Delete() *DeleteBuilder {
	return &DeleteBuilder{}
}

// From sets the entity name.
func (b *DeleteBuilder) From(entity string) *DeleteBuilder {
	b.d.Entity = entity
	return b
}

// Where sets the condition, conjoining with any previous one.
func (b *DeleteBuilder) Where(c Condition) *DeleteBuilder {
	if b.d.Condition == nil {
		b.d.Condition = c
	} else if c != nil {
		b.d.Condition = AllOf(b.d.Condition, c)
	}
	return b
}

// Build returns the delete query after structural validation.
func (b *DeleteBuilder) Build() (DeleteQuery, error) {
	if err := b.d.Check(""); err != nil {
		return DeleteQuery{}, err
	}
	return b.d, nil
}
