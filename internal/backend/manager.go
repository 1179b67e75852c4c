package backend

import (
	"context"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

// Manager executes compiled statements against a live store and maps rows
// back into entities. Compile errors are returned before any I/O; store
// failures are returned as *CommunicationError.
type Manager interface {
	Kind() Kind
	Insert(ctx context.Context, entities ...*ir.Entity) error
	Select(ctx context.Context, q queryir.Query) (Result, error)
	Delete(ctx context.Context, d queryir.DeleteQuery) (int64, error)
	Close() error
}

// Result is one page of a select. Cursor is nil when the store does not
// page or when no further pages exist.
type Result struct {
	Entities []*ir.Entity
	Cursor   queryir.Cursor
}

// Next returns the cursor for the following page, treating a nil or empty
// cursor as the end of results.
func (r Result) Next() (queryir.Cursor, bool) {
	if r.Cursor == nil || r.Cursor.Empty() {
		return nil, false
	}
	return r.Cursor, true
}

// Project trims entities read in full down to the selected fields, keeping
// the identifier element first. Entities are replaced in place. An empty
// field list keeps everything.
func Project(entities []*ir.Entity, fields []string, id string) []*ir.Entity {
	if len(fields) == 0 {
		return entities
	}
	for i, e := range entities {
		out := ir.NewEntity(e.Name())
		if el, ok := e.Find(id); ok {
			out.Add(el)
		}
		for _, f := range fields {
			if f == id {
				continue
			}
			if el, ok := e.Find(f); ok {
				out.Add(el)
			}
		}
		entities[i] = out
	}
	return entities
}
