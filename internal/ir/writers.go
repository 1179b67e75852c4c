package ir

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Writer is one scalar coercion strategy. Test selects the values it
// handles and Write produces the backend-representable form.
type Writer struct {
	Name  string
	Test  func(v any) bool
	Write func(v any) any
}

// Writers is an ordered registry of Writer strategies. The first writer
// whose Test matches a value writes it; unmatched values pass through
// unchanged. A Writers value is never mutated after construction and is
// safe for concurrent use.
type Writers struct {
	list []Writer
}

// NewWriters builds a registry from the given writers, in order.
func NewWriters(ws ...Writer) *Writers {
	return &Writers{list: slices.Clone(ws)}
}

// TimeLayout is RFC 3339 in UTC with a fixed nine-digit fraction, so the
// text order of written times is their chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultWriters returns the built-in registry:
//   - time.Time as TimeLayout, in UTC
//   - time.Duration as int64 nanoseconds
//   - uuid.UUID as its canonical string
func DefaultWriters() *Writers {
	return NewWriters(
		WriterFor("time", func(t time.Time) any {
			return t.UTC().Format(TimeLayout)
		}),
		WriterFor("duration", func(d time.Duration) any {
			return int64(d)
		}),
		WriterFor("uuid", func(u uuid.UUID) any {
			return u.String()
		}),
	)
}

// WriterFor builds a Writer matching values of dynamic type T.
func WriterFor[T any](name string, write func(T) any) Writer {
	return Writer{
		Name: name,
		Test: func(v any) bool {
			_, ok := v.(T)
			return ok
		},
		Write: func(v any) any {
			return write(v.(T))
		},
	}
}

// With returns a new registry with ws appended after the existing writers.
func (r *Writers) With(ws ...Writer) *Writers {
	if r == nil {
		return NewWriters(ws...)
	}
	return &Writers{list: append(slices.Clone(r.list), ws...)}
}

// Prepend returns a new registry with ws placed ahead of the existing
// writers, so they take precedence.
func (r *Writers) Prepend(ws ...Writer) *Writers {
	if r == nil {
		return NewWriters(ws...)
	}
	return &Writers{list: append(slices.Clone(ws), r.list...)}
}

// Convert applies the first matching writer to v. A nil registry returns v.
func (r *Writers) Convert(v any) any {
	if r == nil || v == nil {
		return v
	}
	for _, w := range r.list {
		if w.Test(v) {
			return widen(w.Write(v))
		}
	}
	return v
}

// Len returns the number of registered writers.
func (r *Writers) Len() int {
	if r == nil {
		return 0
	}
	return len(r.list)
}

// Names returns writer names in precedence order.
func (r *Writers) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.list))
	for i, w := range r.list {
		names[i] = w.Name
	}
	return names
}
