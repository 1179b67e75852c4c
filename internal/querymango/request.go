package querymango

import (
	"fmt"

	"github.com/roach88/polystore/internal/ir"
)

// DefaultPageSize is the limit CouchDB applies to a _find without one.
const DefaultPageSize = 25

// Request is a Mango _find body.
type Request struct {
	Selector map[string]any
	Fields   []string
	Sort     []map[string]string
	Limit    uint64
	Skip     uint64
	Bookmark Bookmark
}

// Native returns the request as a native tree. Zero-valued optional
// members are omitted.
func (r Request) Native() map[string]any {
	body := map[string]any{"selector": r.Selector}
	if len(r.Fields) > 0 {
		fields := make([]any, len(r.Fields))
		for i, f := range r.Fields {
			fields[i] = f
		}
		body["fields"] = fields
	}
	if len(r.Sort) > 0 {
		sort := make([]any, len(r.Sort))
		for i, s := range r.Sort {
			m := make(map[string]any, len(s))
			for k, v := range s {
				m[k] = v
			}
			sort[i] = m
		}
		body["sort"] = sort
	}
	if r.Limit > 0 {
		body["limit"] = r.Limit
	}
	if r.Skip > 0 {
		body["skip"] = r.Skip
	}
	if !r.Bookmark.Empty() {
		body["bookmark"] = string(r.Bookmark)
	}
	return body
}

// MarshalJSON renders the request as canonical JSON.
func (r Request) MarshalJSON() ([]byte, error) {
	data, err := ir.MarshalCanonical(r.Native())
	if err != nil {
		return nil, fmt.Errorf("mango request: %w", err)
	}
	return data, nil
}

// Response is the subset of a _find response the compiler understands.
type Response struct {
	Docs     []map[string]any `json:"docs"`
	Bookmark Bookmark         `json:"bookmark"`
	Warning  string           `json:"warning,omitempty"`
}

// Next returns the bookmark for the following page, or an empty bookmark
// when the page was empty or short and no further results exist. A zero
// limit stands for DefaultPageSize.
func (r Response) Next(limit uint64) Bookmark {
	if limit == 0 {
		limit = DefaultPageSize
	}
	if len(r.Docs) == 0 || uint64(len(r.Docs)) < limit {
		return ""
	}
	return r.Bookmark
}
