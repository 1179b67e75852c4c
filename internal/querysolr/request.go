package querysolr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/polystore/internal/ir"
)

// Request is a compiled select request.
type Request struct {
	Q          string
	Fields     []string
	Sort       []string
	Start      uint64
	Rows       uint64
	CursorMark CursorMark
}

// Values encodes the request as select handler parameters.
func (r Request) Values() url.Values {
	v := url.Values{}
	v.Set("q", r.Q)
	if len(r.Fields) > 0 {
		v.Set("fl", strings.Join(r.Fields, ","))
	}
	if len(r.Sort) > 0 {
		v.Set("sort", strings.Join(r.Sort, ","))
	}
	if r.Start > 0 {
		v.Set("start", strconv.FormatUint(r.Start, 10))
	}
	if r.Rows > 0 {
		v.Set("rows", strconv.FormatUint(r.Rows, 10))
	}
	if !r.CursorMark.Empty() {
		v.Set("cursorMark", string(r.CursorMark))
	}
	return v
}

// String renders the encoded parameters in key order.
func (r Request) String() string {
	return r.Values().Encode()
}

// DeleteRequest removes every document matching Query.
type DeleteRequest struct {
	Query string
}

// MarshalJSON renders the update handler body.
func (d DeleteRequest) MarshalJSON() ([]byte, error) {
	data, err := ir.MarshalCanonical(map[string]any{
		"delete": map[string]any{"query": d.Query},
	})
	if err != nil {
		return nil, fmt.Errorf("solr delete: %w", err)
	}
	return data, nil
}

// Response is the subset of a select response the compiler understands.
type Response struct {
	Docs           []map[string]any
	NumFound       uint64
	NextCursorMark CursorMark
}

// Next returns the mark for the following page. Solr signals the last page
// by returning the mark it was sent.
func (r Response) Next(sent CursorMark) CursorMark {
	if r.NextCursorMark == sent {
		return ""
	}
	return r.NextCursorMark
}
