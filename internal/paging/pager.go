// Package paging tracks cursor-based pagination across query executions.
//
// A Pager moves through three states:
//
//	Fresh --(page with token)--> Paged --(page without token)--> Exhausted
//	  |                            ^  |
//	  +--(page without token)------|--+--> Exhausted
//	                               +--(page with token)
//
// Tokens are stored and replayed verbatim; the pager never inspects them.
package paging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/polystore/internal/queryir"
)

// ErrExhausted is returned when a pager that has seen the last page is
// asked for another.
var ErrExhausted = errors.New("paging: no more pages")

// State is the pager position.
type State int

const (
	Fresh State = iota
	Paged
	Exhausted
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Paged:
		return "paged"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Pager is safe for concurrent use.
type Pager struct {
	mu     sync.Mutex
	state  State
	cursor queryir.Cursor
	pages  int
}

// New returns a Fresh pager.
func New() *Pager {
	return &Pager{}
}

// State returns the current state.
func (p *Pager) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cursor returns the token for the next page, or nil when Fresh or
// Exhausted.
func (p *Pager) Cursor() queryir.Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Pages returns the number of pages recorded by Advance.
func (p *Pager) Pages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages
}

// Apply returns q positioned at the next page. A Fresh pager clears any
// cursor on q; a Paged pager replays its stored token.
func (p *Pager) Apply(q queryir.Query) (queryir.Query, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case Exhausted:
		return queryir.Query{}, ErrExhausted
	case Paged:
		return q.WithCursor(p.cursor), nil
	}
	return q.WithCursor(nil), nil
}

// Advance records the token returned with a page. A nil or empty token
// means the page was the last one.
func (p *Pager) Advance(next queryir.Cursor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pages++
	if next == nil || next.Empty() {
		p.state = Exhausted
		p.cursor = nil
		return
	}
	p.state = Paged
	p.cursor = next
}

// Fetch executes one page of a query.
type Fetch[T any] func(ctx context.Context, q queryir.Query) ([]T, queryir.Cursor, error)

// Next fetches the next page and advances the pager.
func Next[T any](ctx context.Context, p *Pager, q queryir.Query, fetch Fetch[T]) ([]T, error) {
	pageQuery, err := p.Apply(q)
	if err != nil {
		return nil, err
	}
	items, next, err := fetch(ctx, pageQuery)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", p.Pages()+1, err)
	}
	p.Advance(next)
	return items, nil
}

// Drain fetches pages until the backend stops returning a token or
// maxPages pages have been read. maxPages <= 0 means no limit.
func Drain[T any](ctx context.Context, q queryir.Query, maxPages int, fetch Fetch[T]) ([]T, error) {
	p := New()
	var all []T
	for p.State() != Exhausted {
		if maxPages > 0 && p.Pages() >= maxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return all, err
		}
		items, err := Next(ctx, p, q, fetch)
		if err != nil {
			return all, err
		}
		all = append(all, items...)
	}
	return all, nil
}
