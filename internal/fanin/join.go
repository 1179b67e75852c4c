// Package fanin joins two concurrent sub-requests into one result.
//
// Managers use it when a single logical query needs two backend calls, for
// example a key lookup plus a filtered query for an Or condition that mixes
// key predicates with other predicates.
package fanin

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Request is one side of a join.
type Request[T any] func(ctx context.Context) ([]T, error)

// Join runs left and right concurrently. It returns left's results followed
// by right's once both succeed. The first failure is returned as soon as it
// happens, without waiting for the other side, and cancels the context
// handed to the other side.
func Join[T any](ctx context.Context, left, right Request[T]) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	type outcome struct {
		left bool
		out  []T
		err  error
	}
	results := make(chan outcome, 2)
	run := func(isLeft bool, side string, req Request[T]) {
		g.Go(func() error {
			out, err := req(gctx)
			if err != nil {
				err = fmt.Errorf("%s: %w", side, err)
			}
			results <- outcome{left: isLeft, out: out, err: err}
			return err
		})
	}
	run(true, "left", left)
	run(false, "right", right)
	go func() {
		_ = g.Wait()
		cancel()
	}()

	var leftOut, rightOut []T
	for range 2 {
		r := <-results
		if r.err != nil {
			cancel()
			return nil, r.err
		}
		if r.left {
			leftOut = r.out
		} else {
			rightOut = r.out
		}
	}

	joined := make([]T, 0, len(leftOut)+len(rightOut))
	joined = append(joined, leftOut...)
	return append(joined, rightOut...), nil
}

// JoinAsync runs Join in the background and invokes callback exactly once
// with the outcome. The returned channel closes after callback returns.
func JoinAsync[T any](ctx context.Context, left, right Request[T], callback func([]T, error)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		callback(Join(ctx, left, right))
	}()
	return done
}

// Dedupe drops items whose key has already been seen, keeping the first
// occurrence. It is used after Join when both sides may return the same
// record.
func Dedupe[T any](items []T, key func(T) (string, error)) ([]T, error) {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for i, item := range items {
		k, err := key(item)
		if err != nil {
			return nil, fmt.Errorf("dedupe item %d: %w", i, err)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}
