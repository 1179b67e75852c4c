package fanin

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values[T any](vs ...T) Request[T] {
	return func(context.Context) ([]T, error) { return vs, nil }
}

func TestJoinOrdersLeftThenRight(t *testing.T) {
	slowLeft := func(ctx context.Context) ([]int, error) {
		time.Sleep(20 * time.Millisecond)
		return []int{1, 2}, nil
	}

	out, err := Join[int](context.Background(), slowLeft, values(3, 4))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, out)
}

func TestJoinEmptySides(t *testing.T) {
	out, err := Join(context.Background(), values[string](), values("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out)
}

func TestJoinFailsFastAndCancelsSibling(t *testing.T) {
	boom := errors.New("boom")
	var siblingCancelled atomic.Bool

	failing := func(context.Context) ([]int, error) { return nil, boom }
	blocking := func(ctx context.Context) ([]int, error) {
		select {
		case <-ctx.Done():
			siblingCancelled.Store(true)
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return []int{1}, nil
		}
	}

	start := time.Now()
	out, err := Join[int](context.Background(), blocking, failing)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "right")
	assert.Nil(t, out)
	assert.True(t, siblingCancelled.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestJoinFailsWithoutWaitingForStubbornSibling(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	defer close(release)

	stubborn := func(context.Context) ([]int, error) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		return []int{1}, nil
	}
	failing := func(context.Context) ([]int, error) { return nil, boom }

	start := time.Now()
	out, err := Join[int](context.Background(), stubborn, failing)

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestJoinLeftFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := Join[int](context.Background(), func(context.Context) ([]int, error) { return nil, boom }, values(1))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "left")
}

func TestJoinAsyncCallbackOnce(t *testing.T) {
	var calls atomic.Int32
	var got []int
	var gotErr error

	done := JoinAsync(context.Background(), values(1), values(2), func(out []int, err error) {
		calls.Add(1)
		got, gotErr = out, err
	})
	<-done

	assert.Equal(t, int32(1), calls.Load())
	require.NoError(t, gotErr)
	assert.Equal(t, []int{1, 2}, got)
}

func TestJoinAsyncCallbackOnceOnFailure(t *testing.T) {
	var calls atomic.Int32
	var gotErr error

	failing := func(context.Context) ([]int, error) { return nil, errors.New("left down") }
	alsoFailing := func(context.Context) ([]int, error) { return nil, errors.New("right down") }

	<-JoinAsync[int](context.Background(), failing, alsoFailing, func(_ []int, err error) {
		calls.Add(1)
		gotErr = err
	})

	assert.Equal(t, int32(1), calls.Load())
	assert.Error(t, gotErr)
}

func TestDedupe(t *testing.T) {
	out, err := Dedupe([]int{1, 2, 1, 3, 2}, func(n int) (string, error) { return strconv.Itoa(n), nil })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)

	_, err = Dedupe([]int{1}, func(int) (string, error) { return "", errors.New("no key") })
	assert.ErrorContains(t, err, "dedupe item 0")
}
