package ir

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type money struct {
	cents    int64
	currency string
}

func TestDefaultWriters(t *testing.T) {
	w := DefaultWriters()
	assert.Equal(t, []string{"time", "duration", "uuid"}, w.Names())

	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "2024-03-01T15:30:00.000000500Z", w.Convert(ts))
	assert.Equal(t, int64(1500000000), w.Convert(1500*time.Millisecond))

	id := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", w.Convert(id))
}

func TestTimeWriterSortsChronologically(t *testing.T) {
	w := DefaultWriters()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	times := []time.Time{t0, t0.Add(500 * time.Millisecond), t0.Add(time.Second), t0.Add(time.Second + time.Nanosecond)}
	for i := 1; i < len(times); i++ {
		prev, next := w.Convert(times[i-1]).(string), w.Convert(times[i]).(string)
		assert.Less(t, prev, next)
		assert.Len(t, next, len(prev))
	}
	assert.Equal(t, "2024-01-01T00:00:00.000000000Z", w.Convert(t0))
}

func TestWritersUnmatchedPassThrough(t *testing.T) {
	w := DefaultWriters()

	for _, v := range []any{"x", int64(1), 2.5, true, nil, money{cents: 1}} {
		assert.Equal(t, v, w.Convert(v))
	}
}

func TestWritersFirstMatchWins(t *testing.T) {
	upper := Writer{
		Name:  "any-string",
		Test:  func(v any) bool { _, ok := v.(string); return ok },
		Write: func(v any) any { return "first:" + v.(string) },
	}
	second := Writer{
		Name:  "any-string-2",
		Test:  func(v any) bool { _, ok := v.(string); return ok },
		Write: func(v any) any { return "second:" + v.(string) },
	}

	assert.Equal(t, "first:x", NewWriters(upper, second).Convert("x"))
	assert.Equal(t, "second:x", NewWriters(upper).Prepend(second).Convert("x"))
	assert.Equal(t, "first:x", NewWriters(upper).With(second).Convert("x"))
}

func TestWritersWithIsAdditive(t *testing.T) {
	base := DefaultWriters()
	extended := base.With(WriterFor("money", func(m money) any {
		return map[string]any{"cents": m.cents, "currency": m.currency}
	}))

	assert.Equal(t, 3, base.Len())
	assert.Equal(t, 4, extended.Len())
	assert.Equal(t, money{cents: 5}, base.Convert(money{cents: 5}))
	assert.Equal(t,
		map[string]any{"cents": int64(5), "currency": "BRL"},
		extended.Convert(money{cents: 5, currency: "BRL"}))
}

func TestWriterOutputIsWidened(t *testing.T) {
	w := NewWriters(WriterFor("count", func(n uint8) any { return int32(n) }))
	assert.Equal(t, int64(7), w.Convert(uint8(7)))
}

func TestNilWriters(t *testing.T) {
	var w *Writers
	assert.Equal(t, "x", w.Convert("x"))
	assert.Equal(t, 0, w.Len())
	assert.Nil(t, w.Names())
	assert.Equal(t, 1, w.With(WriterFor("s", func(s string) any { return s })).Len())
}
