package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/ir"
)

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("person")
	assert.Equal(t, "person-1", g.NewID())
	assert.Equal(t, "person-2", g.NewID())

	g.Reset()
	assert.Equal(t, "person-1", g.NewID())

	assert.Equal(t, "id-1", NewSequentialIDs("").NewID())
}

func TestSequentialIDsConcurrent(t *testing.T) {
	g := NewSequentialIDs("c")
	seen := sync.Map{}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(g.NewID(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()

	assert.Equal(t, "c-51", g.NewID())
}

func TestFixtures(t *testing.T) {
	p := Person()
	assert.Equal(t, "Person", p.Name())
	assert.Equal(t, []string{"name", "version", "options", "id"}, p.Names())

	c := Contact("c1", "Ada", "Assis")
	addr, ok := c.Find("address")
	require.True(t, ok)
	assert.Equal(t, `{city: "Assis", zip: "19800"}`, ir.String(addr.Value()))
}

func TestAssertGoldenJSON(t *testing.T) {
	AssertGoldenJSON(t, "sample", map[string]any{"b": []any{int64(1), "x"}, "a": true})
}
