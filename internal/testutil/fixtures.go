package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/polystore/internal/ir"
)

// SequentialIDs generates identifiers "{prefix}-1", "{prefix}-2", ...
//
// Unlike random UUIDs, the same test produces the same identifiers on every
// run, which keeps golden files and assertions stable.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator. An empty prefix becomes "id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next identifier.
func (g *SequentialIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Reset restarts the sequence.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// Person returns the entity used by scenario tests:
// {name: "Cassandra", version: 3.2, options: [1, 2, 3], id: 10}.
func Person() *ir.Entity {
	return ir.NewEntity("Person",
		ir.E("name", "Cassandra"),
		ir.E("version", 3.2),
		ir.E("options", []int{1, 2, 3}),
		ir.E("id", 10),
	)
}

// Contact returns an entity with a nested address sub-record and a
// collection of phone sub-records.
func Contact(id, name, city string) *ir.Entity {
	return ir.NewEntity("Contact",
		ir.E("_id", id),
		ir.E("name", name),
		ir.E("address", ir.Nested{ir.E("city", city), ir.E("zip", "19800")}),
		ir.E("phones", ir.List{
			ir.Nested{ir.E("kind", "home"), ir.E("number", "555-0100")},
			ir.Nested{ir.E("kind", "work"), ir.E("number", "555-0199")},
		}),
	)
}
