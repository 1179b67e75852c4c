package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/queryir"
	"github.com/roach88/polystore/internal/querymango"
	"github.com/roach88/polystore/internal/testutil"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	people := []*ir.Entity{
		ir.NewEntity("person", ir.E("_id", "p1"), ir.E("name", "Otavio"), ir.E("age", 30), ir.E("city", "Assis")),
		ir.NewEntity("person", ir.E("_id", "p2"), ir.E("name", "Lucas"), ir.E("age", 25), ir.E("city", "Salvador")),
		ir.NewEntity("person", ir.E("_id", "p3"), ir.E("name", "Ada"), ir.E("age", 36), ir.E("city", "Assis")),
		ir.NewEntity("person", ir.E("_id", "p4"), ir.E("name", "otto"), ir.E("age", 9), ir.E("city", nil)),
		testutil.Contact("c1", "Ada", "Assis"),
	}
	require.NoError(t, s.Insert(context.Background(), people...))
}

func ids(entities []*ir.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		el, _ := e.Find("_id")
		out[i], _ = el.Value().(ir.Scalar).Text()
	}
	return out
}

func TestSelect_Conditions(t *testing.T) {
	s := createTestStore(t)
	seed(t, s)

	tests := []struct {
		name string
		cond queryir.Condition
		want []string
	}{
		{"all", nil, []string{"p1", "p2", "p3", "p4"}},
		{"equals", queryir.Eq("city", "Assis"), []string{"p1", "p3"}},
		{"range", queryir.Gte("age", 30), []string{"p1", "p3"}},
		{"in", queryir.InValues("name", "Ada", "Lucas"), []string{"p2", "p3"}},
		{"like is case sensitive", queryir.Match("name", "Ot%"), []string{"p1"}},
		{"or", queryir.AnyOf(queryir.Eq("name", "Lucas"), queryir.Lt("age", 10)), []string{"p2", "p4"}},
		{"not", queryir.Negate(queryir.Eq("city", "Assis")), []string{"p2"}},
		{"null", queryir.Eq("city", nil), []string{"p4"}},
		{"key", queryir.Eq("_id", "p2"), []string{"p2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Select(context.Background(), queryir.Query{Entity: "person", Condition: tt.cond})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res.Entities))
			assert.Nil(t, res.Cursor)
		})
	}
}

func TestSelect_SortLimitSkipProjection(t *testing.T) {
	s := createTestStore(t)
	seed(t, s)

	q, err := queryir.Select("name").From("person").OrderBy(queryir.Desc("age")).Limit(2).Skip(1).Build()
	require.NoError(t, err)

	res, err := s.Select(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids(res.Entities))
	assert.Equal(t, []string{"_id", "name"}, res.Entities[0].Names())
}

func TestSelect_TimeRangeAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx,
		ir.NewEntity("event", ir.E("_id", "e2"), ir.E("at", t0.Add(500*time.Millisecond))),
		ir.NewEntity("event", ir.E("_id", "e1"), ir.E("at", t0)),
		ir.NewEntity("event", ir.E("_id", "e3"), ir.E("at", t0.Add(time.Second))),
	))

	q, err := queryir.Select().From("event").Where(queryir.Gt("at", t0)).OrderBy(queryir.Asc("at")).Build()
	require.NoError(t, err)
	res, err := s.Select(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e3"}, ids(res.Entities))

	q, err = queryir.Select().From("event").Where(queryir.Lt("at", t0.Add(time.Second))).OrderBy(queryir.Desc("at")).Build()
	require.NoError(t, err)
	res, err = s.Select(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e1"}, ids(res.Entities))
}

func TestSelect_NestedRoundTrip(t *testing.T) {
	s := createTestStore(t)
	seed(t, s)

	contact, err := s.Get(context.Background(), "Contact", "c1")
	require.NoError(t, err)
	assert.True(t, testutil.Contact("c1", "Ada", "Assis").Equal(contact), "got %s", contact)

	res, err := s.Select(context.Background(), queryir.Query{
		Entity:    "Contact",
		Condition: queryir.Eq("address", ir.Nested{ir.E("zip", "19800"), ir.E("city", "Assis")}),
	})
	require.NoError(t, err)
	assert.Len(t, res.Entities, 1)

	res, err = s.Select(context.Background(), queryir.Query{Entity: "Contact", Condition: queryir.Eq("address.city", "Assis")})
	require.NoError(t, err)
	assert.Len(t, res.Entities, 1)

	_, err = s.Get(context.Background(), "Contact", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsert_Upserts(t *testing.T) {
	s := createTestStore(t)
	seed(t, s)

	require.NoError(t, s.Insert(context.Background(), ir.NewEntity("person", ir.E("_id", "p1"), ir.E("name", "Otavio"), ir.E("age", 31))))

	p1, err := s.Get(context.Background(), "person", "p1")
	require.NoError(t, err)
	age, _ := p1.Find("age")
	assert.Equal(t, ir.NewScalar(31), age.Value())
	_, hasCity := p1.Find("city")
	assert.False(t, hasCity)
}

func TestInsert_AssignsIdentifier(t *testing.T) {
	ids := testutil.NewSequentialIDs("person")
	s := createTestStore(t, WithIDGenerator(ids.NewID))

	e := ir.NewEntity("person", ir.E("name", "Ada"))
	require.NoError(t, s.Insert(context.Background(), e))

	id, ok := e.Find("_id")
	require.True(t, ok)
	assert.Equal(t, ir.NewScalar("person-1"), id.Value())

	got, err := s.Get(context.Background(), "person", "person-1")
	require.NoError(t, err)
	assert.True(t, e.Equal(got))
}

func TestInsert_ValidatesBeforeWriting(t *testing.T) {
	s := createTestStore(t)

	err := s.Insert(context.Background(),
		ir.NewEntity("person", ir.E("_id", "p1")),
		nil,
	)
	assert.True(t, queryir.IsRequired(err))

	res, err := s.Select(context.Background(), queryir.Query{Entity: "person"})
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	seed(t, s)

	n, err := s.Delete(context.Background(), queryir.DeleteQuery{Entity: "person", Condition: queryir.Eq("city", "Assis")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Delete(context.Background(), queryir.DeleteQuery{Entity: "person"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err := s.Select(context.Background(), queryir.Query{Entity: "Contact"})
	require.NoError(t, err)
	assert.Len(t, res.Entities, 1)
}

func TestSelect_CompileErrorBeforeIO(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := createTestStore(t, WithMetrics(m))
	require.NoError(t, s.Close())

	// The store is closed, so reaching the database would fail with a
	// communication error instead.
	_, err := s.Select(context.Background(), queryir.Query{Entity: "person", Cursor: querymango.Bookmark("b")})
	assert.True(t, queryir.IsUnsupported(err))
	assert.False(t, backend.IsCommunication(err))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CompileTotal.WithLabelValues("sqlite", metrics.OutcomeUnsupported)))

	_, err = s.Select(context.Background(), queryir.Query{Entity: "person"})
	assert.True(t, backend.IsCommunication(err))
	var ce *backend.CommunicationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "select", ce.Op)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OperationsTotal.WithLabelValues("sqlite", "select", metrics.OutcomeError)))
}

func TestStore_Kind(t *testing.T) {
	s := createTestStore(t)
	assert.Equal(t, backend.SQLite, s.Kind())
	assert.NotNil(t, s.Compiler())
}
