package mongostore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/queryir"
	"github.com/roach88/polystore/internal/querysolr"
	"github.com/roach88/polystore/internal/testutil"
)

type fakeCollection struct {
	docs    []any
	err     error
	filters []any
	finds   []*options.FindOptions
	writes  [][]mongo.WriteModel
	deleted int64
}

func (c *fakeCollection) Find(_ context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	c.filters = append(c.filters, filter)
	c.finds = append(c.finds, opts...)
	if c.err != nil {
		return nil, c.err
	}
	return mongo.NewCursorFromDocuments(c.docs, nil, nil)
}

func (c *fakeCollection) BulkWrite(_ context.Context, models []mongo.WriteModel, _ ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.writes = append(c.writes, models)
	return &mongo.BulkWriteResult{UpsertedCount: int64(len(models))}, nil
}

func (c *fakeCollection) DeleteMany(_ context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	c.filters = append(c.filters, filter)
	if c.err != nil {
		return nil, c.err
	}
	return &mongo.DeleteResult{DeletedCount: c.deleted}, nil
}

type fakeDatabase map[string]*fakeCollection

func (d fakeDatabase) Collection(name string) Collection {
	if c, ok := d[name]; ok {
		return c
	}
	c := &fakeCollection{}
	d[name] = c
	return c
}

func newStore(db fakeDatabase, opts ...Option) *Store {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(db, opts...)
}

func TestSelect_DecodesDocuments(t *testing.T) {
	oid := primitive.NewObjectID()
	db := fakeDatabase{"Contact": {docs: []any{
		bson.D{
			{Key: "_id", Value: oid},
			{Key: "name", Value: "Ada"},
			{Key: "age", Value: int32(36)},
			{Key: "address", Value: bson.D{{Key: "city", Value: "Assis"}}},
			{Key: "tags", Value: bson.A{"a", "b"}},
		},
	}}}
	s := newStore(db)

	q, err := queryir.Select("name").From("Contact").Where(queryir.Gte("age", 18)).Limit(5).Build()
	require.NoError(t, err)

	res, err := s.Select(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)

	want := ir.NewEntity("Contact",
		ir.E("_id", oid.Hex()),
		ir.E("name", "Ada"),
		ir.E("age", 36),
		ir.E("address", ir.Nested{ir.E("city", "Assis")}),
		ir.E("tags", []string{"a", "b"}),
	)
	assert.True(t, want.Equal(res.Entities[0]), "got %s", res.Entities[0])

	coll := db["Contact"]
	assert.Equal(t, bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: int64(18)}}}}, coll.filters[0])
	require.Len(t, coll.finds, 1)
	assert.Equal(t, int64(5), *coll.finds[0].Limit)
}

func TestSelect_EmptyResult(t *testing.T) {
	s := newStore(fakeDatabase{})

	res, err := s.Select(context.Background(), queryir.Query{Entity: "person"})
	require.NoError(t, err)
	assert.NotNil(t, res.Entities)
	assert.Empty(t, res.Entities)
}

func TestSelect_CompileErrorSkipsDriver(t *testing.T) {
	db := fakeDatabase{}
	s := newStore(db)

	_, err := s.Select(context.Background(), queryir.Query{Entity: "person", Cursor: querysolr.CursorMark("AoE")})
	assert.True(t, queryir.IsUnsupported(err))
	assert.Empty(t, db)
}

func TestSelect_CommunicationError(t *testing.T) {
	down := errors.New("server selection timeout")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := newStore(fakeDatabase{"person": {err: down}}, WithMetrics(m))

	_, err := s.Select(context.Background(), queryir.Query{Entity: "person"})
	require.Error(t, err)
	assert.True(t, backend.IsCommunication(err))
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OperationsTotal.WithLabelValues("mongodb", "select", metrics.OutcomeError)))
}

func TestInsert_UpsertsPerCollection(t *testing.T) {
	db := fakeDatabase{}
	ids := testutil.NewSequentialIDs("doc")
	s := newStore(db, WithIDGenerator(ids.NewID))

	person := ir.NewEntity("person", ir.E("name", "Ada"))
	err := s.Insert(context.Background(),
		person,
		testutil.Contact("c1", "Ada", "Assis"),
		ir.NewEntity("person", ir.E("_id", "p2"), ir.E("name", "Lucas")),
	)
	require.NoError(t, err)

	id, ok := person.Find("_id")
	require.True(t, ok)
	assert.Equal(t, ir.NewScalar("doc-1"), id.Value())

	require.Len(t, db["person"].writes, 1)
	models := db["person"].writes[0]
	require.Len(t, models, 2)
	first := models[0].(*mongo.ReplaceOneModel)
	assert.Equal(t, bson.D{{Key: "_id", Value: "doc-1"}}, first.Filter)
	assert.Equal(t, bson.D{{Key: "name", Value: "Ada"}, {Key: "_id", Value: "doc-1"}}, first.Replacement)
	assert.True(t, *first.Upsert)

	require.Len(t, db["Contact"].writes, 1)
	contact := db["Contact"].writes[0][0].(*mongo.ReplaceOneModel)
	assert.Equal(t, bson.D{{Key: "city", Value: "Assis"}, {Key: "zip", Value: "19800"}}, contact.Replacement.(bson.D)[2].Value)
}

func TestInsert_NilEntity(t *testing.T) {
	db := fakeDatabase{}
	s := newStore(db)

	err := s.Insert(context.Background(), ir.NewEntity("person", ir.E("_id", 1)), nil)
	assert.True(t, queryir.IsRequired(err))
	assert.Empty(t, db)
}

func TestDelete(t *testing.T) {
	db := fakeDatabase{"person": {deleted: 3}}
	s := newStore(db)

	n, err := s.Delete(context.Background(), queryir.DeleteQuery{Entity: "person", Condition: queryir.Negate(queryir.Eq("city", "Assis"))})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t,
		bson.D{{Key: "$nor", Value: bson.A{bson.D{{Key: "city", Value: "Assis"}}}}},
		db["person"].filters[0])
}

func TestStore_KindAndClose(t *testing.T) {
	s := newStore(fakeDatabase{})
	assert.Equal(t, backend.MongoDB, s.Kind())
	assert.NotNil(t, s.Compiler())
	assert.NoError(t, s.Close())
}
