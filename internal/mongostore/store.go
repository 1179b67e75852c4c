// Package mongostore runs compiled BSON queries against MongoDB. Each entity
// name maps to a collection of the same name.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/querybson"
	"github.com/roach88/polystore/internal/queryir"
)

// Collection is the subset of *mongo.Collection the store calls.
type Collection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// Database resolves a collection by name.
type Database interface {
	Collection(name string) Collection
}

type database struct{ db *mongo.Database }

func (d database) Collection(name string) Collection { return d.db.Collection(name) }

// FromDatabase adapts a driver database.
func FromDatabase(db *mongo.Database) Database { return database{db: db} }

// Store is the MongoDB entity manager.
type Store struct {
	db       Database
	client   *mongo.Client
	compiler *querybson.Compiler
	codec    *ir.Codec
	cfg      querybson.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

var _ backend.Manager = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithConfig sets the compiler configuration.
func WithConfig(cfg querybson.Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// WithCodec sets the codec used to encode and decode documents.
func WithCodec(codec *ir.Codec) Option {
	return func(s *Store) { s.codec = codec }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithIDGenerator sets how identifiers are assigned to entities inserted
// without one. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a store over db.
func New(db Database, opts ...Option) *Store {
	s := &Store{db: db, cfg: querybson.DefaultConfig(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = ir.NewCodec(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cfg.IDField == "" {
		s.cfg.IDField = querybson.DefaultConfig().IDField
	}
	s.logger = s.logger.With("backend", backend.MongoDB.String())
	s.compiler = querybson.New(s.cfg, s.codec)
	return s
}

// Connect dials uri, verifies the connection and returns a store over the
// named database. Close disconnects the client.
func Connect(ctx context.Context, uri, dbName string, opts ...Option) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri)
	clientOpts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, backend.Wrap(backend.MongoDB, "connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, backend.Wrap(backend.MongoDB, "ping", err)
	}
	s := New(FromDatabase(client.Database(dbName)), opts...)
	s.client = client
	return s, nil
}

// Kind reports backend.MongoDB.
func (s *Store) Kind() backend.Kind { return backend.MongoDB }

// Compiler returns the compiler the store runs queries through.
func (s *Store) Compiler() *querybson.Compiler { return s.compiler }

// Close disconnects the client when the store owns one.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return backend.Wrap(backend.MongoDB, "disconnect", err)
	}
	return nil
}

// Insert writes entities with one bulk write per collection. Each document
// replaces any stored document with the same identifier.
func (s *Store) Insert(ctx context.Context, entities ...*ir.Entity) (err error) {
	done := s.metrics.Track(backend.MongoDB.String(), "insert")
	defer func() { done(err) }()

	var order []string
	models := make(map[string][]mongo.WriteModel)
	for i, e := range entities {
		if e == nil {
			return queryir.Required(backend.MongoDB.String(), fmt.Sprintf("entity %d", i))
		}
		if _, ok := e.Find(s.cfg.IDField); !ok {
			e.Set(s.cfg.IDField, s.newID())
		}
		doc, err := s.compiler.CompileInsert(e)
		s.metrics.Compiled(backend.MongoDB.String(), metrics.Outcome(err))
		if err != nil {
			return err
		}
		id, _ := e.Find(s.cfg.IDField)
		model := mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: s.cfg.IDField, Value: s.codec.NativeValue(id.Value())}}).
			SetReplacement(doc).
			SetUpsert(true)
		if _, seen := models[e.Name()]; !seen {
			order = append(order, e.Name())
		}
		models[e.Name()] = append(models[e.Name()], model)
	}

	for _, name := range order {
		if _, err := s.db.Collection(name).BulkWrite(ctx, models[name], options.BulkWrite().SetOrdered(true)); err != nil {
			s.logger.Error("insert failed", "entity", name, "error", err)
			return backend.Wrap(backend.MongoDB, "insert", err)
		}
		s.logger.Debug("inserted entities", "entity", name, "count", len(models[name]))
	}
	return nil
}

// Select runs q as a find call and decodes every returned document.
func (s *Store) Select(ctx context.Context, q queryir.Query) (res backend.Result, err error) {
	done := s.metrics.Track(backend.MongoDB.String(), "select")
	defer func() { done(err) }()

	find, err := s.compiler.Compile(q)
	s.metrics.Compiled(backend.MongoDB.String(), metrics.Outcome(err))
	if err != nil {
		return backend.Result{}, err
	}
	s.logger.Debug("compiled find", "entity", q.Entity, "filter", find.Filter)

	cursor, err := s.db.Collection(find.Collection).Find(ctx, find.Filter, find.Options)
	if err != nil {
		s.logger.Error("select failed", "entity", q.Entity, "error", err)
		return backend.Result{}, backend.Wrap(backend.MongoDB, "select", err)
	}
	defer cursor.Close(ctx)

	entities := []*ir.Entity{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return backend.Result{}, backend.Wrap(backend.MongoDB, "decode", err)
		}
		e, err := querybson.Decode(s.codec, q.Entity, doc)
		if err != nil {
			return backend.Result{}, err
		}
		entities = append(entities, e)
	}
	if err := cursor.Err(); err != nil {
		return backend.Result{}, backend.Wrap(backend.MongoDB, "iterate", err)
	}
	return backend.Result{Entities: entities}, nil
}

// Delete removes the documents matching d.
func (s *Store) Delete(ctx context.Context, d queryir.DeleteQuery) (n int64, err error) {
	done := s.metrics.Track(backend.MongoDB.String(), "delete")
	defer func() { done(err) }()

	del, err := s.compiler.CompileDelete(d)
	s.metrics.Compiled(backend.MongoDB.String(), metrics.Outcome(err))
	if err != nil {
		return 0, err
	}

	res, err := s.db.Collection(del.Collection).DeleteMany(ctx, del.Filter)
	if err != nil {
		s.logger.Error("delete failed", "entity", d.Entity, "error", err)
		return 0, backend.Wrap(backend.MongoDB, "delete", err)
	}
	return res.DeletedCount, nil
}
