// Package n1qlstore runs compiled N1QL statements against a Couchbase
// style cluster.
//
// The cluster SDK is reached through the Cluster interface. Key predicates
// split out by the compiler are served by key-value reads while the rest of
// the condition runs on the query service; both halves execute concurrently
// and the union is deduplicated.
package n1qlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/fanin"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/queryir"
	"github.com/roach88/polystore/internal/queryn1ql"
)

// ErrDocumentNotFound is returned by Cluster.Get and Cluster.Remove for a
// missing key.
var ErrDocumentNotFound = errors.New("document not found")

// Cluster is the key-value and query surface the store needs.
type Cluster interface {
	// Get returns the body stored under key.
	Get(ctx context.Context, keyspace, key string) (map[string]any, error)
	// Upsert stores body under key.
	Upsert(ctx context.Context, keyspace, key string, body map[string]any) error
	// Remove deletes key.
	Remove(ctx context.Context, keyspace, key string) error
	// Query runs a statement with positional parameters and returns every
	// row.
	Query(ctx context.Context, statement string, params []any) ([]map[string]any, error)
	Close() error
}

// Store is the N1QL entity manager.
type Store struct {
	cluster  Cluster
	compiler *queryn1ql.Compiler
	codec    *ir.Codec
	cfg      queryn1ql.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

var _ backend.Manager = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithConfig sets the keyspace conventions.
func WithConfig(cfg queryn1ql.Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// WithCodec sets the codec used to encode and decode bodies.
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

// WithIDGenerator sets how keys are assigned to entities inserted without
// one. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a store over cluster.
func New(cluster Cluster, opts ...Option) *Store {
	s := &Store{cluster: cluster, cfg: queryn1ql.DefaultConfig(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = ir.NewCodec(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("backend", backend.N1QL.String())
	s.compiler = queryn1ql.New(s.cfg, s.codec)
	return s
}

// Kind reports backend.N1QL.
func (s *Store) Kind() backend.Kind { return backend.N1QL }

// Compiler returns the compiler the store runs queries through.
func (s *Store) Compiler() *queryn1ql.Compiler { return s.compiler }

// Close closes the cluster.
func (s *Store) Close() error {
	if err := s.cluster.Close(); err != nil {
		return backend.Wrap(backend.N1QL, "close", err)
	}
	return nil
}

// Insert upserts each entity under its identifier.
func (s *Store) Insert(ctx context.Context, entities ...*ir.Entity) (err error) {
	done := s.metrics.Track(backend.N1QL.String(), "insert")
	defer func() { done(err) }()

	stmts := make([]queryn1ql.Statement, 0, len(entities))
	for i, e := range entities {
		if e == nil {
			return queryir.Required(backend.N1QL.String(), fmt.Sprintf("entity %d", i))
		}
		if _, ok := e.Find(s.compiler.IDField()); !ok {
			e.Set(s.compiler.IDField(), s.newID())
		}
		stmt, err := s.compiler.CompileInsert(e)
		s.metrics.Compiled(backend.N1QL.String(), metrics.Outcome(err))
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}

	for i, stmt := range stmts {
		body, _ := stmt.Params[1].(map[string]any)
		if err := s.cluster.Upsert(ctx, stmt.Keyspace, stmt.Keys[0], body); err != nil {
			s.logger.Error("insert failed", "entity", entities[i].Name(), "key", stmt.Keys[0], "error", err)
			return backend.Wrap(backend.N1QL, "insert", err)
		}
	}
	s.logger.Debug("inserted entities", "count", len(stmts))
	return nil
}

// Select runs q.
func (s *Store) Select(ctx context.Context, q queryir.Query) (res backend.Result, err error) {
	done := s.metrics.Track(backend.N1QL.String(), "select")
	defer func() { done(err) }()

	stmt, err := s.compiler.Compile(q)
	s.metrics.Compiled(backend.N1QL.String(), metrics.Outcome(err))
	if err != nil {
		return backend.Result{}, err
	}
	s.logger.Debug("compiled select", "entity", q.Entity, "n1ql", stmt.N1QL, "keys", len(stmt.Keys))

	getKeys := func(ctx context.Context) ([]*ir.Entity, error) {
		return s.getKeys(ctx, q.Entity, stmt)
	}
	query := func(ctx context.Context) ([]*ir.Entity, error) {
		return s.query(ctx, q.Entity, stmt)
	}

	var entities []*ir.Entity
	switch {
	case len(stmt.Keys) > 0 && stmt.HasQuery():
		joined, err := fanin.Join(ctx, getKeys, query)
		if err != nil {
			return backend.Result{}, err
		}
		entities, err = fanin.Dedupe(joined, s.codec.Fingerprint)
		if err != nil {
			return backend.Result{}, err
		}
	case len(stmt.Keys) > 0:
		entities, err = getKeys(ctx)
	default:
		entities, err = query(ctx)
	}
	if err != nil {
		return backend.Result{}, err
	}
	return backend.Result{Entities: backend.Project(entities, q.Fields, s.compiler.IDField())}, nil
}

// Delete removes the documents matching d and reports how many were
// removed.
func (s *Store) Delete(ctx context.Context, d queryir.DeleteQuery) (n int64, err error) {
	done := s.metrics.Track(backend.N1QL.String(), "delete")
	defer func() { done(err) }()

	stmt, err := s.compiler.CompileDelete(d)
	s.metrics.Compiled(backend.N1QL.String(), metrics.Outcome(err))
	if err != nil {
		return 0, err
	}

	removeKeys := func(ctx context.Context) ([]string, error) {
		var removed []string
		for _, key := range stmt.Keys {
			body, err := s.cluster.Get(ctx, stmt.Keyspace, key)
			if errors.Is(err, ErrDocumentNotFound) {
				continue
			}
			if err != nil {
				return nil, backend.Wrap(backend.N1QL, "get", err)
			}
			if e, err := s.compiler.Decode(key, body); err != nil || e.Name() != d.Entity {
				continue
			}
			err = s.cluster.Remove(ctx, stmt.Keyspace, key)
			if errors.Is(err, ErrDocumentNotFound) {
				continue
			}
			if err != nil {
				return nil, backend.Wrap(backend.N1QL, "remove", err)
			}
			removed = append(removed, key)
		}
		return removed, nil
	}
	deleteRest := func(ctx context.Context) ([]string, error) {
		if !stmt.HasQuery() {
			return nil, nil
		}
		rows, err := s.cluster.Query(ctx, stmt.N1QL, stmt.Params)
		if err != nil {
			return nil, backend.Wrap(backend.N1QL, "delete", err)
		}
		removed := make([]string, 0, len(rows))
		for _, row := range rows {
			if id, ok := row["id"].(string); ok {
				removed = append(removed, id)
			}
		}
		return removed, nil
	}

	removed, err := fanin.Join(ctx, removeKeys, deleteRest)
	if err != nil {
		s.logger.Error("delete failed", "entity", d.Entity, "error", err)
		return 0, err
	}
	removed, err = fanin.Dedupe(removed, func(k string) (string, error) { return k, nil })
	if err != nil {
		return 0, err
	}
	return int64(len(removed)), nil
}

func (s *Store) getKeys(ctx context.Context, entity string, stmt queryn1ql.Statement) ([]*ir.Entity, error) {
	entities := make([]*ir.Entity, 0, len(stmt.Keys))
	for _, key := range stmt.Keys {
		body, err := s.cluster.Get(ctx, stmt.Keyspace, key)
		if errors.Is(err, ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return nil, backend.Wrap(backend.N1QL, "get", err)
		}
		e, err := s.compiler.Decode(key, body)
		if err != nil {
			return nil, err
		}
		if e.Name() == entity {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func (s *Store) query(ctx context.Context, entity string, stmt queryn1ql.Statement) ([]*ir.Entity, error) {
	rows, err := s.cluster.Query(ctx, stmt.N1QL, stmt.Params)
	if err != nil {
		s.logger.Error("query failed", "entity", entity, "error", err)
		return nil, backend.Wrap(backend.N1QL, "query", err)
	}
	entities := make([]*ir.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := s.compiler.DecodeRow(entity, row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}
