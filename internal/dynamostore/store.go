// Package dynamostore runs compiled scans against DynamoDB.
//
// Key predicates split out by the compiler are served with GetItem while
// the remaining filter runs as a Scan; both halves execute concurrently and
// the union is deduplicated.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/fanin"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/paging"
	"github.com/roach88/polystore/internal/querydynamo"
	"github.com/roach88/polystore/internal/queryir"
)

// API is the subset of *dynamodb.Client the store calls.
type API interface {
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Store is the DynamoDB entity manager.
type Store struct {
	api      API
	compiler *querydynamo.Compiler
	codec    *ir.Codec
	cfg      querydynamo.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

var _ backend.Manager = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithConfig sets the table conventions.
func WithConfig(cfg querydynamo.Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// WithCodec sets the codec used to encode and decode items.
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

// New creates a store over api.
func New(api API, opts ...Option) *Store {
	s := &Store{api: api, cfg: querydynamo.DefaultConfig(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = ir.NewCodec(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("backend", backend.DynamoDB.String())
	s.compiler = querydynamo.New(s.cfg, s.codec)
	return s
}

// Kind reports backend.DynamoDB.
func (s *Store) Kind() backend.Kind { return backend.DynamoDB }

// Compiler returns the compiler the store runs queries through.
func (s *Store) Compiler() *querydynamo.Compiler { return s.compiler }

// Close is a no-op; the client holds no connection state.
func (s *Store) Close() error { return nil }

// Insert puts each entity, replacing any item with the same key.
func (s *Store) Insert(ctx context.Context, entities ...*ir.Entity) (err error) {
	done := s.metrics.Track(backend.DynamoDB.String(), "insert")
	defer func() { done(err) }()

	inputs := make([]*dynamodb.PutItemInput, 0, len(entities))
	for i, e := range entities {
		if e == nil {
			return queryir.Required(backend.DynamoDB.String(), fmt.Sprintf("entity %d", i))
		}
		if _, ok := e.Find(s.compiler.KeyAttribute()); !ok {
			e.Set(s.compiler.KeyAttribute(), s.newID())
		}
		put, err := s.compiler.CompileInsert(e)
		s.metrics.Compiled(backend.DynamoDB.String(), metrics.Outcome(err))
		if err != nil {
			return err
		}
		inputs = append(inputs, put)
	}

	for i, put := range inputs {
		if _, err := s.api.PutItem(ctx, put); err != nil {
			s.logger.Error("insert failed", "entity", entities[i].Name(), "error", err)
			return backend.Wrap(backend.DynamoDB, "insert", err)
		}
	}
	s.logger.Debug("inserted entities", "count", len(inputs))
	return nil
}

// Select runs q. Unbounded reads follow LastEvaluatedKey until the scan is
// exhausted. A read with a limit returns one scan page and, when DynamoDB
// reports more, a StartKey cursor for the next.
func (s *Store) Select(ctx context.Context, q queryir.Query) (res backend.Result, err error) {
	done := s.metrics.Track(backend.DynamoDB.String(), "select")
	defer func() { done(err) }()

	scan, err := s.compiler.Compile(q)
	s.metrics.Compiled(backend.DynamoDB.String(), metrics.Outcome(err))
	if err != nil {
		return backend.Result{}, err
	}
	s.logger.Debug("compiled scan", "entity", q.Entity, "keys", len(scan.Keys), "scan", scan.HasScan())

	if q.Limit > 0 {
		entities, next, err := s.scanPage(ctx, q.Entity, scan.ScanInput)
		if err != nil {
			return backend.Result{}, err
		}
		return backend.Result{Entities: entities, Cursor: next}, nil
	}

	getKeys := func(ctx context.Context) ([]*ir.Entity, error) {
		return s.getItems(ctx, q.Entity, scan.Keys)
	}
	scanAll := func(ctx context.Context) ([]*ir.Entity, error) {
		if !scan.HasScan() {
			return nil, nil
		}
		return s.scanAll(ctx, q.Entity, scan.ScanInput)
	}

	var entities []*ir.Entity
	switch {
	case len(scan.Keys) > 0 && scan.HasScan():
		joined, err := fanin.Join(ctx, getKeys, scanAll)
		if err != nil {
			return backend.Result{}, err
		}
		entities, err = fanin.Dedupe(joined, s.codec.Fingerprint)
		if err != nil {
			return backend.Result{}, err
		}
	case len(scan.Keys) > 0:
		entities, err = getKeys(ctx)
	default:
		entities, err = scanAll(ctx)
	}
	if err != nil {
		return backend.Result{}, err
	}
	if entities == nil {
		entities = []*ir.Entity{}
	}
	return backend.Result{Entities: backend.Project(entities, q.Fields, s.compiler.KeyAttribute())}, nil
}

// Delete removes the items matching d and reports how many existed.
func (s *Store) Delete(ctx context.Context, d queryir.DeleteQuery) (n int64, err error) {
	done := s.metrics.Track(backend.DynamoDB.String(), "delete")
	defer func() { done(err) }()

	scan, err := s.compiler.CompileDelete(d)
	s.metrics.Compiled(backend.DynamoDB.String(), metrics.Outcome(err))
	if err != nil {
		return 0, err
	}

	keys := scan.Keys
	if scan.HasScan() {
		fetch := func(ctx context.Context, pq queryir.Query) ([]map[string]types.AttributeValue, queryir.Cursor, error) {
			out, err := s.api.Scan(ctx, pageInput(scan.ScanInput, pq.Cursor))
			if err != nil {
				return nil, nil, backend.Wrap(backend.DynamoDB, "scan", err)
			}
			found := make([]map[string]types.AttributeValue, 0, len(out.Items))
			for _, item := range out.Items {
				if v, ok := item[s.compiler.KeyAttribute()]; ok {
					found = append(found, map[string]types.AttributeValue{s.compiler.KeyAttribute(): v})
				}
			}
			return found, startKey(out.LastEvaluatedKey), nil
		}
		found, err := paging.Drain(ctx, queryir.Query{Entity: d.Entity}, 0, fetch)
		if err != nil {
			return 0, err
		}
		keys = append(keys, found...)
	}

	keys, err = fanin.Dedupe(keys, func(k map[string]types.AttributeValue) (string, error) {
		return querydynamo.StartKey{Key: k}.String(), nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		in := s.compiler.DeleteItem(d.Entity, key)
		in.ReturnValues = types.ReturnValueAllOld
		out, err := s.api.DeleteItem(ctx, in)
		var conditional *types.ConditionalCheckFailedException
		switch {
		case errors.As(err, &conditional):
			continue
		case err != nil:
			s.logger.Error("delete failed", "entity", d.Entity, "error", err)
			return n, backend.Wrap(backend.DynamoDB, "delete", err)
		}
		if len(out.Attributes) > 0 {
			n++
		}
	}
	return n, nil
}

func (s *Store) getItems(ctx context.Context, entity string, keys []map[string]types.AttributeValue) ([]*ir.Entity, error) {
	entities := make([]*ir.Entity, 0, len(keys))
	for _, key := range keys {
		out, err := s.api.GetItem(ctx, s.compiler.GetItem(entity, key))
		if err != nil {
			return nil, backend.Wrap(backend.DynamoDB, "get", err)
		}
		if out.Item == nil {
			continue
		}
		e, err := s.decode(entity, out.Item)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func (s *Store) scanAll(ctx context.Context, entity string, input *dynamodb.ScanInput) ([]*ir.Entity, error) {
	fetch := func(ctx context.Context, pq queryir.Query) ([]*ir.Entity, queryir.Cursor, error) {
		return s.scanPage(ctx, entity, pageInput(input, pq.Cursor))
	}
	return paging.Drain(ctx, queryir.Query{Entity: entity}, 0, fetch)
}

func (s *Store) scanPage(ctx context.Context, entity string, input *dynamodb.ScanInput) ([]*ir.Entity, queryir.Cursor, error) {
	out, err := s.api.Scan(ctx, input)
	if err != nil {
		s.logger.Error("scan failed", "entity", entity, "error", err)
		return nil, nil, backend.Wrap(backend.DynamoDB, "scan", err)
	}
	entities := make([]*ir.Entity, 0, len(out.Items))
	for _, item := range out.Items {
		e, err := s.decode(entity, item)
		if err != nil {
			return nil, nil, err
		}
		if e != nil {
			entities = append(entities, e)
		}
	}
	return entities, startKey(out.LastEvaluatedKey), nil
}

// decode returns nil for items that belong to another entity of a shared
// table.
func (s *Store) decode(entity string, item map[string]types.AttributeValue) (*ir.Entity, error) {
	e, err := s.compiler.Decode(entity, item)
	if err != nil {
		return nil, err
	}
	if e.Name() != entity {
		return nil, nil
	}
	return e, nil
}

// pageInput positions input after cursor. A nil cursor keeps the compiled
// start key.
func pageInput(input *dynamodb.ScanInput, cursor queryir.Cursor) *dynamodb.ScanInput {
	start, ok := cursor.(querydynamo.StartKey)
	if !ok {
		return input
	}
	page := *input
	page.ExclusiveStartKey = start.Key
	return &page
}

func startKey(key map[string]types.AttributeValue) queryir.Cursor {
	if len(key) == 0 {
		return nil
	}
	return querydynamo.StartKey{Key: key}
}
