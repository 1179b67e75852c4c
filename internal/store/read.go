package store

import (
	"context"
	"errors"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/queryir"
	"github.com/roach88/polystore/internal/querysql"
)

// ErrNotFound is returned by Get when no entity has the identifier.
var ErrNotFound = errors.New("entity not found")

// Select runs q and decodes every matching row. Results are ordered by the
// query's sorts and then by identifier.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Select(ctx context.Context, q queryir.Query) (res backend.Result, err error) {
	done := s.metrics.Track(backend.SQLite.String(), "select")
	defer func() { done(err) }()

	stmt, err := s.compiler.Compile(q)
	s.metrics.Compiled(backend.SQLite.String(), metrics.Outcome(err))
	if err != nil {
		return backend.Result{}, err
	}
	s.logger.Debug("compiled select", "entity", q.Entity, "sql", stmt.SQL)

	entities, err := s.query(ctx, q.Entity, stmt)
	if err != nil {
		s.logger.Error("select failed", "entity", q.Entity, "error", err)
		return backend.Result{}, err
	}
	return backend.Result{Entities: entities}, nil
}

// Get returns the entity with the given identifier.
func (s *Store) Get(ctx context.Context, entity string, id any) (*ir.Entity, error) {
	res, err := s.Select(ctx, queryir.Query{
		Entity:    entity,
		Condition: queryir.Eq(s.compiler.IDField(), id),
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Entities) == 0 {
		return nil, ErrNotFound
	}
	return res.Entities[0], nil
}

func (s *Store) query(ctx context.Context, collection string, stmt querysql.Statement) ([]*ir.Entity, error) {
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, backend.Wrap(backend.SQLite, "select", err)
	}
	defer rows.Close()

	entities := []*ir.Entity{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, backend.Wrap(backend.SQLite, "scan", err)
		}
		e, err := s.compiler.Decode(collection, body)
		if err != nil {
			return nil, err
		}
		entities = append(entities, querysql.Project(e, stmt.Fields))
	}
	if err := rows.Err(); err != nil {
		return nil, backend.Wrap(backend.SQLite, "iterate", err)
	}
	return entities, nil
}
