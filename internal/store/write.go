package store

import (
	"context"
	"fmt"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/queryir"
)

// Insert upserts entities in one transaction. An entity without an
// identifier element is assigned one in place before it is written.
//
// Bodies are serialized to canonical JSON per RFC 8785, so rewriting an
// unchanged entity stores identical bytes.
func (s *Store) Insert(ctx context.Context, entities ...*ir.Entity) (err error) {
	done := s.metrics.Track(backend.SQLite.String(), "insert")
	defer func() { done(err) }()

	if len(entities) == 0 {
		return nil
	}

	stmts := make([]string, 0, len(entities))
	params := make([][]any, 0, len(entities))
	for i, e := range entities {
		if e == nil {
			return queryir.Required(backend.SQLite.String(), fmt.Sprintf("entity %d", i))
		}
		if _, ok := e.Find(s.compiler.IDField()); !ok {
			e.Set(s.compiler.IDField(), s.newID())
		}
		stmt, err := s.compiler.CompileInsert(e)
		if err != nil {
			s.metrics.Compiled(backend.SQLite.String(), metrics.Outcome(err))
			return err
		}
		s.metrics.Compiled(backend.SQLite.String(), metrics.OutcomeOK)
		stmts = append(stmts, stmt.SQL)
		params = append(params, stmt.Params)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backend.Wrap(backend.SQLite, "insert", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, params[i]...); err != nil {
			s.logger.Error("insert failed", "entity", entities[i].Name(), "error", err)
			return backend.Wrap(backend.SQLite, "insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return backend.Wrap(backend.SQLite, "insert", err)
	}

	s.logger.Debug("inserted entities", "count", len(entities))
	return nil
}

// Delete removes the rows matching d and reports how many were removed.
func (s *Store) Delete(ctx context.Context, d queryir.DeleteQuery) (n int64, err error) {
	done := s.metrics.Track(backend.SQLite.String(), "delete")
	defer func() { done(err) }()

	stmt, err := s.compiler.CompileDelete(d)
	s.metrics.Compiled(backend.SQLite.String(), metrics.Outcome(err))
	if err != nil {
		return 0, err
	}
	s.logger.Debug("compiled delete", "entity", d.Entity, "sql", stmt.SQL)

	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		s.logger.Error("delete failed", "entity", d.Entity, "error", err)
		return 0, backend.Wrap(backend.SQLite, "delete", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, backend.Wrap(backend.SQLite, "delete", err)
	}
	return n, nil
}
