package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/polystore/internal/backend"
	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/metrics"
	"github.com/roach88/polystore/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial document table
const currentSchemaVersion = 1

// Store is the SQLite entity manager. Uses WAL mode for concurrent read
// access.
type Store struct {
	db       *sql.DB
	compiler *querysql.Compiler
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

var _ backend.Manager = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	cfg     querysql.Config
	codec   *ir.Codec
	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
}

// WithConfig sets the table layout.
func WithConfig(cfg querysql.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithCodec sets the codec used to encode and decode bodies.
func WithCodec(codec *ir.Codec) Option {
	return func(o *options) { o.codec = codec }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithIDGenerator sets how identifiers are assigned to entities inserted
// without one. Defaults to random UUIDs.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{cfg: querysql.DefaultConfig(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	compiler := querysql.New(o.cfg, o.codec)

	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, tableName(o.cfg)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:       db,
		compiler: compiler,
		logger:   o.logger.With("backend", backend.SQLite.String()),
		metrics:  o.metrics,
		newID:    o.newID,
	}, nil
}

// Kind reports backend.SQLite.
func (s *Store) Kind() backend.Kind { return backend.SQLite }

// Compiler returns the compiler the store runs queries through.
func (s *Store) Compiler() *querysql.Compiler { return s.compiler }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func tableName(cfg querysql.Config) string {
	if cfg.Table == "" {
		return querysql.DefaultConfig().Table
	}
	return cfg.Table
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA case_sensitive_like = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the document table if it doesn't exist and records
// the schema version. This function is idempotent.
func applySchema(db *sql.DB, table string) error {
	if _, err := db.Exec(strings.ReplaceAll(schemaSQL, "{{table}}", table)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
