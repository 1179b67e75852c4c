// Package config loads polystore settings from a file and the environment.
//
// Every key can be overridden by an environment variable named after its
// path with the POLYSTORE_ prefix, dots replaced by underscores and the
// whole name upper-cased, e.g. POLYSTORE_BACKENDS_SQLITE_TABLE.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/polystore/internal/backend"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POLYSTORE"

// Config is the complete configuration.
type Config struct {
	Backends backend.Options `mapstructure:"backends"`
	Store    StoreConfig     `mapstructure:"store"`
	Log      LogConfig       `mapstructure:"log"`
}

// StoreConfig locates the SQLite database the exec command writes to.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Backends: backend.DefaultOptions(),
		Store:    StoreConfig{Path: "polystore.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path, when non-empty, over the defaults and then applies
// environment overrides. The file format follows its extension (yaml, json
// or toml).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot be applied.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Backends.Cassandra.FetchSize < 0 {
		errs = append(errs, fmt.Errorf("backends.cassandra.fetch_size: must not be negative, got %d", c.Backends.Cassandra.FetchSize))
	}
	return errors.Join(errs...)
}

// Logger builds a logger writing to w. Verbose forces debug level.
func (c LogConfig) Logger(w io.Writer, verbose bool) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if c.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// the file leaves out.
func setDefaults(v *viper.Viper, def Config) {
	b := def.Backends
	defaults := map[string]any{
		"backends.cassandra.keyspace":            b.Cassandra.Keyspace,
		"backends.cassandra.allow_filtering":     b.Cassandra.AllowFiltering,
		"backends.cassandra.fetch_size":          b.Cassandra.FetchSize,
		"backends.couchdb.entity_field":          b.CouchDB.EntityField,
		"backends.couchdb.id_field":              b.CouchDB.IDField,
		"backends.couchdb.rev_field":             b.CouchDB.RevField,
		"backends.solr.entity_field":             b.Solr.EntityField,
		"backends.solr.id_field":                 b.Solr.IDField,
		"backends.solr.deep_paging":              b.Solr.DeepPaging,
		"backends.mongodb.id_field":              b.MongoDB.IDField,
		"backends.mongodb.case_insensitive_like": b.MongoDB.CaseInsensitiveLike,
		"backends.n1ql.keyspace":                 b.N1QL.Keyspace,
		"backends.n1ql.entity_field":             b.N1QL.EntityField,
		"backends.n1ql.id_field":                 b.N1QL.IDField,
		"backends.dynamodb.table":                b.DynamoDB.Table,
		"backends.dynamodb.entity_attribute":     b.DynamoDB.EntityAttribute,
		"backends.dynamodb.key_attribute":        b.DynamoDB.KeyAttribute,
		"backends.dynamodb.consistent_read":      b.DynamoDB.ConsistentRead,
		"backends.sqlite.table":                  b.SQLite.Table,
		"backends.sqlite.id_field":               b.SQLite.IDField,
		"store.path":                             def.Store.Path,
		"log.level":                              def.Log.Level,
		"log.format":                             def.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
