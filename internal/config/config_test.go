package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/backend"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, backend.DefaultOptions(), cfg.Backends)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "polystore.yaml", `
backends:
  cassandra:
    keyspace: ks
    allow_filtering: true
  dynamodb:
    table: shared
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ks", cfg.Backends.Cassandra.Keyspace)
	assert.True(t, cfg.Backends.Cassandra.AllowFiltering)
	assert.Equal(t, 5000, cfg.Backends.Cassandra.FetchSize)
	assert.Equal(t, "shared", cfg.Backends.DynamoDB.Table)
	assert.Equal(t, "_id", cfg.Backends.DynamoDB.KeyAttribute)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "polystore.json", `{"store": {"path": "/tmp/x.db"}, "backends": {"n1ql": {"keyspace": "bucket.scope.coll"}}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, "bucket.scope.coll", cfg.Backends.N1QL.Keyspace)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "polystore.yaml", "backends:\n  sqlite:\n    table: from_file\n")
	t.Setenv("POLYSTORE_BACKENDS_SQLITE_TABLE", "from_env")
	t.Setenv("POLYSTORE_BACKENDS_SOLR_DEEP_PAGING", "true")
	t.Setenv("POLYSTORE_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Backends.SQLite.Table)
	assert.True(t, cfg.Backends.Solr.DeepPaging)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "log:\n  level: loud\n"))
	assert.ErrorContains(t, err, "log.level")

	_, err = Load(writeFile(t, "bad.yaml", "log:\n  format: xml\n"))
	assert.ErrorContains(t, err, "log.format")
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := LogConfig{Level: "warn", Format: "json"}.Logger(&buf, false)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "backend", "sqlite")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"backend":"sqlite"`)

	buf.Reset()
	logger, err = LogConfig{Level: "error"}.Logger(&buf, true)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("compiled")
	assert.Contains(t, buf.String(), "msg=compiled")

	_, err = LogConfig{Level: "loud"}.Logger(&buf, false)
	assert.Error(t, err)
}
