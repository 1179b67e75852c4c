package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCompileCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompile_Text(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"sqlite", `json_extract(body, '$."age"') >= ?`},
		{"cassandra", "age>=18"},
		{"couchdb", `"$gte":18`},
		{"solr", "age"},
		{"mongodb", `"$gte"`},
		{"n1ql", "e.`age` >= $2"},
		{"dynamodb", ">="},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			out, err := runCompileCommand(t, "text", "--backend", tt.backend, filepath.Join("testdata", "portable.yaml"))
			require.NoError(t, err)
			assert.Contains(t, out, "✓ Compiled person for "+tt.backend)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCompile_JSON(t *testing.T) {
	out, err := runCompileCommand(t, "json", "--backend", "couchdb", filepath.Join("testdata", "portable.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CompileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "couchdb", resp.Data.Backend)
	assert.Equal(t, "person", resp.Data.Entity)

	var compiled map[string]any
	require.NoError(t, json.Unmarshal(resp.Data.Compiled, &compiled))
	assert.Contains(t, compiled, "selector")
	assert.Equal(t, []any{"_id", "_rev", "name"}, compiled["fields"])
}

func TestCompile_OutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	out, err := runCompileCommand(t, "text", "--backend", "sqlite", "-o", outputFile, filepath.Join("testdata", "portable.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote compiled request to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var compiled map[string]any
	require.NoError(t, json.Unmarshal(data, &compiled))
	assert.Contains(t, compiled["sql"], "SELECT")
	assert.Equal(t, "person", compiled["params"].([]any)[0])
}

func TestCompile_Delete(t *testing.T) {
	out, err := runCompileCommand(t, "text", "--backend", "sqlite", "--delete", filepath.Join("testdata", "portable.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "DELETE FROM entities")
}

func TestCompile_Failures(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		exitCode int
		code     string
	}{
		{
			name:     "unsupported or",
			args:     []string{"--backend", "cassandra", filepath.Join("testdata", "adults.yaml")},
			exitCode: ExitFailure,
			code:     ErrCodeUnsupported,
		},
		{
			name:     "unsupported sort",
			args:     []string{"--backend", "dynamodb", filepath.Join("testdata", "adults.yaml")},
			exitCode: ExitFailure,
			code:     ErrCodeUnsupported,
		},
		{
			name:     "missing backend",
			args:     []string{filepath.Join("testdata", "portable.yaml")},
			exitCode: ExitCommandError,
			code:     ErrCodeUnknownBackend,
		},
		{
			name:     "unknown backend",
			args:     []string{"--backend", "oracle", filepath.Join("testdata", "portable.yaml")},
			exitCode: ExitCommandError,
			code:     ErrCodeUnknownBackend,
		},
		{
			name:     "document not found",
			args:     []string{"--backend", "sqlite", filepath.Join("testdata", "missing.yaml")},
			exitCode: ExitCommandError,
			code:     ErrCodeNotFound,
		},
		{
			name:     "invalid document",
			args:     []string{"--backend", "sqlite", filepath.Join("testdata", "broken.yaml")},
			exitCode: ExitCommandError,
			code:     ErrCodeInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCompileCommand(t, "json", tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
