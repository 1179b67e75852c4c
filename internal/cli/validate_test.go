package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateCommand(t *testing.T, format string, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidate_Portable(t *testing.T) {
	out, err := runValidateCommand(t, "text", filepath.Join("testdata", "portable.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "person: 7 of 7 backend(s) can run the query")
	assert.Contains(t, out, "✓ cassandra")
	assert.Contains(t, out, "✓ sqlite")
	assert.NotContains(t, out, "✗")
}

func TestValidate_NotPortable(t *testing.T) {
	out, err := runValidateCommand(t, "text", filepath.Join("testdata", "adults.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "person: 5 of 7 backend(s) can run the query")
	assert.Contains(t, out, "✗ cassandra")
	assert.Contains(t, out, "✗ dynamodb")
	assert.Contains(t, out, "✓ couchdb")
}

func TestValidate_JSON(t *testing.T) {
	out, err := runValidateCommand(t, "json", filepath.Join("testdata", "adults.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "person", resp.Data.Entity)
	assert.False(t, resp.Data.Portable)
	require.Len(t, resp.Data.Backends, 7)

	byBackend := map[string]BackendReport{}
	for _, r := range resp.Data.Backends {
		byBackend[r.Backend] = r
	}
	assert.Equal(t, "unsupported", byBackend["cassandra"].Status)
	assert.Equal(t, "or", byBackend["cassandra"].Feature)
	assert.Equal(t, "unsupported", byBackend["dynamodb"].Status)
	assert.Equal(t, "sort", byBackend["dynamodb"].Feature)
	assert.Equal(t, "ok", byBackend["mongodb"].Status)
	assert.Empty(t, byBackend["mongodb"].Message)
}

func TestValidate_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"not found", filepath.Join("testdata", "missing.yaml"), ErrCodeNotFound},
		{"directory", "testdata", ErrCodeNotFound},
		{"unknown operator", filepath.Join("testdata", "broken.yaml"), ErrCodeInvalidDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runValidateCommand(t, "text", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
