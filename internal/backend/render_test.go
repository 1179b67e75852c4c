package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/queryir"
)

func adultsQuery(t *testing.T) queryir.Query {
	t.Helper()
	q, err := queryir.Select("name").From("person").Where(queryir.Gte("age", 18)).Build()
	require.NoError(t, err)
	return q
}

func TestRender_EveryKind(t *testing.T) {
	c := NewCompilers(DefaultOptions(), nil)
	q := adultsQuery(t)

	for _, k := range Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			compiled, err := c.Compile(k, q)
			require.NoError(t, err)

			r, err := Render(compiled)
			require.NoError(t, err)
			assert.NotEmpty(t, r.Text)
			assert.NotEmpty(t, r.Doc)

			data, err := RenderJSON(compiled)
			require.NoError(t, err)
			assert.True(t, json.Valid(data), "%s", data)

			again, err := RenderJSON(compiled)
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestRender_Shapes(t *testing.T) {
	c := NewCompilers(DefaultOptions(), nil)
	q := adultsQuery(t)

	compiled, err := c.Compile(SQLite, q)
	require.NoError(t, err)
	r, err := Render(compiled)
	require.NoError(t, err)
	assert.Equal(t, r.Doc["sql"], r.Text)

	compiled, err = c.Compile(MongoDB, q)
	require.NoError(t, err)
	r, err = Render(compiled)
	require.NoError(t, err)
	assert.Equal(t, "person", r.Doc["collection"])
	assert.Contains(t, r.Text, "$gte")
	assert.Contains(t, r.Doc, "projection")

	compiled, err = c.Compile(CouchDB, q)
	require.NoError(t, err)
	r, err = Render(compiled)
	require.NoError(t, err)
	assert.Contains(t, r.Text, `"$gte":18`)
}

func TestRender_KeyLookups(t *testing.T) {
	c := NewCompilers(DefaultOptions(), nil)
	q, err := queryir.Select().From("person").Where(queryir.Eq("_id", "p1")).Build()
	require.NoError(t, err)

	compiled, err := c.Compile(N1QL, q)
	require.NoError(t, err)
	r, err := Render(compiled)
	require.NoError(t, err)
	assert.Equal(t, `KEYS ["p1"]`, r.Text)
	assert.Equal(t, []string{"p1"}, r.Doc["keys"])

	compiled, err = c.Compile(DynamoDB, q)
	require.NoError(t, err)
	r, err = Render(compiled)
	require.NoError(t, err)
	assert.Equal(t, "GetItem", r.Text)
	assert.Equal(t, []any{map[string]any{"_id": "p1"}}, r.Doc["keys"])
}

func TestRender_Deletes(t *testing.T) {
	c := NewCompilers(DefaultOptions(), nil)
	d, err := queryir.Delete().From("person").Where(queryir.Lt("age", 18)).Build()
	require.NoError(t, err)

	for _, k := range Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			compiled, err := c.CompileDelete(k, d)
			require.NoError(t, err)
			_, err = RenderJSON(compiled)
			require.NoError(t, err)
		})
	}
}

func TestRender_UnknownType(t *testing.T) {
	_, err := Render(42)
	assert.Error(t, err)
	_, err = RenderJSON("SELECT 1")
	assert.Error(t, err)
}
