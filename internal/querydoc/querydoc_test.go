package querydoc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/ir"
	"github.com/roach88/polystore/internal/queryir"
)

func expectedQuery(t *testing.T) queryir.Query {
	t.Helper()
	q, err := queryir.Select("name", "age").
		From("person").
		Where(queryir.AllOf(
			queryir.Gte("age", 18),
			queryir.AnyOf(queryir.Eq("city", "Assis"), queryir.Match("name", "Ot%")),
			queryir.Negate(queryir.Eq("status", "closed")),
			queryir.InValues("tier", 1, 2),
		)).
		OrderBy(queryir.Desc("age"), queryir.Asc("name")).
		Limit(10).
		Skip(5).
		Build()
	require.NoError(t, err)
	return q
}

func TestLoad_AllFormatsAgree(t *testing.T) {
	want := expectedQuery(t)
	record := ir.NewEntity("person",
		ir.E("_id", "p1"),
		ir.E("name", "Otavio"),
		ir.E("age", 30),
		ir.E("address", ir.Nested{ir.E("city", "Assis")}),
	)

	for _, name := range []string{"adults.yaml", "adults.json", "adults.cue"} {
		t.Run(name, func(t *testing.T) {
			doc, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)

			q, err := doc.Query()
			require.NoError(t, err)
			assert.Equal(t, want, q)
			assert.Equal(t, queryir.Describe(want.Condition), queryir.Describe(q.Condition))

			require.Len(t, doc.Insert, 1)
			assert.True(t, record.Equal(doc.Insert[0]), "got %s", doc.Insert[0])

			d, err := doc.Delete()
			require.NoError(t, err)
			assert.Equal(t, "person", d.Entity)
		})
	}
}

func TestParse_Minimal(t *testing.T) {
	doc, err := Parse([]byte("entity: person\n"), FormatYAML)
	require.NoError(t, err)

	q, err := doc.Query()
	require.NoError(t, err)
	assert.Equal(t, queryir.Query{Entity: "person"}, q)
	assert.Empty(t, doc.Insert)
}

func TestParse_JSONNumbers(t *testing.T) {
	doc, err := Parse([]byte(`{"entity": "t", "where": {"eq": {"version": 3.2}}, "insert": [{"id": 9007199254740993}]}`), FormatJSON)
	require.NoError(t, err)

	_, el, ok := queryir.Leaf(doc.Where)
	require.True(t, ok)
	assert.Equal(t, ir.NewScalar(3.2), el.Value())

	id, _ := doc.Insert[0].Find("id")
	assert.Equal(t, ir.NewScalar(int64(9007199254740993)), id.Value())
}

func TestParse_SingleSortString(t *testing.T) {
	doc, err := Parse([]byte("entity: t\nsort: age DESC\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []queryir.Sort{queryir.Desc("age")}, doc.Sorts)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing entity", "select: [a]", "entity"},
		{"unknown key", "entity: t\nfrom: x", `unknown key "from"`},
		{"two operators", "entity: t\nwhere: {eq: {a: 1}, gt: {b: 2}}", "where: condition must be a map with one operator"},
		{"unknown operator", "entity: t\nwhere: {ne: {a: 1}}", "where.ne: unknown operator"},
		{"two fields", "entity: t\nwhere: {eq: {a: 1, b: 2}}", "where.eq: expected a map with one field"},
		{"in needs list", "entity: t\nwhere: {in: {a: 1}}", "where.in: expected a list"},
		{"like needs string", "entity: t\nwhere: {like: {a: 1}}", "where.like: pattern must be a string"},
		{"and needs list", "entity: t\nwhere: {and: {eq: {a: 1}}}", "where.and: expected a list"},
		{"nested path", "entity: t\nwhere: {or: [{eq: {a: 1}}, {not: {zz: {a: 1}}}]}", "where.or[1].not.zz: unknown operator"},
		{"bad order", "entity: t\nsort: [\"a sideways\"]", `sort[0]: unknown order "sideways"`},
		{"negative limit", "entity: t\nlimit: -1", "limit: expected a non-negative integer"},
		{"select strings", "entity: t\nselect: [1]", "select[0]: expected a string"},
		{"insert maps", "entity: t\ninsert: [1]", "insert[0]: expected a map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatYAML)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestQuery_ArityCheckedOnBuild(t *testing.T) {
	doc, err := Parse([]byte("entity: t\nwhere: {or: [{eq: {a: 1}}]}"), FormatYAML)
	require.NoError(t, err)

	_, err = doc.Query()
	assert.Error(t, err)
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{"q.yml": FormatYAML, "q.YAML": FormatYAML, "q.json": FormatJSON, "q.cue": FormatCUE} {
		got, err := FormatOf(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FormatOf("q.toml")
	assert.Error(t, err)

	_, err = Parse([]byte("entity: ["), FormatCUE)
	assert.Error(t, err)
}
