package queryir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCursor struct {
	backend string
	token   string
}

func (c stubCursor) Backend() string { return c.backend }
func (c stubCursor) Empty() bool     { return c.token == "" }
func (c stubCursor) String() string  { return c.token }

func TestBuilder(t *testing.T) {
	q, err := Select("name", "age").
		From("Person").
		Where(Gt("age", 10)).
		Where(Eq("city", "Assis")).
		OrderBy(Desc("age"), Asc("name")).
		Limit(5).
		Skip(2).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "Person", q.Entity)
	assert.Equal(t, []string{"name", "age"}, q.Fields)
	assert.Equal(t, []Sort{{Field: "age", Order: Descending}, {Field: "name", Order: Ascending}}, q.Sorts)
	assert.Equal(t, uint64(5), q.Limit)
	assert.Equal(t, uint64(2), q.Skip)
	assert.Equal(t, AllOf(Gt("age", 10), Eq("city", "Assis")), q.Condition)
	assert.Nil(t, q.Cursor)
}

func TestBuilderDefaults(t *testing.T) {
	q, err := Select().From("Person").Build()
	require.NoError(t, err)

	assert.Empty(t, q.Fields)
	assert.Nil(t, q.Condition)
	assert.Zero(t, q.Limit)
	assert.Zero(t, q.Skip)
}

func TestBuilderRequiresEntity(t *testing.T) {
	_, err := Select().Where(Eq("a", 1)).Build()
	require.Error(t, err)
	assert.True(t, IsRequired(err))
	assert.True(t, errors.Is(err, ErrRequiredArgument))
}

func TestBuilderRejectsInvalidCondition(t *testing.T) {
	_, err := Select().From("Person").Where(InList("age", 10)).Build()
	assert.True(t, IsRequired(err))

	_, err = Select().From("Person").OrderBy(Sort{}).Build()
	assert.True(t, IsRequired(err))
}

func TestWithCursorCopies(t *testing.T) {
	q, err := Select("a").From("Person").After(stubCursor{backend: "x", token: "t1"}).Build()
	require.NoError(t, err)
	assert.Equal(t, "t1", q.Cursor.String())

	next := q.WithCursor(stubCursor{backend: "x", token: "t2"})
	next.Fields[0] = "changed"

	assert.Equal(t, "a", q.Fields[0])
	assert.Equal(t, "t1", q.Cursor.String())
	assert.Equal(t, "t2", next.Cursor.String())
}

func TestDeleteBuilder(t *testing.T) {
	d, err := Delete().From("Person").Where(Eq("id", 10)).Where(Gt("age", 3)).Build()
	require.NoError(t, err)
	assert.Equal(t, "Person", d.Entity)
	assert.Equal(t, AllOf(Eq("id", 10), Gt("age", 3)), d.Condition)

	_, err = Delete().Build()
	assert.True(t, IsRequired(err))

	_, err = Delete().From("Person").Where(Not{}).Build()
	assert.True(t, IsRequired(err))
}

func TestOrderString(t *testing.T) {
	assert.Equal(t, "asc", Ascending.String())
	assert.Equal(t, "desc", Descending.String())
}
