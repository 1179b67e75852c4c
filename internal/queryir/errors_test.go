package queryir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileErrorMessages(t *testing.T) {
	assert.Equal(t, "UNSUPPORTED_OPERATION: or is not supported (backend=cassandra)", Unsupported("cassandra", "or").Error())
	assert.Equal(t, "REQUIRED_ARGUMENT: entity name is required", Required("", "entity name").Error())
	assert.Equal(t,
		`FOREIGN_CURSOR: cursor from "solr" cannot resume a couchdb query (backend=couchdb)`,
		Foreign("couchdb", stubCursor{backend: "solr"}).Error())
}

func TestCompileErrorSentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		other    error
	}{
		{Unsupported("b", "or"), ErrUnsupportedOperation, ErrForeignCursor},
		{Required("b", "entity"), ErrRequiredArgument, ErrUnsupportedOperation},
		{Invalid("b", "and", "bad"), ErrInvalidCondition, ErrRequiredArgument},
		{Foreign("b", stubCursor{backend: "a"}), ErrForeignCursor, ErrInvalidCondition},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("compile: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.False(t, errors.Is(wrapped, tt.other))
		})
	}
}

func TestIsHelpers(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Unsupported("b", "like"))
	assert.True(t, IsUnsupported(wrapped))
	assert.False(t, IsRequired(wrapped))
	assert.False(t, IsForeignCursor(wrapped))

	assert.True(t, IsRequired(fmt.Errorf("x: %w", ErrRequiredArgument)))
	assert.True(t, IsForeignCursor(Foreign("b", stubCursor{backend: "a"})))
	assert.False(t, IsUnsupported(errors.New("plain")))
}
