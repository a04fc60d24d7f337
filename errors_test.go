package quern

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("outer: %w", ErrNotFound)))
	assert.False(t, IsNotFound(ErrNotSingular))

	assert.True(t, IsNotSingular(ErrNotSingular))
	assert.False(t, IsNotSingular(errors.New("other")))
}

func TestConstraintErrorWrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("UNIQUE constraint failed: users.name")
	err := &ConstraintError{msg: inner.Error(), wrap: inner}
	assert.True(t, IsConstraintError(err))
	assert.True(t, IsConstraintError(fmt.Errorf("insert: %w", err)))
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "quern: constraint failed: UNIQUE constraint failed: users.name", err.Error())
	assert.False(t, IsConstraintError(errors.New("other")))
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, wrapError(nil))

	plain := errors.New("disk I/O error")
	err := wrapError(plain)
	require.Error(t, err)
	assert.ErrorIs(t, err, plain)
	assert.Contains(t, err.Error(), "quern: ")
}
