package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	base := New(CodeNotFound, "definition not found")
	wrapped := fmt.Errorf("load: %w", base)

	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(wrapped, CodeConflict))
	assert.False(t, HasCode(nil, CodeNotFound))
	assert.True(t, Is(wrapped, CodeNotFound))
}

func TestErrorsIsMatchesCodeAndMessage(t *testing.T) {
	err := fmt.Errorf("ctx: %w", New(CodeUnauthorized, "invalid token"))

	require.ErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
	require.ErrorIs(t, err, &Error{Code: CodeUnauthorized})
	require.NotErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "append events")

	assert.Equal(t, "append events: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(cause))
}
