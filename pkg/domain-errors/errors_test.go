package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCauseOutOfMessage(t *testing.T) {
	cause := errors.New("pq: duplicate key value violates unique constraint")
	err := Wrap(cause, CodeInternal, "failed to create person")

	assert.Equal(t, "failed to create person", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ReasonInternal, err.Reason)
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(CodeNotFound, "identity not found")
	outer := Wrap(fmt.Errorf("load: %w", inner), CodeInternal, "failed to load")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(outer, CodeConflict))
	assert.True(t, Is(outer, CodeInternal))
	assert.False(t, Is(outer, CodeNotFound))
}

func TestDefaultReasons(t *testing.T) {
	assert.Equal(t, ReasonSchema, New(CodeValidation, "x").Reason)
	assert.Equal(t, ReasonGeneric, New(CodeForbidden, "x").Reason)
	assert.Equal(t, ReasonUnknownName, New(CodeBadRequest, "x").WithReason(ReasonUnknownName).Reason)
}
