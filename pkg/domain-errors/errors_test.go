package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrors(t *testing.T) {
	t.Run("new carries code and message", func(t *testing.T) {
		err := New(CodeChecksumMismatch, "digest differs")
		assert.True(t, HasCode(err, CodeChecksumMismatch))
		assert.Equal(t, "digest differs", err.Error())
		assert.Equal(t, CodeChecksumMismatch, CodeOf(err))
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeNetwork, "issue request failed")
		assert.ErrorIs(t, err, cause)
		assert.True(t, Is(err, CodeNetwork))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("inner codes are found through fmt wrapping", func(t *testing.T) {
		inner := New(CodeSessionLocked, "locked")
		outer := Wrap(fmt.Errorf("advance: %w", inner), CodeInternal, "runner")
		assert.True(t, HasCode(outer, CodeSessionLocked))
		assert.True(t, HasCode(outer, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(outer))
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("x"), CodeNotFound))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
	})
}
