package util

import (
	"testing"

	"github.com/stretchr/testify/require"

	"session-auth/internal/model"
)

func TestNormalizeNickname(t *testing.T) {
	t.Parallel()

	t.Run("accepts hangul and digits", func(t *testing.T) {
		actual, err := NormalizeNickname("  선생님42 ")
		require.NoError(t, err)
		require.Equal(t, "선생님42", actual)
	})

	t.Run("strips zero-width characters", func(t *testing.T) {
		actual, err := NormalizeNickname("ne\u200Bo")
		require.NoError(t, err)
		require.Equal(t, "neo", actual)
	})

	t.Run("rejects too short after stripping", func(t *testing.T) {
		_, err := NormalizeNickname("a\u200B\u200C")
		require.ErrorIs(t, err, model.ErrInvalidInput)
	})

	t.Run("rejects too long", func(t *testing.T) {
		_, err := NormalizeNickname("abcdefghijklmnopqrstu")
		require.ErrorIs(t, err, model.ErrInvalidInput)
	})

	t.Run("rejects punctuation and spaces", func(t *testing.T) {
		_, err := NormalizeNickname("neo anderson")
		require.ErrorIs(t, err, model.ErrInvalidInput)

		_, err = NormalizeNickname("neo!")
		require.ErrorIs(t, err, model.ErrInvalidInput)
	})
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidatePassword("s3cret!pw"))
	require.ErrorIs(t, ValidatePassword("short1!"), model.ErrInvalidInput)
	require.ErrorIs(t, ValidatePassword("nodigits!!"), model.ErrInvalidInput)
	require.ErrorIs(t, ValidatePassword("nosymbol123"), model.ErrInvalidInput)
	require.ErrorIs(t, ValidatePassword("has space 1!"), model.ErrInvalidInput)
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	email, err := NormalizeEmail(" Student@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "student@example.com", email)

	_, err = NormalizeEmail("Student <student@example.com>")
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = NormalizeEmail("not-an-email")
	require.ErrorIs(t, err, model.ErrInvalidInput)
}
