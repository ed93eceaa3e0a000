package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetTokens(t *testing.T) {
	now := time.Date(2024, 12, 14, 10, 0, 0, 0, time.UTC)
	tokens := NewResetTokens("s3cret", 72*time.Hour)
	tokens.now = func() time.Time { return now }

	usr := User{ID: "6f1c", Name: "Diana Prince"}
	require.NoError(t, usr.SetPassword("Tr0ub4dor&3"))
	token := tokens.Make(usr)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, tokens.Verify(usr, token))
	})

	t.Run("malformed", func(t *testing.T) {
		for _, tok := range []string{"", "nodash", "!!!-abc", token + "x"} {
			assert.ErrorIs(t, tokens.Verify(usr, tok), ErrInvalidToken, tok)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewResetTokens("other", 72*time.Hour)
		other.now = tokens.now
		assert.ErrorIs(t, other.Verify(usr, token), ErrInvalidToken)
	})

	t.Run("invalidated by login", func(t *testing.T) {
		logged := usr
		at := now.Add(time.Hour)
		logged.LastLogin = &at
		assert.ErrorIs(t, tokens.Verify(logged, token), ErrInvalidToken)
	})

	t.Run("invalidated by password change", func(t *testing.T) {
		changed := usr
		require.NoError(t, changed.SetPassword("N3w-Passw0rd!"))
		assert.ErrorIs(t, tokens.Verify(changed, token), ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewResetTokens("s3cret", 72*time.Hour)
		later.now = func() time.Time { return now.Add(4 * 24 * time.Hour) }
		assert.ErrorIs(t, later.Verify(usr, token), ErrTokenExpired)

		later.now = func() time.Time { return now.Add(2 * 24 * time.Hour) }
		assert.NoError(t, later.Verify(usr, token))
	})
}

func TestUID(t *testing.T) {
	usr := User{ID: "0d8e4d1c-3b7f-4c55-a0f3-2f6f0e2d9a11"}
	id, err := DecodeUID(EncodeUID(usr))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = DecodeUID("%%%")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidityText(t *testing.T) {
	assert.Equal(t, "3 days", validityText(72*time.Hour))
	assert.Equal(t, "24 hours", validityText(24*time.Hour))
	assert.Equal(t, "2 hours", validityText(2*time.Hour))
}
