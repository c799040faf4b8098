package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByEmail(t *testing.T) {
	ident := ByEmail("user@example.com")

	assert.True(t, ident.IsEmail())
	assert.Equal(t, KindEmail, ident.Kind())
	assert.Equal(t, "user@example.com", ident.Value())
	assert.Equal(t, "email:user@example.com", ident.String())
	assert.False(t, ident.IsZero())

	_, ok := ident.UserID()
	assert.False(t, ok)
}

func TestByUserID(t *testing.T) {
	id := uuid.New()
	ident := ByUserID(id)

	assert.False(t, ident.IsEmail())
	assert.Equal(t, KindUserID, ident.Kind())
	assert.Equal(t, "user_id:"+id.String(), ident.String())

	parsed, ok := ident.UserID()
	require.True(t, ok)
	assert.Equal(t, id, parsed)
}

func TestParse(t *testing.T) {
	t.Run("email round-trips", func(t *testing.T) {
		ident, err := Parse("email", "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, ByEmail("user@example.com"), ident)
	})

	t.Run("user id round-trips", func(t *testing.T) {
		id := uuid.New()
		ident, err := Parse("user_id", id.String())
		require.NoError(t, err)
		assert.Equal(t, ByUserID(id), ident)
	})

	t.Run("rejects empty value", func(t *testing.T) {
		_, err := Parse("email", "")
		assert.Error(t, err)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := Parse("phone", "+15550100")
		assert.Error(t, err)
	})

	t.Run("rejects malformed user id", func(t *testing.T) {
		_, err := Parse("user_id", "not-a-uuid")
		assert.Error(t, err)
	})
}

func TestZeroValue(t *testing.T) {
	var ident Identifier
	assert.True(t, ident.IsZero())
}

func TestKindsNeverCollide(t *testing.T) {
	// An email that happens to look like a UUID still keys differently from
	// the user-reference form of the same string.
	id := uuid.New()
	asEmail := ByEmail(id.String())
	asUser := ByUserID(id)

	assert.NotEqual(t, asEmail.String(), asUser.String())
}
