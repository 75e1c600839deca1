package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/taskflow-chat/pkg/protocol"
)

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestIdentityFromToken(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("subject claim", func(t *testing.T) {
		token := signed(t, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(exp)})
		id, err := IdentityFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", id.UserID)
		assert.True(t, id.ExpiresAt.Equal(exp))
	})

	t.Run("userId claim", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{"userId": "u2"})
		id, err := IdentityFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, "u2", id.UserID)
		assert.True(t, id.ExpiresAt.IsZero())
	})

	t.Run("id claim", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{"id": "u3"})
		id, err := IdentityFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, "u3", id.UserID)
	})

	t.Run("no user", func(t *testing.T) {
		token := signed(t, jwt.MapClaims{"role": "admin"})
		_, err := IdentityFromToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("not a jwt", func(t *testing.T) {
		_, err := IdentityFromToken("opaque-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestIdentityExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, Identity{}.Expired(now))
	assert.True(t, Identity{ExpiresAt: now.Add(-time.Second)}.Expired(now))
	assert.False(t, Identity{ExpiresAt: now.Add(time.Second)}.Expired(now))
}

func TestSessionResolve(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fills user id from token", func(t *testing.T) {
		s := &Session{Token: signed(t, jwt.RegisteredClaims{Subject: "u1"})}
		require.NoError(t, s.Resolve(now))
		assert.Equal(t, "u1", s.User.ID)
	})

	t.Run("keeps user from login response", func(t *testing.T) {
		s := &Session{Token: signed(t, jwt.RegisteredClaims{Subject: "u1"}), User: protocol.User{ID: "other"}}
		require.NoError(t, s.Resolve(now))
		assert.Equal(t, "other", s.User.ID)
	})

	t.Run("expired", func(t *testing.T) {
		s := &Session{Token: signed(t, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour))})}
		assert.ErrorIs(t, s.Resolve(now), ErrSessionExpired)
	})

	t.Run("opaque token with user", func(t *testing.T) {
		s := &Session{Token: "opaque", User: protocol.User{ID: "u1"}}
		assert.NoError(t, s.Resolve(now))
	})

	t.Run("opaque token without user", func(t *testing.T) {
		s := &Session{Token: "opaque"}
		assert.ErrorIs(t, s.Resolve(now), ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, (&Session{}).Resolve(now), ErrNoSession)
	})
}

func TestSaveLoadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrNoSession)

	in := &Session{
		Token:   "tok",
		User:    protocol.User{ID: "u1", FirstName: "Ada", Email: "ada@example.com"},
		SavedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, Save(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in.Token, out.Token)
	assert.Equal(t, in.User, out.User)
	assert.True(t, in.SavedAt.Equal(out.SavedAt))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))
	_, err = Load(path)
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}
