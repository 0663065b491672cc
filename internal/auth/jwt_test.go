package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangwb/kaohe/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	mgr := NewTokenManager("test-secret", time.Hour)
	user := &models.User{ID: 7, Username: "wanghl", Name: "王海龙", Role: models.RoleLeader}

	token, err := mgr.Generate(user)
	require.NoError(t, err)

	claims, err := mgr.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "wanghl", claims.Username)
	assert.Equal(t, models.RoleLeader, claims.Role)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a", time.Hour).Generate(&models.User{ID: 1, Role: models.RoleManager})
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpired(t *testing.T) {
	mgr := NewTokenManager("test-secret", -time.Minute)
	token, err := mgr.Generate(&models.User{ID: 1, Role: models.RoleManager})
	require.NoError(t, err)

	_, err = mgr.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenGarbage(t *testing.T) {
	_, err := NewTokenManager("test-secret", time.Hour).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(4) // minimum cost keeps the test fast
	hash, err := h.Hash("admin123")
	require.NoError(t, err)

	assert.True(t, h.Compare(hash, "admin123"))
	assert.False(t, h.Compare(hash, "admin124"))
}
