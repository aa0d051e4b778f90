package token

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_AccessTokenRoundTrip(t *testing.T) {
	manager := NewJWT("test-secret")
	userID := uuid.New()

	tokenString, err := manager.GenerateAccessToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	got, err := manager.ParseAccessToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWT_RefreshTokenRoundTrip(t *testing.T) {
	manager := NewJWT("test-secret")
	userID := uuid.New()

	tokenString, jti, err := manager.GenerateRefreshToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	gotUser, gotJTI, err := manager.ParseRefreshToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, jti, gotJTI)
}

func TestJWT_TokenTypeMismatch(t *testing.T) {
	manager := NewJWT("test-secret")
	userID := uuid.New()

	access, err := manager.GenerateAccessToken(userID)
	require.NoError(t, err)
	refresh, _, err := manager.GenerateRefreshToken(userID)
	require.NoError(t, err)

	_, _, err = manager.ParseRefreshToken(access)
	assert.Error(t, err)

	_, err = manager.ParseAccessToken(refresh)
	assert.Error(t, err)
}

func TestJWT_WrongSecret(t *testing.T) {
	manager := NewJWT("test-secret")
	other := NewJWT("other-secret")

	tokenString, err := manager.GenerateAccessToken(uuid.New())
	require.NoError(t, err)

	_, err = other.ParseAccessToken(tokenString)
	assert.Error(t, err)
}

func TestJWT_Garbage(t *testing.T) {
	manager := NewJWT("test-secret")

	_, err := manager.ParseAccessToken("not a jwt")
	assert.Error(t, err)
}
