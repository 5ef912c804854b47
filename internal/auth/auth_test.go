package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenCarriesTier(t *testing.T) {
	svc := NewService("unit-test-secret")
	svc.RegisterAPICredentials("key-1", "secret-1", "paid")

	resp, err := svc.GenerateToken(Credentials{APIKey: "key-1", APISecret: "secret-1"})
	require.NoError(t, err)
	assert.Equal(t, "paid", resp.Tier)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.Expiration, time.Minute)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "key-1", claims.ClientID)
	assert.Equal(t, "paid", claims.Tier)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := NewService("unit-test-secret")
	svc.RegisterAPICredentials("key-1", "secret-1", "free")

	_, err := svc.GenerateToken(Credentials{APIKey: "key-1", APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(Credentials{APIKey: "unknown", APISecret: "secret-1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// The tier middleware reads tokens as generic map claims, so the tier field
// must survive a round trip through that representation.
func TestTierReadableFromMapClaims(t *testing.T) {
	svc := NewService("unit-test-secret")
	svc.RegisterAPICredentials("key-1", "secret-1", "enterprise")

	resp, err := svc.GenerateToken(Credentials{APIKey: "key-1", APISecret: "secret-1"})
	require.NoError(t, err)

	token, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) {
		return []byte("unit-test-secret"), nil
	})
	require.NoError(t, err)

	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "enterprise", claims["tier"])
	assert.Equal(t, "key-1", claims["client_id"])
}
