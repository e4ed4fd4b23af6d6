package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1)
	tok, err := m.GenerateToken("user-42", "alice")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewJWTManager("secret", 1).GenerateToken("u", "")
	require.NoError(t, err)
	_, err = NewJWTManager("other", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	claims := CustomClaims{
		UserID: "u",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTManager("secret", 1).VerifyToken(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_RejectsMissingUser(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTManager("secret", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestGenerate_RequiresUser(t *testing.T) {
	_, err := NewJWTManager("secret", 1).GenerateToken("", "")
	assert.Error(t, err)
}
