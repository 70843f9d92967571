package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	userID := uuid.New()

	token, err := v.GenerateToken(userID, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "community-auth", claims.Issuer)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewVerifier("secret-a")
	verifier := NewVerifier("secret-b")

	token, err := issuer.GenerateToken(uuid.New(), "alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")

	claims := &CustomClaims{
		UserID:   uuid.New(),
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsUnsignedAlg(t *testing.T) {
	v := NewVerifier("test-secret")

	claims := &CustomClaims{UserID: uuid.New(), Username: "alice"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret")
	_, err := v.ValidateToken("not.a.token")
	assert.Error(t, err)
}
