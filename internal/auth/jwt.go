package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by the bearer credential the external auth service issues.
// The chat core only ever validates these; it never refreshes or revokes.
type CustomClaims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

type Verifier struct {
	key []byte
}

func NewVerifier(authKey string) *Verifier {
	if authKey == "" {
		log.Printf("[AUTH] WARNING: AuthKey is empty!")
	}
	return &Verifier{key: []byte(authKey)}
}

// GenerateToken mirrors the external issuer's signing scheme. The server
// never calls it; tests and local tooling do.
func (v *Verifier) GenerateToken(userID uuid.UUID, username string) (string, error) {
	expiresAt := time.Now().Add(24 * time.Hour)

	claims := &CustomClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "community-auth",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(v.key)
	if err != nil {
		log.Printf("[AUTH] ERROR: Failed to sign token for user %s: %v", userID, err)
		return "", err
	}

	return tokenString, nil
}

func (v *Verifier) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			errDetail := fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			log.Printf("[AUTH] VALIDATION FAILED: %v", errDetail)
			return nil, errDetail
		}
		return v.key, nil
	})

	if err != nil {
		log.Printf("[AUTH] JWT Parse Error: %v", err)
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}

	log.Printf("[AUTH] VALIDATION FAILED: Token claims invalid or token not valid")
	return nil, errors.New("invalid token")
}
