// Package auth issues and verifies bearer tokens and runs the Google login flow.
package auth

import (
	"errors"
	"fmt"
	"studynotes/internal/apperrors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Identity is the authenticated caller.
type Identity struct {
	OwnerID string
	Email   string
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens. The subject claim carries
// the owner id.
type TokenManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenManager creates a manager. A non-positive ttl uses DefaultTokenTTL.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("auth: JWT secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{key: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for id.
func (m *TokenManager) Issue(id Identity) (string, error) {
	if id.OwnerID == "" {
		return "", apperrors.Validation("sub", "owner id is required")
	}
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.OwnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", apperrors.Internal("auth.issue", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Any failure is an unauthorized error.
func (m *TokenManager) Verify(tokenString string) (*Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("token expired")
		}
		return nil, apperrors.Unauthorized(fmt.Sprintf("invalid token: %v", err))
	}
	if c.Subject == "" {
		return nil, apperrors.Unauthorized("token has no subject")
	}
	return &Identity{OwnerID: c.Subject, Email: c.Email}, nil
}
