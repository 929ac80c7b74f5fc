package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Role enumerates staff roles carried in externally issued tokens.
type Role string

const (
	RolePhysician Role = "PHYSICIAN"
	RoleReception Role = "RECEPTION"
	RoleAdmin     Role = "ADMIN"
)

// TokenManager validates staff JWTs. Tokens are issued by the platform's
// identity service; this service only shares the HS256 secret and parses.
type TokenManager struct {
	secret []byte
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Claims describes the JWT payload for staff callers.
type Claims struct {
	StaffID string `json:"sub"`
	Role    Role   `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GenerateToken signs a token for the subject. Production tokens come from
// the identity service; this helper serves development and tests.
func (tm *TokenManager) GenerateToken(staffID string, role Role, ttl time.Duration) (string, error) {
	claims := &Claims{
		StaffID: staffID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}
