// Package authtoken issues and checks the HS256 bearer tokens that guard the
// internal operations API.
package authtoken

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/yungbote/lineflow-backend/internal/pkg/errors"
)

const ScopeInternal = "internal"

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func Issue(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("issue token: empty secret")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := Claims{
		Scope: ScopeInternal,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse returns the claims of a valid internal token. Every failure wraps
// ErrUnauthorized.
func Parse(secret, token string) (*Claims, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing token", pkgerrors.ErrUnauthorized)
	}
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrUnauthorized, err)
	}
	if claims.Scope != ScopeInternal {
		return nil, fmt.Errorf("%w: wrong scope %q", pkgerrors.ErrUnauthorized, claims.Scope)
	}
	return claims, nil
}
