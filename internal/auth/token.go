// Package auth supplies the bearer token for portal requests and runs the
// offline checks made before a run is allowed to start.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spigell/jobpilot/internal/secrets"
)

var (
	ErrTokenMissing = errors.New("portal token is missing")
	ErrTokenExpired = errors.New("portal token is expired")
)

// SecretTokenSource resolves the token through the secrets loader on every call,
// so a token file refreshed between runs is picked up.
type SecretTokenSource struct {
	Source secrets.Source
}

func (s SecretTokenSource) Token() (string, error) {
	return secrets.Load(s.Source)
}

// Claims is the subset of portal token claims the client cares about.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Inspect decodes token claims without verifying the signature.
// Only the portal can verify tokens; the client reads them for display and expiry checks.
func Inspect(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMissing
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", err)
	}

	claims := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = role
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

// CheckToken reports whether the token may be used to start a run at the given time.
// Opaque (non-JWT) tokens are accepted as is.
func CheckToken(token string, now time.Time) error {
	if strings.TrimSpace(token) == "" {
		return ErrTokenMissing
	}

	claims, err := Inspect(token)
	if err != nil {
		return nil
	}

	if !claims.ExpiresAt.IsZero() && !claims.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}

	return nil
}
