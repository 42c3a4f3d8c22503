package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spigell/jobpilot/internal/secrets"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestInspect(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	token := signed(t, jwt.MapClaims{"sub": "alice", "role": "student", "exp": exp.Unix()})

	claims, err := Inspect(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if claims.Subject != "alice" || claims.Role != "student" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %s, got %s", exp, claims.ExpiresAt)
	}

	if _, err := Inspect("  "); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
}

func TestCheckToken(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: ErrTokenMissing},
		{name: "opaque token", token: "opaque-token-value"},
		{name: "valid jwt", token: signed(t, jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()})},
		{name: "jwt without expiry", token: signed(t, jwt.MapClaims{"sub": "alice"})},
		{name: "expired jwt", token: signed(t, jwt.MapClaims{"sub": "alice", "exp": now.Add(-time.Minute).Unix()}), wantErr: ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckToken(tt.token, now)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSecretTokenSourceRereadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}

	src := SecretTokenSource{Source: secrets.Source{Name: "portal token", File: path}}

	got, err := src.Token()
	if err != nil || got != "first" {
		t.Fatalf("expected first token, got %q (%v)", got, err)
	}

	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("rewrite token: %v", err)
	}

	got, err = src.Token()
	if err != nil || got != "second" {
		t.Fatalf("expected refreshed token, got %q (%v)", got, err)
	}
}
