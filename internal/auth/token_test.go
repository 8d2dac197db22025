package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// TestEnvTokenSource checks reading and trimming from the environment.
func TestEnvTokenSource(t *testing.T) {
	t.Setenv("PIPSYNC_TEST_TOKEN", "  abc  ")
	got, err := EnvTokenSource{Var: "PIPSYNC_TEST_TOKEN"}.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got != "abc" {
		t.Fatalf("expected trimmed token, got %q", got)
	}

	t.Setenv("PIPSYNC_TEST_TOKEN", "")
	if _, err := (EnvTokenSource{Var: "PIPSYNC_TEST_TOKEN"}).Token(); err != ErrNoToken {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

// TestExpiresAt checks the exp claim is read without verification.
func TestExpiresAt(t *testing.T) {
	expiry := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	token := signedToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiry)})
	got, ok := ExpiresAt(token)
	if !ok {
		t.Fatalf("expected expiry")
	}
	if !got.Equal(expiry) {
		t.Fatalf("expected %v, got %v", expiry, got)
	}
}

// TestExpiresAtOpaque checks non-JWT and exp-less tokens report no
// expiry.
func TestExpiresAtOpaque(t *testing.T) {
	if _, ok := ExpiresAt("opaque-api-key"); ok {
		t.Fatalf("expected no expiry for opaque token")
	}
	token := signedToken(t, jwt.RegisteredClaims{Subject: "svc"})
	if _, ok := ExpiresAt(token); ok {
		t.Fatalf("expected no expiry without exp claim")
	}
}

// TestExpiryWarning checks the three warning outcomes: expired, expiring
// soon, and fine.
func TestExpiryWarning(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	lead := 10 * time.Minute

	expired := signedToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour))})
	if warning := ExpiryWarning(expired, now, lead); !strings.Contains(warning, "expired") {
		t.Fatalf("expected expired warning, got %q", warning)
	}

	soon := signedToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute))})
	if warning := ExpiryWarning(soon, now, lead); !strings.Contains(warning, "expires in") {
		t.Fatalf("expected expiring-soon warning, got %q", warning)
	}

	fine := signedToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour))})
	if warning := ExpiryWarning(fine, now, lead); warning != "" {
		t.Fatalf("expected no warning, got %q", warning)
	}

	if warning := ExpiryWarning("opaque", now, lead); warning != "" {
		t.Fatalf("expected no warning for opaque token, got %q", warning)
	}
}
