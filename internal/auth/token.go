package auth

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken reports that the configured token variable is unset or empty.
var ErrNoToken = errors.New("auth: token environment variable is empty")

// TokenSource yields the bearer token for authenticated fetches. The
// console never acquires tokens itself; it reads whatever the operator's
// environment provides.
type TokenSource interface {
	Token() (string, error)
}

// EnvTokenSource reads a bearer token from a fixed environment variable.
type EnvTokenSource struct {
	Var string
}

// Token returns the current token value.
func (s EnvTokenSource) Token() (string, error) {
	value := strings.TrimSpace(os.Getenv(s.Var))
	if value == "" {
		return "", ErrNoToken
	}
	return value, nil
}

// StaticTokenSource returns a fixed token, used by tests.
type StaticTokenSource string

// Token returns the fixed token value.
func (s StaticTokenSource) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// ExpiresAt reports the expiry of a JWT bearer token without verifying its
// signature; the platform verifies tokens, the console only warns the
// operator ahead of time. Returns false for opaque tokens or tokens
// without an exp claim.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiryWarning returns a human-readable warning when a token is expired
// or expires within the lead window, and "" otherwise.
func ExpiryWarning(token string, now time.Time, lead time.Duration) string {
	expiry, ok := ExpiresAt(token)
	if !ok {
		return ""
	}
	if !expiry.After(now) {
		return "API token is expired; requests will likely fail with 401"
	}
	if expiry.Sub(now) < lead {
		return "API token expires in " + expiry.Sub(now).Round(time.Minute).String()
	}
	return ""
}
