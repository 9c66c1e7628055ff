package auth_test

import (
	"testing"
	"time"

	"keyrelay/internal/auth"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestPrincipal(t *testing.T) {
	v := auth.NewVerifier("secret")

	principal, err := v.Principal(sign(t, "secret", "alice"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal != "alice" {
		t.Fatalf("expected alice, got %q", principal)
	}
}

func TestPrincipalRejectsWrongSecret(t *testing.T) {
	v := auth.NewVerifier("secret")

	if _, err := v.Principal(sign(t, "other-secret", "alice")); err == nil {
		t.Fatalf("expected verification failure for wrong secret")
	}
}

func TestPrincipalRejectsMissingSubject(t *testing.T) {
	v := auth.NewVerifier("secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Principal(signed); err == nil {
		t.Fatalf("expected failure for token without subject")
	}
}
