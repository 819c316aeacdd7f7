package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", "ecochallenge")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

var alice = Principal{Subject: "auth|abc123", Email: "alice@example.com"}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService(t *testing.T) {
	if _, err := NewTokenService("short", ""); err == nil {
		t.Error("NewTokenService() accepted a secret shorter than 16 chars")
	}

	ts, err := NewTokenService("this-is-16-chars", "")
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.issuer != "ecochallenge" {
		t.Errorf("default issuer = %q, want ecochallenge", ts.issuer)
	}
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(alice)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token %q does not look like a JWT", token)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != alice {
		t.Errorf("Validate() = %+v, want %+v", got, alice)
	}
}

func TestGenerate_EmptySubject(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Generate(Principal{Email: "x@example.com"}); err == nil {
		t.Error("Generate() accepted an empty subject")
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)

	expired, _ := ts.GenerateWithDuration(alice, -time.Second)
	valid, _ := ts.Generate(alice)

	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", "ecochallenge")
	wrongSecret, _ := other.Generate(alice)

	foreign, _ := NewTokenService("test-secret-at-least-16-chars!!", "someone-else")
	wrongIssuer, _ := foreign.Generate(alice)

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   alice.Subject,
		Issuer:    "ecochallenge",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: alice.Subject,
		Issuer:  "ecochallenge",
	}).SignedString([]byte("test-secret-at-least-16-chars!!"))

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "tampered signature", token: valid[:len(valid)-3] + "xxx"},
		{name: "wrong secret", token: wrongSecret},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "alg none", token: unsigned},
		{name: "no expiry", token: noExpiry},
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestGenerateWithDuration(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration(alice, time.Hour)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	if _, err := ts.Validate(token); err != nil {
		t.Errorf("Validate() on 1h token error = %v", err)
	}
}
