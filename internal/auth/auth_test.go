package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestService(devFallback bool) *Service {
	return NewService(Config{
		JWTSecret:              "test-secret",
		TokenExpiry:            time.Hour,
		AllowInsecureDevTokens: devFallback,
	})
}

func TestVerify_RoundTrip(t *testing.T) {
	svc := newTestService(false)

	token, err := svc.Issue(Identity{UserID: "u1", Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	identity, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UserID != "u1" || identity.Name != "Alice" || identity.Email != "alice@example.com" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewService(Config{JWTSecret: "other-secret", TokenExpiry: time.Hour})
	token, err := issuer.Issue(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := newTestService(false).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_EmptyToken(t *testing.T) {
	if _, err := newTestService(false).Verify(""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestVerify_DevFallbackDisabled(t *testing.T) {
	if _, err := newTestService(false).Verify("1234567890"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("numeric token must be rejected when fallback is off, got %v", err)
	}
}

func TestVerify_DevFallbackEnabled(t *testing.T) {
	svc := newTestService(true)

	identity, err := svc.Verify("1234567890")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UserID != "1234567890" {
		t.Errorf("UserID = %q", identity.UserID)
	}

	// Too short or non-numeric strings stay rejected even with the
	// fallback enabled.
	for _, token := range []string{"12345", "abc123def", "user-1"} {
		if _, err := svc.Verify(token); err == nil {
			t.Errorf("Verify(%q) should fail", token)
		}
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	issuer := NewService(Config{JWTSecret: "test-secret", TokenExpiry: -time.Minute})
	token, err := issuer.Issue(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Negative expiry disables the exp claim, so the token stays valid.
	if _, err := issuer.Verify(token); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	expired := NewService(Config{JWTSecret: "test-secret", TokenExpiry: time.Nanosecond})
	token, err = expired.Issue(Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := expired.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken for expired token", err)
	}
}
