package auth

import (
	"errors"
	"testing"
	"time"

	"call-screening/internal/config"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:   "secret",
		JWTIssuer:   "issuer",
		JWTAudience: "aud",
		TokenTTL:    8 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "ops-1", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, now.Add(7*time.Hour))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	op := claims.Operator()
	if op.ID != "ops-1" || op.Role != "operator" || op.TokenID == "" {
		t.Fatalf("unexpected operator: %+v", op)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "screening", TokenTTL: time.Hour})
	tok, err := m.Issue(now, "ops-1", "analyst")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "screening"})
	wrongIssuer, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "elsewhere"})

	cases := map[string]func() error{
		"expired": func() error { _, err := m.Verify(tok, now.Add(2*time.Hour)); return err },
		"not yet issued": func() error {
			_, err := m.Verify(tok, now.Add(-time.Hour))
			return err
		},
		"wrong secret": func() error { _, err := other.Verify(tok, now); return err },
		"wrong issuer": func() error { _, err := wrongIssuer.Verify(tok, now); return err },
		"garbage":      func() error { _, err := m.Verify("not-a-token", now); return err },
	}
	for name, verify := range cases {
		if err := verify(); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestIssueRequiresOperatorAndRole(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})
	if _, err := m.Issue(time.Now(), "", "operator"); err == nil {
		t.Fatalf("expected error without operator id")
	}
	if _, err := m.Issue(time.Now(), "ops-1", ""); err == nil {
		t.Fatalf("expected error without role")
	}
}

func TestActorFallsBackWithoutOperator(t *testing.T) {
	ctx := t.Context()
	if got := Actor(ctx, "system"); got != "system" {
		t.Fatalf("expected fallback actor, got %q", got)
	}
	ctx = WithOperator(ctx, Operator{ID: "ops-1", Role: "operator"})
	if got := Actor(ctx, "system"); got != "ops-1" {
		t.Fatalf("expected operator actor, got %q", got)
	}
}
