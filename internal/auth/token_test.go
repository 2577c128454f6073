package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  "user-1",
		Name: "Avery",
		JTI:  "jti-1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "user-1" || claims.Name != "Avery" || claims.JTI != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  "user-1",
		Name: "Avery",
		JTI:  "jti-1",
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Issue("user-1", "Avery")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other := NewSigner("other-secret", time.Hour)
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	for _, bad := range []string{"", "nodot", token + ".extra", strings.Replace(token, ".", "x.", 1)} {
		if _, err := signer.Parse(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", bad, err)
		}
	}
}

func TestSignerIssue(t *testing.T) {
	signer := NewSigner("secret", 15*time.Minute)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return fixed }

	token, claims, err := signer.Issue("user-1", "Avery")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !strings.HasPrefix(claims.JTI, "jti_") {
		t.Fatalf("unexpected jti %q", claims.JTI)
	}
	if !claims.ExpiresAt().Equal(fixed.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt())
	}
	parsed, err := signer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed != claims {
		t.Fatalf("parsed %+v, issued %+v", parsed, claims)
	}

	signer.now = func() time.Time { return fixed.Add(time.Hour) }
	if _, err := signer.Parse(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRefreshTokenHashing(t *testing.T) {
	a, b := NewRefreshToken(), NewRefreshToken()
	if a == b {
		t.Fatal("expected distinct refresh tokens")
	}
	if HashToken(a) == a || len(HashToken(a)) != 64 {
		t.Fatalf("unexpected hash %q", HashToken(a))
	}
	if HashToken(a) != HashToken(a) {
		t.Fatal("hash must be deterministic")
	}
}
