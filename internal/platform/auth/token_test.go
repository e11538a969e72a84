package auth

import (
	"testing"
	"time"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Secret: []byte("test-secret"),
		TTL:    time.Hour,
		Issuer: "medleads-test",
	}
}

func TestIssueAndParseToken(t *testing.T) {
	cfg := testTokenConfig()

	token, err := IssueToken(cfg, "user-123", RoleOrganiser)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("expected subject user-123, got %q", claims.Subject)
	}
	if claims.Role != RoleOrganiser {
		t.Errorf("expected role %q, got %q", RoleOrganiser, claims.Role)
	}
	if claims.Issuer != "medleads-test" {
		t.Errorf("expected issuer medleads-test, got %q", claims.Issuer)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	cfg := testTokenConfig()

	token, err := IssueToken(cfg, "user-123", RoleAgent)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	other := cfg
	other.Secret = []byte("another-secret")
	if _, err := ParseToken(other, token); err == nil {
		t.Error("expected error for token signed with different secret")
	}
}

func TestParseTokenExpired(t *testing.T) {
	cfg := testTokenConfig()
	cfg.TTL = -time.Minute

	token, err := IssueToken(cfg, "user-123", RoleAgent)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := ParseToken(testTokenConfig(), token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParseTokenWrongIssuer(t *testing.T) {
	cfg := testTokenConfig()
	cfg.Issuer = "someone-else"

	token, err := IssueToken(cfg, "user-123", RoleAgent)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if _, err := ParseToken(testTokenConfig(), token); err == nil {
		t.Error("expected error for token with wrong issuer")
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken(testTokenConfig(), "not-a-token"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Error("hash must not equal the plaintext password")
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong-pass") {
		t.Error("expected mismatched password to fail")
	}
}
