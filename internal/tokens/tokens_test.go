package tokens

import (
	"testing"
	"time"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	secret := "testsecret123456789012345678901234"
	raw, err := GenerateAccessToken(secret, "sess-1", "admin", "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	sid, err := ParseAccessToken(secret, raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if sid != "sess-1" {
		t.Fatalf("sid = %q, want sess-1", sid)
	}
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	raw, err := GenerateAccessToken("secret-a-3456789012345678901234", "sess-1", "admin", "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := ParseAccessToken("secret-b-3456789012345678901234", raw); err == nil {
		t.Fatalf("expected verification failure with the wrong secret")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	secret := "testsecret123456789012345678901234"
	raw, err := GenerateAccessToken(secret, "sess-1", "admin", "acme", -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := ParseAccessToken(secret, raw); err == nil {
		t.Fatalf("expected expiry failure")
	}
}
