package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error: %v", err)
	}
	if ts.TTL() != DefaultSessionTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultSessionTTL)
	}
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(42, 0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if n := strings.Count(token, "."); n != 2 {
		t.Errorf("Generate() token has %d dots, want 2", n)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(42, 3)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.UserID != 42 {
		t.Errorf("Validate() UserID = %d, want 42", got.UserID)
	}
	if got.Version != 3 {
		t.Errorf("Validate() Version = %d, want 3", got.Version)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration(42, 0, -time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should reject an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate(42, 0)

	tampered := token[:len(token)-3] + "xxx"
	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should reject a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", time.Hour)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	token, _ := ts1.Generate(42, 0)
	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail with a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.Validate(in); err == nil {
			t.Errorf("Validate(%q) should fail", in)
		}
	}
}

// =========================================================================
// API TOKENS
// =========================================================================

func TestGenerateAPIToken(t *testing.T) {
	a, err := GenerateAPIToken()
	if err != nil {
		t.Fatalf("GenerateAPIToken() error = %v", err)
	}
	b, _ := GenerateAPIToken()

	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("two generated tokens are identical")
	}
	if strings.Trim(a, "0123456789abcdef") != "" {
		t.Errorf("token %q is not lowercase hex", a)
	}
}
