package token

import (
	"strings"
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager("test-secret", "otp-pepper", "pii-pepper", time.Hour, 30*24*time.Hour)
}

func TestMintAndParseAccess(t *testing.T) {
	m := newTestManager()
	now := time.Now()

	tok, err := m.MintAccess("user-1", "sess-1", now)
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}

	c, err := m.ParseAccess(tok)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if c.UserID != "user-1" || c.SessionID != "sess-1" || c.Type != TypeAccess {
		t.Errorf("claims = %+v", c)
	}
	if c.ExpiresAt.Before(now.Add(59 * time.Minute)) {
		t.Errorf("unexpected expiry %v", c.ExpiresAt)
	}
}

func TestParseAccessRejectsRefreshToken(t *testing.T) {
	m := newTestManager()
	refresh, err := m.MintRefresh("user-1", "sess-1", time.Now())
	if err != nil {
		t.Fatalf("MintRefresh: %v", err)
	}
	if _, err := m.ParseAccess(refresh); err != ErrWrongType {
		t.Errorf("ParseAccess(refresh) error = %v, want ErrWrongType", err)
	}
}

func TestParseRefreshRequiresSessionID(t *testing.T) {
	m := newTestManager()
	// Access tokens may omit sid in theory, refresh may not. Mint one
	// refresh-typed token without a session to prove the guard.
	tok, err := m.mint("user-1", "", TypeRefresh, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.ParseRefresh(tok); err != ErrWrongType {
		t.Errorf("ParseRefresh(no sid) error = %v, want ErrWrongType", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := newTestManager()
	tok, err := m.mint("user-1", "s", TypeAccess, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Parse(tok); err != ErrInvalidToken {
		t.Errorf("Parse(expired) error = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	other := NewManager("other-secret", "p", "p", time.Hour, time.Hour)
	tok, err := other.MintAccess("user-1", "s", time.Now())
	if err != nil {
		t.Fatalf("MintAccess: %v", err)
	}
	if _, err := newTestManager().Parse(tok); err != ErrInvalidToken {
		t.Errorf("Parse(foreign) error = %v, want ErrInvalidToken", err)
	}
}

func TestHashesAreDeterministicAndScoped(t *testing.T) {
	m := newTestManager()

	if m.HashOTP("123456") != m.HashOTP("123456") {
		t.Error("HashOTP not deterministic")
	}
	if m.HashOTP("123456") == m.HashOTP("123457") {
		t.Error("HashOTP collides on different codes")
	}
	if !m.VerifyOTP("123456", m.HashOTP("123456")) {
		t.Error("VerifyOTP rejects the matching code")
	}
	if m.VerifyOTP("000000", m.HashOTP("123456")) {
		t.Error("VerifyOTP accepts a wrong code")
	}

	if m.HashContact("a@b.co", "login") == m.HashContact("a@b.co", "otp_requested") {
		t.Error("HashContact ignores purpose scoping")
	}

	tok, _ := m.MintRefresh("u", "s", time.Now())
	if m.HashRefresh(tok) != m.HashRefresh(tok) {
		t.Error("HashRefresh not deterministic")
	}
	if len(m.HashRefresh(tok)) != 64 {
		t.Error("HashRefresh should be a sha256 hex digest")
	}
}

func TestRandomOTP(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := RandomOTP()
		if err != nil {
			t.Fatalf("RandomOTP: %v", err)
		}
		if len(code) != OTPDigits {
			t.Fatalf("code %q has wrong length", code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("code %q contains non-digits", code)
		}
		seen[code] = true
	}
	if len(seen) < 10 {
		t.Errorf("suspiciously low variety across 50 codes: %d distinct", len(seen))
	}
}
