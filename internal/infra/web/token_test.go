package web

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestCallbackTokenRoundTrip(t *testing.T) {
	m := NewCallbackTokenManager("test-secret", time.Hour)

	tok, err := m.Mint("01hx3a")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	got, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != "01hx3a" {
		t.Errorf("subject = %q, want 01hx3a", got)
	}
}

func TestCallbackTokenWrongSecret(t *testing.T) {
	m := NewCallbackTokenManager("secret-a", time.Hour)
	other := NewCallbackTokenManager("secret-b", time.Hour)

	tok, _ := m.Mint("s1")
	if _, err := other.Verify(tok); err == nil {
		t.Fatal("token signed with another key verified")
	}
}

func TestCallbackTokenExpired(t *testing.T) {
	m := NewCallbackTokenManager("secret", -time.Minute)
	tok, _ := m.Mint("s1")
	if _, err := m.Verify(tok); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestBuildCallbackURL(t *testing.T) {
	m := NewCallbackTokenManager("secret", time.Hour)

	raw := BuildCallbackURL("https://tryon.example.com/", "/webhook/try-on", "s1", m)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if !strings.HasPrefix(raw, "https://tryon.example.com/webhook/try-on?") {
		t.Errorf("unexpected prefix: %q", raw)
	}
	if u.Query().Get("session_id") != "s1" {
		t.Errorf("session_id missing from %q", raw)
	}
	tok := u.Query().Get("token")
	if tok == "" {
		t.Fatalf("token missing from %q", raw)
	}
	if got, err := m.Verify(tok); err != nil || got != "s1" {
		t.Errorf("embedded token = (%q, %v)", got, err)
	}
}
