package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func testProvider(t *testing.T) StaticKeyProvider {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}
	return StaticKeyProvider{
		KeyID:      "k1",
		PrivateKey: priv,
		PublicKey:  pub,
	}
}

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodEd25519,
		Issuer:        "mobiauth-test",
		Keys:          testProvider(t),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestMintAndParse(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, expiresAt, err := m.Mint("acct-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if remaining := time.Until(expiresAt); remaining <= 59*time.Minute || remaining > time.Hour {
		t.Fatalf("expected ~1h expiry, got %v", remaining)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("expected subject acct-1, got %q", claims.Subject)
	}
	if claims.Issuer != "mobiauth-test" {
		t.Fatalf("expected issuer mobiauth-test, got %q", claims.Issuer)
	}
	if !claims.ExpiresAt.Time.Equal(expiresAt.Truncate(time.Second)) {
		t.Fatalf("expected claim expiry %v, got %v", expiresAt, claims.ExpiresAt.Time)
	}
}

func TestParseRejectsExpiredButExpiryStillReads(t *testing.T) {
	m := newTestManager(t, time.Nanosecond)

	token, expiresAt, err := m.Mint("acct-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected Parse to reject an expired token")
	}

	got, err := m.Expiry(token)
	if err != nil {
		t.Fatalf("Expiry failed on expired token: %v", err)
	}
	if !got.Equal(expiresAt.Truncate(time.Second)) {
		t.Fatalf("expected embedded expiry %v, got %v", expiresAt, got)
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	issuing := newTestManager(t, time.Hour)
	verifying := newTestManager(t, time.Hour)

	token, _, err := issuing.Mint("acct-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := verifying.Parse(token); err == nil {
		t.Fatal("expected Parse to reject a token signed with a different key")
	}
}

func TestParseRejectsUnknownKid(t *testing.T) {
	provider := testProvider(t)

	issuing, err := NewManager(Config{
		AccessTTL:     time.Hour,
		SigningMethod: MethodEd25519,
		Keys:          provider,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	provider.KeyID = "k2"
	verifying, err := NewManager(Config{
		AccessTTL:     time.Hour,
		SigningMethod: MethodEd25519,
		Keys:          provider,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := issuing.Mint("acct-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := verifying.Parse(token); err == nil {
		t.Fatal("expected Parse to reject a token with an unknown kid")
	}
}

func TestHS256Roundtrip(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		SigningMethod: MethodHS256,
		Keys: StaticKeyProvider{
			KeyID:      "hmac-1",
			PrivateKey: []byte("0123456789abcdef0123456789abcdef"),
		},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := m.Mint("acct-1")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("expected subject acct-1, got %q", claims.Subject)
	}
}

func TestNewManagerValidation(t *testing.T) {
	provider := testProvider(t)

	if _, err := NewManager(Config{SigningMethod: MethodEd25519, Keys: provider}); err == nil {
		t.Fatal("expected error for missing TTL")
	}
	if _, err := NewManager(Config{AccessTTL: time.Hour, SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected error for missing key provider")
	}
	if _, err := NewManager(Config{AccessTTL: time.Hour, SigningMethod: "rs512", Keys: provider}); err == nil {
		t.Fatal("expected error for unsupported signing method")
	}

	provider.KeyID = ""
	if _, err := NewManager(Config{AccessTTL: time.Hour, SigningMethod: MethodEd25519, Keys: provider}); err == nil {
		t.Fatal("expected error for empty kid")
	}
}
