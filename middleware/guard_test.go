package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mobiauth/mobiauth"
	"github.com/mobiauth/mobiauth/jwt"
)

type staticCredentials struct{}

func (staticCredentials) FindByIdentifier(_ context.Context, identifier string) (*mobiauth.AccountCredential, error) {
	if identifier != "+15551230001" {
		return nil, nil
	}
	return &mobiauth.AccountCredential{AccountID: "acct-1", Address: identifier}, nil
}

func newGuardTestEngine(t *testing.T) (*mobiauth.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	cfg := mobiauth.DefaultConfig()
	cfg.OTP.TestAddresses = []string{"+15551230001"}

	engine, err := mobiauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(staticCredentials{}).
		WithDispatcher(mobiauth.NoOpDispatcher{}).
		WithKeyProvider(jwt.StaticKeyProvider{KeyID: "k1", PrivateKey: priv, PublicKey: pub}).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

func issueToken(t *testing.T, engine *mobiauth.Engine) string {
	t.Helper()

	begin, err := engine.Login(context.Background(), mobiauth.PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		t.Fatalf("password phase failed: %v", err)
	}
	complete, err := engine.Login(context.Background(), mobiauth.ChallengePhase{
		ChallengeToken: begin.ChallengeToken,
		Code:           "000000",
	})
	if err != nil {
		t.Fatalf("challenge phase failed: %v", err)
	}
	return complete.AccessToken
}

func TestGuardAllowsValidToken(t *testing.T) {
	engine, done := newGuardTestEngine(t)
	defer done()

	token := issueToken(t, engine)

	var seenAccount string
	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok {
			t.Fatal("expected auth result in context")
		}
		seenAccount = res.AccountID
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seenAccount != "acct-1" {
		t.Fatalf("expected acct-1, got %q", seenAccount)
	}
}

func TestGuardRejections(t *testing.T) {
	engine, done := newGuardTestEngine(t)
	defer done()

	token := issueToken(t, engine)
	if _, err := engine.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	handler := Guard(engine)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for rejected requests")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer "},
		{"revoked token", "Bearer " + token},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
