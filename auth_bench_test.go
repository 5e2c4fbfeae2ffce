package mobiauth

import (
	"context"
	"testing"
)

func newBenchmarkEngine(b *testing.B) (*Engine, *stubCredentialStore, func()) {
	b.Helper()

	mr, rdb := newTestRedis(b)

	creds := newStubCredentialStore()
	creds.add("+15551230001", "acct-1", "+15551230001")

	cfg := DefaultConfig()
	cfg.OTP.TestAddresses = []string{"+15551230001"}
	cfg.Audit.Enabled = false

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithDispatcher(NoOpDispatcher{}).
		WithKeyProvider(testKeyProvider(b)).
		Build()
	if err != nil {
		mr.Close()
		b.Fatalf("Build failed: %v", err)
	}

	return engine, creds, func() {
		engine.Close()
		mr.Close()
	}
}

func benchLogin(b *testing.B, engine *Engine) string {
	b.Helper()

	begin, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		b.Fatalf("password phase failed: %v", err)
	}
	complete, err := engine.Login(context.Background(), ChallengePhase{
		ChallengeToken: begin.ChallengeToken,
		Code:           "000000",
	})
	if err != nil {
		b.Fatalf("challenge phase failed: %v", err)
	}
	return complete.AccessToken
}

func BenchmarkValidate(b *testing.B) {
	engine, _, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	access := benchLogin(b, engine)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Validate(context.Background(), access); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkLoginBothPhases(b *testing.B) {
	engine, _, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		access := benchLogin(b, engine)
		if _, err := engine.Logout(context.Background(), access); err != nil {
			b.Fatalf("logout failed: %v", err)
		}
	}
}
