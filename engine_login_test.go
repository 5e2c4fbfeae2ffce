package mobiauth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mobiauth/mobiauth/jwt"
)

func newTestRedis(tb testing.TB) (*miniredis.Miniredis, *redis.Client) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testKeyProvider(tb testing.TB) jwt.StaticKeyProvider {
	tb.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("ed25519.GenerateKey failed: %v", err)
	}
	return jwt.StaticKeyProvider{
		KeyID:      "test-key-1",
		PrivateKey: priv,
		PublicKey:  pub,
	}
}

// stubCredentialStore backs tests with an in-memory identifier table.
// Records can be removed mid-flow to exercise the re-resolution paths.
type stubCredentialStore struct {
	mu      sync.Mutex
	records map[string]*AccountCredential
	fail    bool
}

func newStubCredentialStore() *stubCredentialStore {
	return &stubCredentialStore{records: map[string]*AccountCredential{}}
}

func (s *stubCredentialStore) add(identifier, accountID, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identifier] = &AccountCredential{AccountID: accountID, Address: address}
}

func (s *stubCredentialStore) remove(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
}

func (s *stubCredentialStore) FindByIdentifier(_ context.Context, identifier string) (*AccountCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("credential backend down")
	}
	cred, ok := s.records[identifier]
	if !ok {
		return nil, nil
	}
	out := *cred
	return &out, nil
}

type sentMessage struct {
	Channel ChannelType
	To      string
	Subject string
	Body    string
}

// captureDispatcher records outgoing messages instead of delivering them.
type captureDispatcher struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (d *captureDispatcher) Send(_ context.Context, channel ChannelType, to, subject, body string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return "", errors.New("provider rejected message")
	}
	d.sent = append(d.sent, sentMessage{Channel: channel, To: to, Subject: subject, Body: body})
	return "msg-1", nil
}

func (d *captureDispatcher) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage(nil), d.sent...)
}

// lastCode extracts the OTP code from the most recent captured message:
// the first run of digits in the rendered body.
func (d *captureDispatcher) lastCode(t *testing.T) string {
	t.Helper()

	msgs := d.messages()
	if len(msgs) == 0 {
		t.Fatal("no messages captured")
	}
	body := msgs[len(msgs)-1].Body

	start := -1
	for i := 0; i < len(body); i++ {
		digit := body[i] >= '0' && body[i] <= '9'
		if digit && start < 0 {
			start = i
		}
		if !digit && start >= 0 {
			return body[start:i]
		}
	}
	if start >= 0 {
		return body[start:]
	}
	t.Fatal("no code found in message body")
	return ""
}

func newLoginTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *stubCredentialStore, *captureDispatcher, *redis.Client, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	creds := newStubCredentialStore()
	disp := &captureDispatcher{}

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(creds).
		WithDispatcher(disp).
		WithKeyProvider(testKeyProvider(t)).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, creds, disp, rdb, func() {
		engine.Close()
		mr.Close()
	}
}

func TestLoginPasswordPhaseIssuesChallenge(t *testing.T) {
	engine, creds, disp, rdb, done := newLoginTestEngine(t, nil)
	defer done()

	creds.add("+15551230001", "acct-1", "+15551230001")

	result, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MFARequired || result.ChallengeToken == "" {
		t.Fatalf("expected suspended login with challenge token, got %+v", result)
	}
	if result.AccessToken != "" {
		t.Fatal("expected no access token before OTP proof")
	}

	msgs := disp.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 dispatched message, got %d", len(msgs))
	}
	if msgs[0].Channel != ChannelSMS || msgs[0].To != "+15551230001" {
		t.Fatalf("unexpected message routing: %+v", msgs[0])
	}
	if code := disp.lastCode(t); len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	if exists := rdb.Exists(context.Background(), "mc:"+result.ChallengeToken).Val(); exists != 1 {
		t.Fatal("expected challenge key to exist")
	}
}

func TestLoginUnknownIdentifier(t *testing.T) {
	engine, _, disp, _, done := newLoginTestEngine(t, nil)
	defer done()

	_, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15559999999"})
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
	if len(disp.messages()) != 0 {
		t.Fatal("no message should be dispatched for unknown identifiers")
	}
}

func TestLoginCredentialBackendDown(t *testing.T) {
	engine, creds, _, _, done := newLoginTestEngine(t, nil)
	defer done()

	creds.fail = true

	_, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestLoginFullFlow(t *testing.T) {
	engine, creds, disp, rdb, done := newLoginTestEngine(t, nil)
	defer done()

	creds.add("+15551230001", "acct-1", "+15551230001")

	begin, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		t.Fatalf("password phase failed: %v", err)
	}

	complete, err := engine.Login(context.Background(), ChallengePhase{
		ChallengeToken: begin.ChallengeToken,
		Code:           disp.lastCode(t),
	})
	if err != nil {
		t.Fatalf("challenge phase failed: %v", err)
	}
	if complete.MFARequired || complete.AccessToken == "" {
		t.Fatalf("expected access token, got %+v", complete)
	}

	if exists := rdb.Exists(context.Background(), "mc:"+begin.ChallengeToken).Val(); exists != 0 {
		t.Fatal("expected challenge key to be deleted after success")
	}

	auth, err := engine.Validate(context.Background(), complete.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if auth.AccountID != "acct-1" {
		t.Fatalf("expected account acct-1, got %q", auth.AccountID)
	}
	if auth.Session == nil || auth.Session.AccountID != "acct-1" {
		t.Fatalf("expected session bound to acct-1, got %+v", auth.Session)
	}

	remaining := time.Until(time.Unix(auth.Session.ExpiresAt, 0))
	if remaining <= 23*time.Hour || remaining > 24*time.Hour {
		t.Fatalf("expected ~24h session lifetime, got %v", remaining)
	}
}

func TestLoginWrongCodeLeavesChallengeUsable(t *testing.T) {
	engine, creds, disp, _, done := newLoginTestEngine(t, nil)
	defer done()

	creds.add("+15551230001", "acct-1", "+15551230001")

	begin, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		t.Fatalf("password phase failed: %v", err)
	}

	code := disp.lastCode(t)
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	_, err = engine.Login(context.Background(), ChallengePhase{ChallengeToken: begin.ChallengeToken, Code: wrong})
	if !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	complete, err := engine.Login(context.Background(), ChallengePhase{ChallengeToken: begin.ChallengeToken, Code: code})
	if err != nil {
		t.Fatalf("expected retry with correct code to succeed, got %v", err)
	}
	if complete.AccessToken == "" {
		t.Fatal("expected access token after correct retry")
	}
}

func TestLoginChallengeSingleUse(t *testing.T) {
	engine, creds, disp, _, done := newLoginTestEngine(t, nil)
	defer done()

	creds.add("+15551230001", "acct-1", "+15551230001")

	begin, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		t.Fatalf("password phase failed: %v", err)
	}
	code := disp.lastCode(t)

	if _, err := engine.Login(context.Background(), ChallengePhase{ChallengeToken: begin.ChallengeToken, Code: code}); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}

	_, err = engine.Login(context.Background(), ChallengePhase{ChallengeToken: begin.ChallengeToken, Code: code})
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound on replay, got %v", err)
	}
}

func TestLoginChallengeExpired(t *testing.T) {
	engine, creds, disp, _, done := newLoginTestEngine(t, func(cfg *Config) {
		cfg.OTP.TTL = 1 * time.Second
	})
	defer done()

	creds.add("+15551230001", "acct-1", "+15551230001")

	begin, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		t.Fatalf("password phase failed: %v", err)
	}
	code := disp.lastCode(t)

	time.Sleep(2 * time.Second)

	_, err = engine.Login(context.Background(), ChallengePhase{ChallengeToken: begin.ChallengeToken, Code: code})
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after expiry, got %v", err)
	}
}

func TestLoginUnknownChallengeToken(t *testing.T) {
	engine, _, _, _, done := newLoginTestEngine(t, nil)
	defer done()

	_, err := engine.Login(context.Background(), ChallengePhase{ChallengeToken: "no-such-challenge", Code: "123456"})
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestLoginTestAddressBypass(t *testing.T) {
	engine, creds, disp, _, done := newLoginTestEngine(t, func(cfg *Config) {
		cfg.OTP.TestAddresses = []string{"+15550100999"}
	})
	defer done()

	creds.add("+15550100999", "acct-qa", "+15550100999")

	begin, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15550100999"})
	if err != nil {
		t.Fatalf("password phase failed: %v", err)
	}
	if len(disp.messages()) != 0 {
		t.Fatal("test addresses must not reach the dispatcher")
	}

	complete, err := engine.Login(context.Background(), ChallengePhase{ChallengeToken: begin.ChallengeToken, Code: "000000"})
	if err != nil {
		t.Fatalf("expected any code to be accepted for a test address, got %v", err)
	}
	if complete.AccessToken == "" {
		t.Fatal("expected access token for bypassed challenge")
	}
}

func TestLoginCredentialRemovedDuringChallenge(t *testing.T) {
	engine, creds, disp, _, done := newLoginTestEngine(t, nil)
	defer done()

	creds.add("+15551230001", "acct-1", "+15551230001")

	begin, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if err != nil {
		t.Fatalf("password phase failed: %v", err)
	}
	code := disp.lastCode(t)

	creds.remove("+15551230001")

	_, err = engine.Login(context.Background(), ChallengePhase{ChallengeToken: begin.ChallengeToken, Code: code})
	if !errors.Is(err, ErrCredentialConflict) {
		t.Fatalf("expected ErrCredentialConflict, got %v", err)
	}
}

func TestLoginRejectsUnknownPhase(t *testing.T) {
	engine, _, _, _, done := newLoginTestEngine(t, nil)
	defer done()

	_, err := engine.Login(context.Background(), nil)
	if !errors.Is(err, ErrInvalidLoginRequest) {
		t.Fatalf("expected ErrInvalidLoginRequest, got %v", err)
	}
}

func TestLoginDispatcherFailure(t *testing.T) {
	engine, creds, disp, _, done := newLoginTestEngine(t, nil)
	defer done()

	creds.add("+15551230001", "acct-1", "+15551230001")
	disp.fail = true

	_, err := engine.Login(context.Background(), PasswordPhase{Identifier: "+15551230001"})
	if !errors.Is(err, ErrChallengeUnavailable) {
		t.Fatalf("expected ErrChallengeUnavailable, got %v", err)
	}
}
