package mobiauth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mobiauth/mobiauth/internal"
	"github.com/mobiauth/mobiauth/session"
)

// Login drives the two-phase MFA handshake. A [PasswordPhase] request
// resolves the identifier, issues an OTP challenge, and dispatches the
// code; the returned result carries MFARequired and the challenge token.
// A [ChallengePhase] request consumes the challenge, re-resolves the
// credential, mints an access token, persists the session, and schedules
// revocation of the account's other sessions.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	switch r := req.(type) {
	case PasswordPhase:
		return e.beginLogin(ctx, r)
	case ChallengePhase:
		return e.completeLogin(ctx, r)
	default:
		return nil, ErrInvalidLoginRequest
	}
}

func (e *Engine) beginLogin(ctx context.Context, req PasswordPhase) (*LoginResult, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrCredentialNotFound, nil)
		return nil, ErrCredentialNotFound
	}

	credential, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrCredentialUnavailable, nil)
		return nil, ErrCredentialUnavailable
	}
	if credential == nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrCredentialNotFound, nil)
		return nil, ErrCredentialNotFound
	}

	challenge, err := e.otp.Create(ctx, credential.Address, e.config.OTP.Channel)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventChallengeFailure, false, credential.AccountID, credential.Address, err, nil)
		return nil, err
	}

	deliveryID, err := e.otp.Dispatch(ctx, challenge)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventChallengeFailure, false, credential.AccountID, credential.Address, err, nil)
		return nil, ErrChallengeUnavailable
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, credential.AccountID, credential.Address, nil, func() map[string]string {
		m := map[string]string{"channel": string(challenge.Channel)}
		if deliveryID != "" {
			m["delivery_id"] = deliveryID
		}
		return m
	})

	return &LoginResult{
		MFARequired:    true,
		ChallengeToken: challenge.Token,
	}, nil
}

func (e *Engine) completeLogin(ctx context.Context, req ChallengePhase) (*LoginResult, error) {
	challenge, err := e.otp.Verify(ctx, req.ChallengeToken, req.Code)
	if err != nil {
		e.metricInc(MetricOTPVerifyFailure)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", "", err, nil)
		return nil, err
	}
	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, "", challenge.Address, nil, nil)

	// The credential is resolved again after OTP proof. A record that
	// disappeared or moved during the challenge window must not mint a
	// token for a stale account id.
	credential, err := e.credentials.FindByIdentifier(ctx, challenge.Address)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", challenge.Address, ErrCredentialUnavailable, nil)
		return nil, ErrCredentialUnavailable
	}
	if credential == nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", challenge.Address, ErrCredentialConflict, nil)
		return nil, ErrCredentialConflict
	}

	token, expiresAt, err := e.jwtManager.Mint(credential.AccountID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, credential.AccountID, challenge.Address, err, nil)
		return nil, err
	}

	now := time.Now()
	sess := &session.Session{
		TokenHash: internal.HashToken(token),
		AccountID: credential.AccountID,
		Token:     token,
		CreatedAt: now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, credential.AccountID, challenge.Address, ErrSessionUnavailable, nil)
		return nil, ErrSessionUnavailable
	}
	e.metricInc(MetricSessionCreated)

	e.enforcer.Schedule(enforcementTask{
		accountID: credential.AccountID,
		keep:      sess.TokenHash,
	})

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, credential.AccountID, challenge.Address, nil, nil)

	return &LoginResult{AccessToken: token}, nil
}

// Logout revokes the session behind the access token and blacklists the
// token for the remainder of its embedded lifetime. Unknown tokens are a
// no-op, not an error; repeating a logout succeeds without counting a
// second revocation. The revoked session is returned when one existed.
func (e *Engine) Logout(ctx context.Context, tokenStr string) (*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if tokenStr == "" {
		return nil, nil
	}

	sess, changed, err := e.sessions.Revoke(ctx, internal.HashToken(tokenStr), time.Now().Unix())
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, ErrSessionUnavailable
	}
	if !changed {
		// A prior logout can revoke the row and then fail the blacklist
		// write. The add is idempotent, so repeat it here and a retried
		// call finishes the job instead of reporting a false success.
		if err := e.blacklistToken(ctx, tokenStr, sess); err != nil {
			e.emitAudit(ctx, auditEventLogoutSession, false, sess.AccountID, "", ErrSessionUnavailable, nil)
			return sess, ErrSessionUnavailable
		}
		return sess, nil
	}

	if err := e.blacklistToken(ctx, tokenStr, sess); err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, sess.AccountID, "", ErrSessionUnavailable, nil)
		return sess, ErrSessionUnavailable
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, sess.AccountID, "", nil, nil)

	return sess, nil
}

// LogoutAll revokes every active session of the account and blacklists
// their tokens. It returns the number of sessions revoked by this call.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	active, err := e.sessions.ActiveForAccount(ctx, accountID)
	if err != nil {
		return 0, ErrSessionUnavailable
	}

	now := time.Now().Unix()
	revoked := 0
	for _, sess := range active {
		_, changed, err := e.sessions.Revoke(ctx, sess.TokenHash, now)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				continue
			}
			return revoked, ErrSessionUnavailable
		}
		// Blacklist even when the row was already revoked, so a retry
		// after a failed blacklist write still denylists the token.
		if err := e.blacklistToken(ctx, sess.Token, sess); err != nil {
			return revoked, ErrSessionUnavailable
		}
		if !changed {
			continue
		}
		e.metricInc(MetricSessionRevoked)
		revoked++
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})

	return revoked, nil
}

// blacklistToken adds the token to the denylist for its remaining life.
// The lifetime comes from the token's own exp claim; the session row is
// the fallback when the claim cannot be read. Already-expired tokens skip
// the blacklist entirely.
func (e *Engine) blacklistToken(ctx context.Context, tokenStr string, sess *session.Session) error {
	expiry, err := e.jwtManager.Expiry(tokenStr)
	if err != nil {
		expiry = time.Unix(sess.ExpiresAt, 0)
	}

	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}
	return e.blacklist.Add(ctx, tokenStr, ttl)
}
