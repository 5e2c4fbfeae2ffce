package mobiauth

import (
	"context"
	"errors"
	"time"

	"github.com/mobiauth/mobiauth/internal"
	"github.com/mobiauth/mobiauth/jwt"
	"github.com/mobiauth/mobiauth/session"
)

// Engine is the phone-first MFA login core. It is configured once through
// the [Builder] and is safe for concurrent use afterwards.
type Engine struct {
	config      Config
	credentials CredentialStore
	otp         *otpEngine
	sessions    *session.Store
	blacklist   Blacklist
	jwtManager  *jwt.Manager
	enforcer    *sessionEnforcer
	audit       *auditDispatcher
	metrics     *Metrics
}

// Close stops the background workers and drains their queues. Calling
// Close more than once is safe; the Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.enforcer != nil {
		e.enforcer.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Validate authenticates a bearer access token. The token must carry a
// valid signature and unexpired claims, must not be blacklisted, and its
// session row must exist and not be revoked.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if tokenStr == "" {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}

	claims, err := e.jwtManager.Parse(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}

	blocked, err := e.blacklist.Contains(ctx, tokenStr)
	if err != nil {
		return nil, ErrSessionUnavailable
	}
	if blocked {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessions.Get(ctx, internal.HashToken(tokenStr))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricTokenRejected)
			return nil, ErrSessionNotFound
		}
		return nil, ErrSessionUnavailable
	}
	if !sess.ActiveAt(time.Now().Unix()) {
		e.metricInc(MetricTokenRejected)
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		AccountID: claims.Subject,
		Session:   sess,
	}, nil
}
