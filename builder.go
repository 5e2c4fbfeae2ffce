package mobiauth

import (
	"context"
	"errors"

	"github.com/mobiauth/mobiauth/jwt"
	"github.com/mobiauth/mobiauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it once, call Build once, and
// discard it; a Builder is not safe for concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	dispatcher  Dispatcher
	keys        jwt.KeyProvider
	blacklist   Blacklist
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale. Start from
// [DefaultConfig] when only a few fields need changing.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing challenges, sessions, and the
// default blacklist.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the external credential lookup. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithDispatcher sets the outbound message sender. Required.
func (b *Builder) WithDispatcher(d Dispatcher) *Builder {
	b.dispatcher = d
	return b
}

// WithKeyProvider sets the signing key source for access tokens. Required.
func (b *Builder) WithKeyProvider(kp jwt.KeyProvider) *Builder {
	b.keys = kp
	return b
}

// WithBlacklist overrides the Redis-backed token denylist with a
// caller-supplied one.
func (b *Builder) WithBlacklist(bl Blacklist) *Builder {
	b.blacklist = bl
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the stores and workers, and
// returns a ready Engine. The caller owns the Engine's lifecycle and must
// call [Engine.Close] when done.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.dispatcher == nil {
		return nil, errors.New("dispatcher required")
	}
	if b.keys == nil {
		return nil, errors.New("key provider required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Issuer:        cfg.JWT.Issuer,
		Keys:          b.keys,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.Retention)

	blacklist := b.blacklist
	if blacklist == nil {
		blacklist = NewRedisBlacklist(b.redis, "")
	}

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		sessions:    sessions,
		blacklist:   blacklist,
		jwtManager:  jm,
	}

	engine.otp = newOTPEngine(cfg.OTP, newOTPChallengeStore(b.redis, cfg.OTP.RedisPrefix), b.dispatcher)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.enforcer = newSessionEnforcer(cfg.Enforcement, sessions, blacklist, engine.metrics, func(accountID string) {
		engine.emitAudit(context.Background(), auditEventSessionRevoked, true, accountID, "", nil, nil)
	}, func(accountID string, err error) {
		engine.emitAudit(context.Background(), auditEventEnforcementFailure, false, accountID, "", err, nil)
	})

	b.built = true

	return engine, nil
}
