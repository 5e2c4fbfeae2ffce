package mobiauth

import (
	"errors"
	"time"
)

// Config defines the tunable behavior of the login core.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	JWT         JWTConfig
	OTP         OTPConfig
	Session     SessionConfig
	Enforcement EnforcementConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token issuance.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	Issuer        string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls challenge generation, delivery, and verification.
//
// TestAddresses is an explicit allow-list fixed at construction: challenges
// for a listed address are never dispatched and verify with any code. The
// match is case-insensitive and identical for create and verify.
type OTPConfig struct {
	TTL           time.Duration
	Digits        int
	Channel       ChannelType
	RedisPrefix   string
	TestAddresses []string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session persistence.
//
// Retention extends each session row's Redis TTL past the token expiry so
// revoked and expired sessions stay readable for audit.
type SessionConfig struct {
	RedisPrefix string
	Retention   time.Duration
}

/*
====================================
ENFORCEMENT CONFIG
====================================
*/

// EnforcementConfig sizes the single-session enforcement worker pool.
// Enforcement tasks run decoupled from the login response path; QueueSize
// bounds how many may be pending before new tasks are dropped and counted.
type EnforcementConfig struct {
	Workers   int
	QueueSize int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metric counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration New starts from: 24h tokens
// signed with Ed25519, 6-digit SMS codes living 5 minutes, a 24h session
// retention window, and audit and metrics enabled.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "mobiauth",
		},
		OTP: OTPConfig{
			TTL:         5 * time.Minute,
			Digits:      6,
			Channel:     ChannelSMS,
			RedisPrefix: "mc",
		},
		Session: SessionConfig{
			RedisPrefix: "ms",
			Retention:   24 * time.Hour,
		},
		Enforcement: EnforcementConfig{
			Workers:   2,
			QueueSize: 64,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OTP.TestAddresses = append([]string(nil), cfg.OTP.TestAddresses...)
	return out
}

// Validate checks the configuration for values the engine cannot operate
// with. Builder calls it before wiring anything.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	switch c.JWT.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("JWT.SigningMethod must be ed25519 or hs256")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP.TTL must be positive")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP.Digits must be between 6 and 10")
	}
	if !c.OTP.Channel.valid() {
		return errors.New("OTP.Channel is not a supported channel")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session.Retention must not be negative")
	}
	if c.Enforcement.Workers <= 0 {
		return errors.New("Enforcement.Workers must be positive")
	}
	if c.Enforcement.QueueSize <= 0 {
		return errors.New("Enforcement.QueueSize must be positive")
	}
	return nil
}
