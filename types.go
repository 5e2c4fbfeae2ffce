package mobiauth

import (
	"context"
	"time"

	"github.com/mobiauth/mobiauth/session"
)

// ChannelType identifies the out-of-band delivery channel for an OTP code.
type ChannelType string

const (
	// ChannelSMS delivers codes by text message.
	ChannelSMS ChannelType = "sms"
	// ChannelEmail delivers codes by email.
	ChannelEmail ChannelType = "email"
	// ChannelWhatsApp delivers codes by WhatsApp message.
	ChannelWhatsApp ChannelType = "whatsapp"
	// ChannelPush delivers codes by push notification.
	ChannelPush ChannelType = "push"
)

func (c ChannelType) valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp, ChannelPush:
		return true
	default:
		return false
	}
}

// AccountCredential is the projection of a credential record the login core
// needs: the account it belongs to and the canonical address OTP codes are
// delivered to.
type AccountCredential struct {
	AccountID string
	Address   string
}

// CredentialStore is the caller-supplied lookup into the external
// credential system. A (nil, nil) return means no record matches; the
// engine maps that to [ErrCredentialNotFound] or [ErrCredentialConflict]
// depending on the login phase. The engine never caches results — a
// credential change during the OTP window must be honored.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*AccountCredential, error)
}

// Dispatcher is the caller-supplied multi-channel message sender. Send
// returns a provider delivery id when one exists.
type Dispatcher interface {
	Send(ctx context.Context, channel ChannelType, to, subject, body string) (string, error)
}

// Blacklist is the external token denylist. Once added, a token must be
// treated as invalid by every verifier until the TTL elapses, which makes
// logout effective before the token's natural expiry.
type Blacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// LoginRequest is the tagged union driving [Engine.Login]. Exactly two
// phases exist: [PasswordPhase] starts the MFA handshake, [ChallengePhase]
// completes it. The interface is sealed so the state machine's branches
// stay exhaustive.
type LoginRequest interface {
	loginPhase()
}

// PasswordPhase asks the engine to begin a login: resolve the identifier,
// issue an OTP challenge, and dispatch the code.
type PasswordPhase struct {
	Identifier string
}

// ChallengePhase presents the OTP proof for a previously issued challenge.
type ChallengePhase struct {
	ChallengeToken string
	Code           string
}

func (PasswordPhase) loginPhase()  {}
func (ChallengePhase) loginPhase() {}

// LoginResult is returned by [Engine.Login]. When MFARequired is set the
// login is suspended, not failed: the caller must come back with a
// [ChallengePhase] carrying ChallengeToken. Otherwise AccessToken holds the
// newly issued token.
type LoginResult struct {
	MFARequired    bool
	ChallengeToken string

	AccessToken string
}

// AuthResult is returned by [Engine.Validate] for a token that passed
// signature, blacklist, and revocation checks.
type AuthResult struct {
	AccountID string
	Session   *session.Session
}
