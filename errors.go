package mobiauth

import "errors"

var (
	// ErrCredentialNotFound is returned when no credential record matches
	// the normalized login identifier.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrChallengeNotFound is returned when an OTP challenge token is
	// unknown or its expiry has passed. The two cases are deliberately
	// indistinguishable to the caller.
	ErrChallengeNotFound = errors.New("otp challenge not found or expired")
	// ErrCodeMismatch is returned when the supplied OTP code does not match
	// the stored code.
	ErrCodeMismatch = errors.New("otp code mismatch")
	// ErrCredentialConflict is returned when the credential resolved before
	// the OTP challenge can no longer be resolved after verification.
	ErrCredentialConflict = errors.New("credential changed during otp window")
	// ErrUnsupportedChannel is returned when a message is addressed to an
	// unknown delivery channel.
	ErrUnsupportedChannel = errors.New("unsupported messaging channel")
	// ErrSessionNotFound is returned when no session exists for a token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenInvalid is returned when an access token fails signature,
	// expiry, blacklist, or revocation checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrCredentialUnavailable is returned when the credential backend
	// cannot be reached.
	ErrCredentialUnavailable = errors.New("credential backend unavailable")
	// ErrChallengeUnavailable is returned when the OTP challenge backend
	// cannot be reached.
	ErrChallengeUnavailable = errors.New("otp challenge backend unavailable")
	// ErrSessionUnavailable is returned when the session backend cannot be
	// reached.
	ErrSessionUnavailable = errors.New("session backend unavailable")
	// ErrInvalidLoginRequest is returned when a login request carries an
	// unknown phase.
	ErrInvalidLoginRequest = errors.New("invalid login request")
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
