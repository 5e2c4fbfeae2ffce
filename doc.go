// Package mobiauth provides a phone-first MFA login core: two-phase login
// over one-time passcodes, JWT access tokens, Redis-backed sessions keyed
// by token digest, and a logout blacklist scoped to each token's remaining
// lifetime.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// mobiauth is the public surface. It exposes [Engine], [Builder], [Config],
// the [LoginRequest] phases, and value types (LoginResult, AuthResult,
// MetricsSnapshot). Challenge storage, session encoding, and audit dispatch
// are implementation details and never exported.
//
// Credential lookup and message delivery stay outside the engine: callers
// plug in a [CredentialStore] and a [Dispatcher]. The engine re-resolves
// credentials at every step and never caches them.
//
// # What this package must NOT do
//
//   - Expose Redis clients, challenge records, or encoding details in its
//     public API.
//   - Store or log OTP codes or raw access tokens outside the challenge
//     and session rows that need them.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// Validate is the hot path: one blacklist probe and one session fetch per
// call. Login is allowed the handful of Redis round-trips its phase needs.
// Sibling-session revocation runs on background workers and never extends
// the login response path.
package mobiauth
