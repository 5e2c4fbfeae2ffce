// Package session provides Redis-backed session persistence and compact
// binary session encoding for the mobiauth login core.
//
// # Storage model
//
// A session row is keyed by the hex-encoded one-way digest of its access
// token; the raw token never appears in a key. A per-account set index
// supports sibling enumeration for single-session enforcement. Revocation
// mutates the row in place — sessions are never hard-deleted, they age out
// by a retention TTL so revoked rows stay readable for audit.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT interpret JWT tokens, talk to the blacklist, or enforce login
// policy — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import mobiauth or jwt (no upward imports).
//   - Decide whether a session may authenticate a request.
package session
