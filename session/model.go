package session

// Session is the record of one issued access token: its owner, its validity
// window, and its revocation state. Sessions are keyed in storage by the
// one-way digest of the access token; the raw token is retained inside the
// record so logout can hand it to the blacklist.
//
// A Session with RevokedAt != 0 is terminal and must never authenticate
// again. Sessions are never hard-deleted on revocation — revoked rows stay
// readable for audit until their retention TTL ages them out.
type Session struct {
	TokenHash [32]byte
	AccountID string
	Token     string

	CreatedAt int64
	ExpiresAt int64
	RevokedAt int64
}

// Revoked reports whether the session has been terminated.
func (s *Session) Revoked() bool {
	return s.RevokedAt != 0
}

// ActiveAt reports whether the session authenticates at the given Unix time:
// not revoked and not past its expiry.
func (s *Session) ActiveAt(nowUnix int64) bool {
	return !s.Revoked() && nowUnix <= s.ExpiresAt
}
