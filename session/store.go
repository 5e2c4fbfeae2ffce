package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session exists under the given token hash.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const revokeMaxRetries = 4

// Store is a Redis-backed session store. Sessions are keyed by the one-way
// digest of their access token; a per-account set index supports
// enumeration for single-session enforcement and logout-all.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewStore creates a session [Store]. prefix sets the Redis key namespace.
// retention extends each row's Redis TTL past the token expiry so revoked
// and expired sessions remain readable for audit.
func NewStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "ms"
	}
	return &Store{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *Store) key(tokenHash [32]byte) string {
	return s.prefix + ":" + hex.EncodeToString(tokenHash[:])
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + "u:" + accountID
}

// Save persists a session and indexes it under its account.
//
//	Performance: 1 MULTI/EXEC (SET + SADD + EXPIRE).
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(sess.ExpiresAt, 0)) + s.retention
	if ttl <= 0 {
		return errors.New("session already past retention window")
	}

	sessionKey := s.key(sess.TokenHash)
	accountKey := s.accountKey(sess.AccountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, accountKey, hex.EncodeToString(sess.TokenHash[:]))
		pipe.Expire(ctx, accountKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches a session by token hash. Revoked and expired sessions are
// returned as-is; interpreting their state is the caller's concern.
func (s *Store) Get(ctx context.Context, tokenHash [32]byte) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.TokenHash = tokenHash

	return sess, nil
}

// Revoke sets the session's revocation timestamp. The row is updated in
// place under WATCH so concurrent revocations cannot lose the write; the
// row's TTL is preserved. Returns the session and whether this call was the
// one that revoked it (false when it was already revoked).
func (s *Store) Revoke(ctx context.Context, tokenHash [32]byte, atUnix int64) (*Session, bool, error) {
	key := s.key(tokenHash)

	for i := 0; i < revokeMaxRetries; i++ {
		var (
			revoked *Session
			changed bool
		)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return err
			}
			sess.TokenHash = tokenHash

			if sess.Revoked() {
				revoked = sess
				return nil
			}

			sess.RevokedAt = atUnix
			updated, err := Encode(sess)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			revoked = sess
			changed = true
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, false, ErrNotFound
			}
			return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return revoked, changed, nil
	}

	return nil, false, ErrNotFound
}

// ActiveForAccount returns every non-revoked, unexpired session indexed
// under the account. Index entries whose session row has aged out are
// pruned as a side effect.
func (s *Store) ActiveForAccount(ctx context.Context, accountID string) ([]*Session, error) {
	accountKey := s.accountKey(accountID)

	hashes, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(hashes) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.Get(ctx, s.prefix+":"+h)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowUnix := time.Now().Unix()
	sessions := make([]*Session, 0, len(hashes))
	var stale []interface{}

	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, hashes[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}

		raw, hexErr := hex.DecodeString(hashes[i])
		if hexErr != nil || len(raw) != len(sess.TokenHash) {
			stale = append(stale, hashes[i])
			continue
		}
		copy(sess.TokenHash[:], raw)

		if !sess.ActiveAt(nowUnix) {
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, accountKey, stale...).Err()
	}

	return sessions, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
