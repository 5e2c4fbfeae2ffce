package mobiauth

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mobiauth/mobiauth/internal"
)

// redisBlacklist is the shipped [Blacklist] implementation. Entries are
// keyed by the token's one-way digest, never the raw token, and expire on
// their own once the TTL elapses.
type redisBlacklist struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisBlacklist creates a Redis-backed [Blacklist] under the given key
// prefix. Builder installs one by default when no blacklist is supplied.
func NewRedisBlacklist(redisClient redis.UniversalClient, prefix string) Blacklist {
	if prefix == "" {
		prefix = "mb"
	}
	return &redisBlacklist{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (b *redisBlacklist) key(token string) string {
	hash := internal.HashToken(token)
	return b.prefix + ":" + hex.EncodeToString(hash[:])
}

func (b *redisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, b.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return nil
}

func (b *redisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.redis.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return n > 0, nil
}
