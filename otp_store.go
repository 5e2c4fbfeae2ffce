package mobiauth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpChallengeRecordVersion1 = 1

var (
	errOTPChallengeNotFound = errors.New("otp challenge record not found")
	errOTPChallengeMismatch = errors.New("otp challenge code mismatch")
	errOTPChallengeBackend  = errors.New("otp challenge backend unavailable")
)

type otpChallengeRecord struct {
	Address   string
	Code      string
	Channel   ChannelType
	ExpiresAt int64
}

// otpChallengeStore persists OTP challenges in Redis under their opaque
// challenge token for at most the challenge TTL. Expiry is enforced by
// timestamp comparison on read, not by the Redis TTL alone: a stale row
// that has not been swept yet must still verify as absent.
type otpChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newOTPChallengeStore(redisClient redis.UniversalClient, prefix string) *otpChallengeStore {
	if prefix == "" {
		prefix = "mc"
	}
	return &otpChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *otpChallengeStore) key(challengeToken string) string {
	return s.prefix + ":" + challengeToken
}

func (s *otpChallengeStore) Save(
	ctx context.Context,
	challengeToken string,
	record *otpChallengeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeOTPChallengeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeToken), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errOTPChallengeBackend, err)
	}
	return nil
}

// Consume verifies and atomically deletes a challenge in one step, so a
// verified challenge token can never be replayed. A wrong code leaves the
// record in place; expired and missing records are indistinguishable to the
// caller. bypass decides, from the stored address, whether the code
// comparison is skipped (configured test addresses).
func (s *otpChallengeStore) Consume(
	ctx context.Context,
	challengeToken string,
	code string,
	bypass func(address string) bool,
) (*otpChallengeRecord, error) {
	const maxRetries = 4
	key := s.key(challengeToken)

	for i := 0; i < maxRetries; i++ {
		var matched *otpChallengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPChallengeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errOTPChallengeNotFound
			}

			if !bypass(record.Address) && subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
				return errOTPChallengeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errOTPChallengeNotFound
			case errors.Is(err, errOTPChallengeNotFound), errors.Is(err, errOTPChallengeMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errOTPChallengeBackend, err)
			}
		}
		return matched, nil
	}

	return nil, errOTPChallengeNotFound
}

func encodeOTPChallengeRecord(record *otpChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(otpChallengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.Address, record.Code, string(record.Channel)} {
		if len(field) > 255 {
			return nil, errors.New("otp challenge field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeOTPChallengeRecord(data []byte) (*otpChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpChallengeRecordVersion1 {
		return nil, errors.New("invalid otp challenge record version")
	}

	record := &otpChallengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	fields := make([]string, 3)
	for i := range fields {
		length, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		fields[i] = string(raw)
	}
	record.Address = fields[0]
	record.Code = fields[1]
	record.Channel = ChannelType(fields[2])

	return record, nil
}
