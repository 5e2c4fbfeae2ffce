package mobiauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mobiauth/mobiauth/internal"
)

// Challenge is a pending OTP verification: an opaque token, the numeric
// code, the address the code was delivered to, and an absolute expiry.
// The code never crosses the engine boundary except inside the outgoing
// message.
type Challenge struct {
	Token     string
	Code      string
	Address   string
	Channel   ChannelType
	ExpiresAt int64
}

// otpEngine generates, dispatches, and verifies one-time passcodes bound
// to opaque challenge tokens.
type otpEngine struct {
	store         *otpChallengeStore
	dispatcher    Dispatcher
	digits        int
	ttl           time.Duration
	testAddresses map[string]struct{}
}

func newOTPEngine(cfg OTPConfig, store *otpChallengeStore, dispatcher Dispatcher) *otpEngine {
	test := make(map[string]struct{}, len(cfg.TestAddresses))
	for _, addr := range cfg.TestAddresses {
		test[normalizeAddress(addr)] = struct{}{}
	}
	return &otpEngine{
		store:         store,
		dispatcher:    dispatcher,
		digits:        cfg.Digits,
		ttl:           cfg.TTL,
		testAddresses: test,
	}
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// isTestAddress applies the single address-matching rule shared by Create,
// Dispatch, and Verify.
func (o *otpEngine) isTestAddress(address string) bool {
	_, ok := o.testAddresses[normalizeAddress(address)]
	return ok
}

// Create generates a challenge for the address and persists it with the
// configured TTL. Leading zeros in the code are significant.
func (o *otpEngine) Create(ctx context.Context, address string, channel ChannelType) (*Challenge, error) {
	if !channel.valid() {
		return nil, ErrUnsupportedChannel
	}

	token, err := internal.NewChallengeToken()
	if err != nil {
		return nil, ErrChallengeUnavailable
	}
	code, err := internal.NewOTP(o.digits)
	if err != nil {
		return nil, ErrChallengeUnavailable
	}

	challenge := &Challenge{
		Token:     token.String(),
		Code:      code,
		Address:   address,
		Channel:   channel,
		ExpiresAt: time.Now().Add(o.ttl).Unix(),
	}

	record := &otpChallengeRecord{
		Address:   challenge.Address,
		Code:      challenge.Code,
		Channel:   challenge.Channel,
		ExpiresAt: challenge.ExpiresAt,
	}
	if err := o.store.Save(ctx, challenge.Token, record, o.ttl); err != nil {
		return nil, ErrChallengeUnavailable
	}

	return challenge, nil
}

// Dispatch sends the code out-of-band. Test addresses are a no-op so
// automated tests never consume a real messaging budget.
func (o *otpEngine) Dispatch(ctx context.Context, challenge *Challenge) (string, error) {
	if o.isTestAddress(challenge.Address) {
		return "", nil
	}

	subject, body := renderOTPMessage(challenge.Code, o.ttl)
	return o.dispatcher.Send(ctx, challenge.Channel, challenge.Address, subject, body)
}

// Verify consumes the challenge. Unknown and expired tokens surface as the
// same [ErrChallengeNotFound]; a wrong code is [ErrCodeMismatch] unless the
// challenge's address is a configured test address, in which case any code
// is accepted. On success the challenge record is returned so the caller
// can resolve the verified address, and the record is gone — a second
// presentation of the same token fails.
func (o *otpEngine) Verify(ctx context.Context, challengeToken, code string) (*Challenge, error) {
	record, err := o.store.Consume(ctx, challengeToken, code, o.isTestAddress)
	if err != nil {
		switch {
		case errors.Is(err, errOTPChallengeNotFound):
			return nil, ErrChallengeNotFound
		case errors.Is(err, errOTPChallengeMismatch):
			return nil, ErrCodeMismatch
		default:
			return nil, ErrChallengeUnavailable
		}
	}

	return &Challenge{
		Token:     challengeToken,
		Code:      record.Code,
		Address:   record.Address,
		Channel:   record.Channel,
		ExpiresAt: record.ExpiresAt,
	}, nil
}
