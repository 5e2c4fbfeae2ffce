package mobiauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const otpMessageSubject = "Your verification code"

func renderOTPMessage(code string, ttl time.Duration) (subject, body string) {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return otpMessageSubject, fmt.Sprintf(
		"Your one-time passcode is %s. It expires in %d minutes. Never share it with anyone.",
		code, minutes,
	)
}

// NoOpDispatcher is a [Dispatcher] that performs no delivery and returns a
// fresh delivery id. Intended for tests and local development.
type NoOpDispatcher struct{}

// Send discards the message and returns a generated delivery id.
func (NoOpDispatcher) Send(ctx context.Context, channel ChannelType, to, subject, body string) (string, error) {
	if !channel.valid() {
		return "", ErrUnsupportedChannel
	}
	return uuid.NewString(), nil
}
