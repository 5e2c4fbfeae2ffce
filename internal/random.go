package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ChallengeToken is the opaque identifier correlating an OTP code with a
// verification attempt. 128 bits of crypto-random material.
type ChallengeToken [16]byte

func NewChallengeToken() (ChallengeToken, error) {
	var ct ChallengeToken
	_, err := rand.Read(ct[:])
	return ct, err
}

func (c ChallengeToken) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(c[:])
}

func ParseChallengeToken(token string) (ChallengeToken, error) {
	var ct ChallengeToken

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ct, err
	}
	if len(raw) != len(ct) {
		return ct, errors.New("invalid challenge token size")
	}

	copy(ct[:], raw)
	return ct, nil
}

// HashToken is the one-way digest under which sessions and blacklist
// entries are keyed. The raw access token never appears in a storage key.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
