package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access-token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs access tokens with EdDSA.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs access tokens with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// KeyProvider supplies the private key material and key id used to sign
// access tokens. Key rotation is the provider's concern: the manager asks
// for the current signing key on every mint and resolves verification
// keys by the kid embedded in the token header.
type KeyProvider interface {
	SigningKey() (kid string, key []byte, err error)
	VerificationKey(kid string) ([]byte, error)
}

// StaticKeyProvider is a [KeyProvider] backed by a single fixed key.
type StaticKeyProvider struct {
	KeyID      string
	PrivateKey []byte
	PublicKey  []byte
}

// SigningKey returns the fixed key id and private key.
func (p StaticKeyProvider) SigningKey() (string, []byte, error) {
	if len(p.PrivateKey) == 0 {
		return "", nil, errors.New("static key provider has no private key")
	}
	return p.KeyID, p.PrivateKey, nil
}

// VerificationKey returns the public key (or, for symmetric methods, the
// private key) when kid matches the configured key id.
func (p StaticKeyProvider) VerificationKey(kid string) ([]byte, error) {
	if kid != p.KeyID {
		return nil, errors.New("unknown kid")
	}
	if len(p.PublicKey) > 0 {
		return p.PublicKey, nil
	}
	return p.PrivateKey, nil
}

// Config defines the token parameters used by [Manager].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Issuer        string
	Keys          KeyProvider
}

// Manager mints and parses the signed access tokens issued at the end of a
// successful MFA login. It is stateless and safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the registered-claims payload carried by every access token.
// Subject is the account identifier the session belongs to.
type Claims struct {
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Keys == nil {
		return nil, errors.New("key provider required")
	}
	kid, key, err := cfg.Keys.SigningKey()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("key provider returned empty kid")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(key) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(key); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Mint creates a signed access token for the given account. The token
// carries subject = accountID, exp = now + AccessTTL, and the provider's
// current kid in the header. The expiry is returned alongside the token so
// callers can mirror it into the session record.
func (j *Manager) Mint(accountID string) (string, time.Time, error) {
	kid, key, err := j.config.Keys.SigningKey()
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now()
	expiresAt := now.Add(j.config.AccessTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if kid != "" {
		token.Header["kid"] = kid
	}

	signKey, err := j.signKeyFor(key)
	if err != nil {
		return "", time.Time{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and standard claims of an access token and
// returns its claims. Expired tokens fail here.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Expiry returns the embedded expiry of a token whose signature verifies,
// without validating time-based claims. Logout uses this to derive the
// blacklist TTL even when the token has already expired.
func (j *Manager) Expiry(tokenStr string) (time.Time, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		return time.Time{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, jwt.ErrTokenInvalidClaims
	}
	return claims.ExpiresAt.Time, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}

	key, err := j.config.Keys.VerificationKey(kid)
	if err != nil {
		return nil, err
	}

	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) signKeyFor(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPrivateKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
