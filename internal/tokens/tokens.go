// Package tokens implements the gateway's self-issued bearer tokens.
//
// Tokens are HS256-signed JWTs carrying the client identifier and a fixed
// scope. They are stateless: a token is valid iff its signature checks out
// and it has not expired, so there is no server-side token record and no
// revocation before natural expiry.
package tokens

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates a token failed signature, shape, or time
// validation. Callers must treat every failure mode identically.
var ErrInvalidToken = errors.New("invalid token")

// Scope granted to every token issued by the gateway. The gateway serves a
// single pre-trusted client, so there is no finer-grained scope model.
const Scope = "tools"

// secretBytes is the size of a generated signing secret (256 bits).
const secretBytes = 32

// Claims is the logical payload of an access token.
type Claims struct {
	ClientID  string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies short-lived bearer tokens with a process-held
// symmetric secret. It carries no mutable state and is safe for concurrent
// use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a Codec from a signing secret and token lifetime. When
// secret is empty a random secret is generated and held for the process
// lifetime; previously issued tokens then do not survive a restart.
func NewCodec(secret string, ttl time.Duration) (*Codec, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, secretBytes)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Codec{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL reports the lifetime applied to issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// wireClaims is the JWT shape of Claims.
type wireClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Issue mints a signed bearer token for clientID.
func (c *Codec) Issue(clientID string) (string, error) {
	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, wireClaims{
		Scope: Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token. It fails closed: any signature
// mismatch, malformed payload, or past expiry yields ErrInvalidToken.
func (c *Codec) Verify(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	var wire wireClaims
	parsed, err := parser.ParseWithClaims(token, &wire, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if wire.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	claims := &Claims{
		ClientID:  wire.Subject,
		Scope:     wire.Scope,
		ExpiresAt: wire.ExpiresAt.Time,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	return claims, nil
}
