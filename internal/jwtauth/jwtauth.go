// Package jwtauth validates bearer tokens minted by an external OAuth/OIDC
// issuer.
//
// The gateway normally issues and verifies its own symmetric tokens; this
// package covers deployments that sit behind an identity provider instead.
// The issuer's JWKS is obtained through OpenID Connect discovery and kept
// fresh in the background, and inbound RS256 access tokens are checked for
// signature, issuer, audience and expiry.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates the token failed validation. Every failure mode
// maps to it so callers cannot distinguish (and leak) the reason.
var ErrUnauthorized = errors.New("unauthorized")

// Config controls validation of externally issued tokens.
type Config struct {
	// Issuer is the authorization server issuer URL used for discovery.
	Issuer string
	// Audience is the expected "aud" claim, typically the gateway's public
	// MCP endpoint URL.
	Audience string
	// AllowedAlgs restricts JWS algorithms; defaults to RS256.
	AllowedAlgs []string
	// Leeway is the clock-skew tolerance for time-based claims; defaults to
	// one minute.
	Leeway time.Duration
}

// Verifier checks externally issued JWT access tokens.
type Verifier struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

// New discovers the issuer's JWKS endpoint and returns a Verifier. The
// passed context bounds discovery and the background JWKS refresh.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = time.Minute
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %q: %w", cfg.Issuer, err)
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid authorization server metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("issuer metadata does not declare a jwks_uri")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &Verifier{cfg: cfg, keyfunc: kf.Keyfunc}, nil
}

// Verify validates tok and returns the token subject as the client
// identity. Any validation failure yields ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, tok string) (string, error) {
	if tok == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithLeeway(v.cfg.Leeway),
	)
	parsed, err := parser.Parse(tok, v.keyfunc)
	if err != nil {
		return "", fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return sub, nil
}
