package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// handleAuthorize implements the authorization endpoint of the code + PKCE
// flow. There is no login page and no consent screen: the gateway trusts its
// single operator, so a well-formed request gets a code immediately and is
// redirected back to the client.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if rt := q.Get("response_type"); rt != "code" {
		h.oauthError(ctx, w, http.StatusBadRequest, "unsupported_response_type", fmt.Sprintf("response_type must be %q, got %q", "code", rt))
		return
	}

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	challenge := q.Get("code_challenge")
	if clientID == "" || redirectURI == "" || challenge == "" {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_request", "client_id, redirect_uri and code_challenge are required")
		return
	}

	method := q.Get("code_challenge_method")
	if method == "" {
		method = "S256"
	}
	if method != "S256" {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_request", "only the S256 code_challenge_method is supported")
		return
	}

	target, err := url.Parse(redirectURI)
	if err != nil || !target.IsAbs() {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_request", "redirect_uri must be an absolute URL")
		return
	}

	code, err := randomCode()
	if err != nil {
		h.oauthError(ctx, w, http.StatusInternalServerError, "server_error", "failed to generate authorization code")
		return
	}

	h.codes.Put(code, authCode{
		clientID:            clientID,
		codeChallenge:       challenge,
		codeChallengeMethod: method,
		redirectURI:         redirectURI,
	}, time.Now().Add(h.cfg.CodeTTL))

	h.log.InfoContext(ctx, "issued authorization code", "client_id", clientID)

	v := target.Query()
	v.Set("code", code)
	if state := q.Get("state"); state != "" {
		v.Set("state", state)
	}
	target.RawQuery = v.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// randomCode returns 32 bytes of CSPRNG output in unpadded base64url form,
// matching the alphabet PKCE verifiers use.
func randomCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
