package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chaerem/glance-mcp-gateway/internal/tokens"
)

// tokenResponse is the success body of the token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// handleToken dispatches on grant_type. Parameters are accepted as a form
// body or as a flat JSON object; some MCP clients send one, some the other.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := tokenParams(r)
	if err != nil {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	switch grant := params.Get("grant_type"); grant {
	case "authorization_code":
		h.exchangeAuthorizationCode(w, r, params)
	case "client_credentials":
		h.exchangeClientCredentials(w, r, params)
	case "":
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_request", "grant_type is required")
	default:
		h.oauthError(ctx, w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type "+grant)
	}
}

func tokenParams(r *http.Request) (url.Values, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, err
		}
		params := make(url.Values, len(body))
		for k, v := range body {
			params.Set(k, v)
		}
		return params, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.PostForm, nil
}

// exchangeAuthorizationCode redeems a one-time code for a bearer token. The
// code is looked up, revalidated and only then atomically consumed, so two
// racing exchanges cannot both win: the loser's Delete reports the entry
// already gone and the exchange fails as an invalid grant.
func (h *Handler) exchangeAuthorizationCode(w http.ResponseWriter, r *http.Request, params url.Values) {
	ctx := r.Context()

	code := params.Get("code")
	redirectURI := params.Get("redirect_uri")
	verifier := params.Get("code_verifier")
	if code == "" || redirectURI == "" || verifier == "" {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_request", "code, redirect_uri and code_verifier are required")
		return
	}

	ac, ok := h.codes.Get(code)
	if !ok {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_grant", "unknown or expired authorization code")
		return
	}
	if ac.redirectURI != redirectURI {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the authorization request")
		return
	}
	if !pkceMatches(ac.codeChallenge, verifier) {
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	}
	if !h.codes.Delete(code) {
		// Consumed by a concurrent exchange between our Get and now.
		h.oauthError(ctx, w, http.StatusBadRequest, "invalid_grant", "authorization code already redeemed")
		return
	}

	tok, err := h.codec.Issue(ac.clientID)
	if err != nil {
		h.oauthError(ctx, w, http.StatusInternalServerError, "server_error", "failed to issue access token")
		return
	}

	// Remember the caller's address for the lifetime of the token. Some
	// agent runtimes open fresh connections that drop the Authorization
	// header; the cache lets those through (see authenticate).
	host := callerHost(r)
	h.clients.Put(host, clientEntry{clientID: ac.clientID}, time.Now().Add(h.codec.TTL()))

	h.log.InfoContext(ctx, "exchanged authorization code", "client_id", ac.clientID, "remote", host)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.codec.TTL().Seconds()),
		Scope:       tokens.Scope,
	})
}

// exchangeClientCredentials is the non-interactive fallback for
// server-to-server callers holding the static client secret. It does not
// populate the address cache.
func (h *Handler) exchangeClientCredentials(w http.ResponseWriter, r *http.Request, params url.Values) {
	ctx := r.Context()

	if !h.secured() {
		h.oauthError(ctx, w, http.StatusInternalServerError, "server_error", "client_credentials grant is not configured")
		return
	}

	idOK := subtle.ConstantTimeCompare([]byte(params.Get("client_id")), []byte(h.cfg.ClientID)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(params.Get("client_secret")), []byte(h.cfg.ClientSecret)) == 1
	if !idOK || !secretOK {
		h.oauthError(ctx, w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	tok, err := h.codec.Issue(h.cfg.ClientID)
	if err != nil {
		h.oauthError(ctx, w, http.StatusInternalServerError, "server_error", "failed to issue access token")
		return
	}

	h.log.InfoContext(ctx, "issued token via client_credentials", "client_id", h.cfg.ClientID)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.codec.TTL().Seconds()),
		Scope:       tokens.Scope,
	})
}

// pkceMatches checks S256(verifier) against the stored challenge in constant
// time.
func pkceMatches(challenge, verifier string) bool {
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
}
