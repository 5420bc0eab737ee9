package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// identity is the authenticated principal attached to the request context
// before the MCP handler runs.
type identity struct {
	ClientID string
	// Method records how the caller proved itself: "bearer", "external",
	// "cached-address" or "development".
	Method string
}

type identityKey struct{}

func identityFrom(ctx context.Context) (*identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*identity)
	return id, ok
}

// requireAuth gates the tool endpoint. An unauthenticated request gets a 401
// with a Bearer challenge pointing at the protected-resource metadata, which
// is what triggers a compliant MCP client to start the OAuth flow.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := h.authenticate(r)
		if id == nil {
			metadataURL := h.publicURL.JoinPath(".well-known", "oauth-protected-resource").String()
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm=%q, error="invalid_token", error_description="missing or invalid bearer token", resource_metadata=%q`,
				serverName, metadataURL,
			))
			writeJSON(w, http.StatusUnauthorized, oauthErrorBody{
				Code:        "invalid_token",
				Description: "missing or invalid bearer token",
			})
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the caller's identity or returns nil. The bearer
// token is always tried first; the address cache is a fallback only, and
// every use of it is logged.
func (h *Handler) authenticate(r *http.Request) *identity {
	if !h.secured() {
		return &identity{ClientID: "dev", Method: "development"}
	}

	ctx := r.Context()
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && tok != "" {
		if claims, err := h.codec.Verify(tok); err == nil {
			return &identity{ClientID: claims.ClientID, Method: "bearer"}
		}
		if h.external != nil {
			if sub, err := h.external.Verify(ctx, tok); err == nil {
				return &identity{ClientID: sub, Method: "external"}
			}
		}
		h.log.DebugContext(ctx, "bearer token rejected")
	}

	// Some agent runtimes open extra connections after a successful
	// exchange and omit the Authorization header on them. A host that
	// recently completed the code flow stays authenticated until its
	// cache entry expires with the token.
	host := callerHost(r)
	if entry, ok := h.clients.Get(host); ok {
		h.log.WarnContext(ctx, "authenticated via cached address fallback", "remote", host, "client_id", entry.clientID)
		return &identity{ClientID: entry.clientID, Method: "cached-address"}
	}

	return nil
}
