package gateway

import (
	"net/http"

	"github.com/elnormous/contenttype"

	"github.com/chaerem/glance-mcp-gateway/internal/tokens"
	"github.com/chaerem/glance-mcp-gateway/internal/wellknown"
)

var jsonMediaTypes = []contenttype.MediaType{
	contenttype.NewMediaType("application/json"),
}

// negotiateJSON rejects callers that explicitly refuse JSON. Absent or
// wildcard Accept headers pass.
func (h *Handler) negotiateJSON(w http.ResponseWriter, r *http.Request) bool {
	if _, _, err := contenttype.GetAcceptableMediaType(r, jsonMediaTypes); err != nil {
		http.Error(w, "only application/json responses are available", http.StatusNotAcceptable)
		return false
	}
	return true
}

// discoveryDocument describes the gateway to a probing client.
type discoveryDocument struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Description    string   `json:"description"`
	Protocol       string   `json:"protocol"`
	Transport      string   `json:"transport"`
	Stateless      bool     `json:"stateless"`
	Authentication string   `json:"authentication"`
	Tools          []string `json:"tools"`
	Endpoints      struct {
		Authorization string `json:"authorization"`
		Token         string `json:"token"`
		MCP           string `json:"mcp"`
	} `json:"endpoints"`
}

// handleDiscovery serves a static description of the gateway on GET /mcp.
// The MCP protocol itself only uses POST; GET is what humans and probing
// clients hit first.
func (h *Handler) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if !h.negotiateJSON(w, r) {
		return
	}

	doc := discoveryDocument{
		Name:           serverName,
		Version:        Version,
		Description:    "Remote-control gateway for a Glance e-ink art display",
		Protocol:       "mcp",
		Transport:      "streamable-http",
		Stateless:      true,
		Authentication: "oauth2",
		Tools:          toolNames(),
	}
	if !h.secured() {
		doc.Authentication = "none"
	}
	doc.Endpoints.Authorization = h.publicURL.JoinPath("authorize").String()
	doc.Endpoints.Token = h.publicURL.JoinPath("token").String()
	doc.Endpoints.MCP = h.publicURL.JoinPath("mcp").String()

	writeJSON(w, http.StatusOK, doc)
}

// handleSessionDelete acknowledges session teardown. The transport is
// stateless, so there is nothing to tear down; clients that send DELETE per
// the MCP spec still get a clean success.
func (h *Handler) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.negotiateJSON(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status  string   `json:"status"`
		Version string   `json:"version"`
		Tools   []string `json:"tools"`
	}{Status: "ok", Version: Version, Tools: toolNames()})
}

func (h *Handler) handleAuthServerMetadata(w http.ResponseWriter, r *http.Request) {
	if !h.negotiateJSON(w, r) {
		return
	}
	pub := h.publicURL
	writeJSON(w, http.StatusOK, wellknown.AuthorizationServerMetadata{
		Issuer:                            pub.String(),
		AuthorizationEndpoint:             pub.JoinPath("authorize").String(),
		TokenEndpoint:                     pub.JoinPath("token").String(),
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "client_credentials"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
		ScopesSupported:                   []string{tokens.Scope},
	})
}

func (h *Handler) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if !h.negotiateJSON(w, r) {
		return
	}
	pub := h.publicURL
	writeJSON(w, http.StatusOK, wellknown.ProtectedResourceMetadata{
		Resource:               pub.JoinPath("mcp").String(),
		AuthorizationServers:   []string{pub.String()},
		ScopesSupported:        []string{tokens.Scope},
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "Glance MCP Gateway",
	})
}
