// Package gateway implements the public HTTP surface that lets a remote
// conversational agent act on a Glance e-ink art display.
//
// The gateway is deliberately small: it is an OAuth 2.1-style authorization
// server for exactly one pre-trusted client (authorization-code + PKCE, with
// a client-credentials fallback), a bearer-token gate in front of a
// stateless MCP tool endpoint, and a single-slot result bridge that the
// human-facing dashboard polls. Every tool call proxies one request to the
// display's backend service; the museum search, image processing and device
// firmware all live elsewhere.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chaerem/glance-mcp-gateway/internal/bridge"
	"github.com/chaerem/glance-mcp-gateway/internal/glance"
	"github.com/chaerem/glance-mcp-gateway/internal/jwtauth"
	"github.com/chaerem/glance-mcp-gateway/internal/logctx"
	"github.com/chaerem/glance-mcp-gateway/internal/tokens"
	"github.com/chaerem/glance-mcp-gateway/internal/ttlstore"
)

const serverName = "glance-mcp-gateway"

// Version is reported by discovery, health, and the MCP implementation info.
const Version = "1.2.0"

// backendTimeout bounds a single proxied call to the backend service. The
// tool layer converts a timeout into a conversational failure; there are no
// retries at this layer.
const backendTimeout = 60 * time.Second

// Config is the gateway's environment-style configuration. Fields can be
// populated from the environment with envdecode.
type Config struct {
	// Addr is the listen address. ENV: GLANCE_GATEWAY_ADDR
	Addr string `env:"GLANCE_GATEWAY_ADDR,default=:8765"`
	// PublicURL is the externally reachable base URL of the gateway, used
	// for metadata documents and token audiences. ENV: GLANCE_GATEWAY_URL
	PublicURL string `env:"GLANCE_GATEWAY_URL,default=http://localhost:8765"`
	// BackendURL is the base URL of the display's backend service.
	// ENV: GLANCE_SERVER_URL
	BackendURL string `env:"GLANCE_SERVER_URL,default=http://localhost:3000"`

	// ClientID and ClientSecret are the statically configured credentials of
	// the single trusted client. Leaving both empty disables authentication
	// entirely and serves an unauthenticated development mode.
	ClientID     string `env:"GLANCE_MCP_CLIENT_ID"`
	ClientSecret string `env:"GLANCE_MCP_CLIENT_SECRET"`

	// SigningSecret signs bearer tokens. Generated at startup when empty;
	// tokens then do not survive a restart.
	SigningSecret string `env:"GLANCE_MCP_SIGNING_SECRET"`
	// TokenTTL is the fixed lifetime of issued bearer tokens.
	TokenTTL time.Duration `env:"GLANCE_MCP_TOKEN_TTL,default=1h"`
	// CodeTTL is the lifetime of one-time authorization codes.
	CodeTTL time.Duration `env:"GLANCE_MCP_CODE_TTL,default=10m"`

	// SweepInterval is how often expired entries are removed from the
	// bounded stores.
	SweepInterval time.Duration `env:"GLANCE_MCP_SWEEP_INTERVAL,default=1m"`
	// MaxPendingCodes and MaxCachedClients are hard capacity ceilings for
	// the two bounded stores; oldest entries are evicted first on overflow.
	MaxPendingCodes  int `env:"GLANCE_MCP_MAX_PENDING_CODES,default=1000"`
	MaxCachedClients int `env:"GLANCE_MCP_MAX_CACHED_CLIENTS,default=256"`

	// RedisAddr, when set, stores the latest-search snapshot in Redis so
	// several gateway replicas share one slot.
	RedisAddr string `env:"GLANCE_REDIS_ADDR"`

	// OIDCIssuer enables acceptance of bearer tokens minted by an external
	// OAuth/OIDC issuer in addition to the gateway's own. OIDCAudience
	// defaults to the public MCP endpoint URL.
	OIDCIssuer   string `env:"GLANCE_OIDC_ISSUER"`
	OIDCAudience string `env:"GLANCE_OIDC_AUDIENCE"`

	// LogLevel is the minimum slog level ("debug", "info", "warn",
	// "error"). ENV: GLANCE_LOG_LEVEL
	LogLevel string `env:"GLANCE_LOG_LEVEL,default=info"`

	// LogHandler receives the gateway's logs. Nil discards them.
	LogHandler slog.Handler
}

// authCode is the server-side record behind a one-time authorization code.
type authCode struct {
	clientID            string
	codeChallenge       string
	codeChallengeMethod string
	redirectURI         string
}

// clientEntry is a cached caller-address identity created as a side effect
// of a successful authorization-code exchange.
type clientEntry struct {
	clientID string
}

// Handler is the gateway's HTTP handler. Construct it with New and mount it
// at the server root.
type Handler struct {
	cfg       Config
	log       *slog.Logger
	publicURL *url.URL

	codec    *tokens.Codec
	external *jwtauth.Verifier
	codes    *ttlstore.Store[authCode]
	clients  *ttlstore.Store[clientEntry]
	bridge   bridge.Store
	backend  *glance.Client

	mux *http.ServeMux
	mcp http.Handler
}

// New validates cfg and assembles the gateway. The passed context bounds
// startup work (OIDC discovery, Redis ping); it does not bound the
// handler's lifetime.
func New(ctx context.Context, cfg Config) (*Handler, error) {
	pub, err := url.Parse(cfg.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("invalid public URL %q: %w", cfg.PublicURL, err)
	}
	if pub.Scheme != "http" && pub.Scheme != "https" {
		return nil, fmt.Errorf("public URL must use HTTP or HTTPS scheme, got %q", pub.Scheme)
	}
	if (cfg.ClientID == "") != (cfg.ClientSecret == "") {
		return nil, fmt.Errorf("client id and secret must be configured together")
	}

	logHandler := slog.DiscardHandler
	if cfg.LogHandler != nil {
		logHandler = cfg.LogHandler
	}
	log := slog.New(logctx.Handler{Handler: logHandler})

	codec, err := tokens.NewCodec(cfg.SigningSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	backend, err := glance.New(cfg.BackendURL, &http.Client{Timeout: backendTimeout})
	if err != nil {
		return nil, err
	}

	var snapshots bridge.Store = bridge.NewMemory()
	if cfg.RedisAddr != "" {
		snapshots, err = bridge.NewRedis(cfg.RedisAddr, "")
		if err != nil {
			return nil, fmt.Errorf("shared snapshot store: %w", err)
		}
		log.Info("using shared Redis snapshot store", "addr", cfg.RedisAddr)
	}

	var external *jwtauth.Verifier
	if cfg.OIDCIssuer != "" {
		audience := cfg.OIDCAudience
		if audience == "" {
			audience = pub.JoinPath("mcp").String()
		}
		external, err = jwtauth.New(ctx, jwtauth.Config{Issuer: cfg.OIDCIssuer, Audience: audience})
		if err != nil {
			return nil, fmt.Errorf("external issuer: %w", err)
		}
		log.Info("accepting externally issued tokens", "issuer", cfg.OIDCIssuer, "audience", audience)
	}

	h := &Handler{
		cfg:       cfg,
		log:       log,
		publicURL: pub,
		codec:     codec,
		external:  external,
		codes:     ttlstore.New[authCode](cfg.MaxPendingCodes),
		clients:   ttlstore.New[clientEntry](cfg.MaxCachedClients),
		bridge:    snapshots,
		backend:   backend,
	}

	if !h.secured() {
		log.Warn("no client credentials configured; serving unauthenticated development mode")
	}

	// A brand-new server value is built for every inbound call: no session
	// state survives between requests, so any replica can serve any call.
	h.mcp = mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return h.newToolServer()
	}, &mcpsdk.StreamableHTTPOptions{Stateless: true, JSONResponse: true})

	h.routes()
	return h, nil
}

func (h *Handler) secured() bool {
	return h.cfg.ClientID != "" && h.cfg.ClientSecret != ""
}

func (h *Handler) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", h.handleAuthorize)
	mux.HandleFunc("POST /token", h.handleToken)
	mux.Handle("POST /mcp", h.requireAuth(h.mcp))
	mux.HandleFunc("GET /mcp", h.handleDiscovery)
	mux.HandleFunc("DELETE /mcp", h.handleSessionDelete)
	mux.HandleFunc("GET /mcp/health", h.handleHealth)
	mux.HandleFunc("GET /ai-search/latest", h.handleLatestGet)
	mux.HandleFunc("DELETE /ai-search/latest", h.handleLatestDelete)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", h.handleAuthServerMetadata)
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", h.handleProtectedResourceMetadata)
	h.mux = mux
}

// ServeHTTP tags the request context for log correlation and dispatches.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// oauthErrorBody is the structured error shape of the OAuth endpoints.
type oauthErrorBody struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (h *Handler) oauthError(ctx context.Context, w http.ResponseWriter, status int, code, description string) {
	h.log.InfoContext(ctx, "request rejected", "error", code, "description", description)
	writeJSON(w, status, oauthErrorBody{Code: code, Description: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// callerHost is the caller's network address without the ephemeral port, so
// several connections from one host share a cache entry.
func callerHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
