package gateway

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/chaerem/glance-mcp-gateway/internal/glance"
)

const (
	testClientID     = "glance-agent"
	testClientSecret = "s3cret"
	testRedirectURI  = "https://agent.example/callback"
)

// newFakeBackend serves canned responses for every backend route the tools
// proxy to.
func newFakeBackend(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/artworks/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []glance.Artwork{
				{ID: "aic-1", Title: "Sunflowers for " + q, Artist: "Vincent van Gogh", ImageURL: "https://img.example/1.jpg"},
				{ID: "met-2", Title: "Water Lilies", Artist: "Claude Monet", ImageURL: "https://img.example/2.jpg"},
			},
		})
	})
	mux.HandleFunc("POST /api/import/url", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(glance.CurrentDisplay{
			Artwork: &glance.Artwork{Title: body["title"], ImageURL: body["imageUrl"]},
			Pending: true,
		})
	})
	mux.HandleFunc("GET /api/current", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(glance.CurrentDisplay{
			Artwork: &glance.Artwork{Title: "The Starry Night", Artist: "Vincent van Gogh"},
		})
	})
	mux.HandleFunc("GET /api/playlists", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"playlists": []glance.Playlist{{ID: "pl-1", Name: "Impressionists", Active: true, ItemCount: 2}},
		})
	})
	mux.HandleFunc("GET /api/playlists/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(glance.Playlist{
			ID:   r.PathValue("id"),
			Name: "Impressionists",
			Items: []glance.Artwork{
				{Title: "Impression, Sunrise", Artist: "Claude Monet", ImageURL: "https://img.example/3.jpg"},
			},
		})
	})
	mux.HandleFunc("GET /api/device-status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(glance.DeviceStatus{
			DeviceID: "esp32-001", BatteryVoltage: 3.91, BatteryPercent: 72, FirmwareVersion: "1.4.2",
		})
	})
	mux.HandleFunc("GET /api/artworks/random", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(glance.Artwork{
			Title: "The Great Wave", Artist: "Hokusai", ImageURL: "https://img.example/4.jpg",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestGateway spins up a gateway in front of a fake backend. mutate can
// adjust the config before construction (e.g. clear credentials for
// development mode).
func newTestGateway(t *testing.T, mutate func(*Config)) *httptest.Server {
	t.Helper()

	backend := newFakeBackend(t)
	cfg := Config{
		PublicURL:        "http://gateway.test",
		BackendURL:       backend.URL,
		ClientID:         testClientID,
		ClientSecret:     testClientSecret,
		TokenTTL:         time.Hour,
		CodeTTL:          10 * time.Minute,
		MaxPendingCodes:  100,
		MaxCachedClients: 10,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h, err := New(t.Context(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// noRedirect returns a client that surfaces 302s instead of following them.
func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func pkcePair(verifier string) (string, string) {
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

// obtainCode walks the authorization endpoint and returns the issued code.
func obtainCode(t *testing.T, gatewayURL, challenge, state string) string {
	t.Helper()

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	if state != "" {
		q.Set("state", state)
	}
	res, err := noRedirect().Get(gatewayURL + "/authorize?" + q.Encode())
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("authorize: want 302, got %d", res.StatusCode)
	}

	loc, err := url.Parse(res.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if !strings.HasPrefix(loc.String(), testRedirectURI) {
		t.Fatalf("redirect went to %q", loc)
	}
	if got := loc.Query().Get("state"); got != state {
		t.Errorf("state not round-tripped: want %q, got %q", state, got)
	}
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatal("redirect carried no code")
	}
	return code
}

// exchangeCode posts the code to the token endpoint and returns the decoded
// response plus HTTP status.
func exchangeCode(t *testing.T, gatewayURL, code, verifier string) (map[string]any, int) {
	t.Helper()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {verifier},
	}
	res, err := http.PostForm(gatewayURL+"/token", form)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer res.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	return body, res.StatusCode
}

func obtainToken(t *testing.T, gatewayURL string) string {
	t.Helper()
	verifier, challenge := pkcePair("test-verifier-0123456789-0123456789-0123456789")
	code := obtainCode(t, gatewayURL, challenge, "")
	body, status := exchangeCode(t, gatewayURL, code, verifier)
	if status != http.StatusOK {
		t.Fatalf("token exchange: want 200, got %d (%v)", status, body)
	}
	tok, _ := body["access_token"].(string)
	if tok == "" {
		t.Fatal("token response carried no access_token")
	}
	return tok
}

func TestAuthorizationCodeFlow(t *testing.T) {
	srv := newTestGateway(t, nil)

	verifier, challenge := pkcePair("correct-horse-battery-staple-0123456789")
	code := obtainCode(t, srv.URL, challenge, "xyzzy")

	body, status := exchangeCode(t, srv.URL, code, verifier)
	if status != http.StatusOK {
		t.Fatalf("exchange: want 200, got %d (%v)", status, body)
	}
	if want, got := "Bearer", body["token_type"]; want != got {
		t.Errorf("token_type: want %q, got %v", want, got)
	}
	if secs, _ := body["expires_in"].(float64); int(secs) != 3600 {
		t.Errorf("expires_in: want 3600, got %v", body["expires_in"])
	}
	if tok, _ := body["access_token"].(string); tok == "" {
		t.Error("missing access_token")
	}
}

func TestAuthorizationCodeIsSingleUse(t *testing.T) {
	srv := newTestGateway(t, nil)

	verifier, challenge := pkcePair("one-time-code-verifier-0123456789-0123456789")
	code := obtainCode(t, srv.URL, challenge, "")

	if _, status := exchangeCode(t, srv.URL, code, verifier); status != http.StatusOK {
		t.Fatalf("first exchange: want 200, got %d", status)
	}
	body, status := exchangeCode(t, srv.URL, code, verifier)
	if status != http.StatusBadRequest {
		t.Fatalf("replay: want 400, got %d", status)
	}
	if want, got := "invalid_grant", body["error"]; want != got {
		t.Errorf("replay error: want %q, got %v", want, got)
	}
}

func TestPKCEMismatch(t *testing.T) {
	srv := newTestGateway(t, nil)

	_, challenge := pkcePair("the-real-verifier-0123456789-0123456789-012")
	code := obtainCode(t, srv.URL, challenge, "")

	body, status := exchangeCode(t, srv.URL, code, "a-completely-different-verifier-0123456789")
	if status != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", status)
	}
	if want, got := "invalid_grant", body["error"]; want != got {
		t.Errorf("error: want %q, got %v", want, got)
	}
}

func TestRedirectURIMismatch(t *testing.T) {
	srv := newTestGateway(t, nil)

	verifier, challenge := pkcePair("redirect-check-verifier-0123456789-0123456")
	code := obtainCode(t, srv.URL, challenge, "")

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://evil.example/callback"},
		"code_verifier": {verifier},
	}
	res, err := http.PostForm(srv.URL+"/token", form)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", res.StatusCode)
	}
}

func TestAuthorizeValidation(t *testing.T) {
	srv := newTestGateway(t, nil)

	base := url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"code_challenge":        {"abc"},
		"code_challenge_method": {"S256"},
	}
	cases := map[string]struct {
		mutate    func(url.Values)
		wantError string
	}{
		"token response type": {
			mutate:    func(v url.Values) { v.Set("response_type", "token") },
			wantError: "unsupported_response_type",
		},
		"missing challenge": {
			mutate:    func(v url.Values) { v.Del("code_challenge") },
			wantError: "invalid_request",
		},
		"plain challenge method": {
			mutate:    func(v url.Values) { v.Set("code_challenge_method", "plain") },
			wantError: "invalid_request",
		},
		"relative redirect": {
			mutate:    func(v url.Values) { v.Set("redirect_uri", "/callback") },
			wantError: "invalid_request",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			q := url.Values{}
			for k, vs := range base {
				q[k] = append([]string(nil), vs...)
			}
			tc.mutate(q)

			res, err := noRedirect().Get(srv.URL + "/authorize?" + q.Encode())
			if err != nil {
				t.Fatalf("authorize: %v", err)
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", res.StatusCode)
			}
			var body map[string]any
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := body["error"]; got != tc.wantError {
				t.Errorf("error: want %q, got %v", tc.wantError, got)
			}
		})
	}
}

func TestClientCredentials(t *testing.T) {
	srv := newTestGateway(t, nil)

	t.Run("valid", func(t *testing.T) {
		res, err := http.PostForm(srv.URL+"/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {testClientID},
			"client_secret": {testClientSecret},
		})
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("want 200, got %d", res.StatusCode)
		}
		var body tokenResponse
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.AccessToken == "" || body.TokenType != "Bearer" {
			t.Errorf("unexpected response: %+v", body)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		res, err := http.PostForm(srv.URL+"/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {testClientID},
			"client_secret": {"nope"},
		})
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", res.StatusCode)
		}
		var body map[string]any
		_ = json.NewDecoder(res.Body).Decode(&body)
		if want, got := "invalid_client", body["error"]; want != got {
			t.Errorf("error: want %q, got %v", want, got)
		}
	})

	t.Run("json body", func(t *testing.T) {
		payload := `{"grant_type":"client_credentials","client_id":"` + testClientID + `","client_secret":"` + testClientSecret + `"}`
		res, err := http.Post(srv.URL+"/token", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("want 200, got %d", res.StatusCode)
		}
	})
}

func TestClientCredentialsUnconfigured(t *testing.T) {
	srv := newTestGateway(t, func(cfg *Config) {
		cfg.ClientID = ""
		cfg.ClientSecret = ""
	})

	res, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"anyone"},
		"client_secret": {"anything"},
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", res.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(res.Body).Decode(&body)
	if want, got := "server_error", body["error"]; want != got {
		t.Errorf("error: want %q, got %v", want, got)
	}
}

func TestUnsupportedGrantType(t *testing.T) {
	srv := newTestGateway(t, nil)

	res, err := http.PostForm(srv.URL+"/token", url.Values{"grant_type": {"password"}})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", res.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(res.Body).Decode(&body)
	if want, got := "unsupported_grant_type", body["error"]; want != got {
		t.Errorf("error: want %q, got %v", want, got)
	}
}
