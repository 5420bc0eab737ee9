// Package glance is a thin HTTP client for the display's backend service.
//
// The backend owns museum search, image processing and the device state; the
// gateway only proxies individual calls to it. Every method maps to exactly
// one request, carries the caller's context, and performs no retries: a slow
// or failing backend is reported upward as an error for the tool layer to
// convert into a conversational failure.
package glance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Artwork is one displayable item as the backend reports it.
type Artwork struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Artist   string `json:"artist,omitempty"`
	Date     string `json:"date,omitempty"`
	ImageURL string `json:"imageUrl"`
	ThumbURL string `json:"thumbUrl,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Playlist is a named rotation of artworks on the device.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active,omitempty"`
	Items     []Artwork `json:"items,omitempty"`
	ItemCount int       `json:"itemCount,omitempty"`
}

// CurrentDisplay describes what the device is showing (or will show on its
// next wake).
type CurrentDisplay struct {
	Artwork     *Artwork  `json:"artwork,omitempty"`
	DisplayedAt time.Time `json:"displayedAt,omitempty"`
	Pending     bool      `json:"pending,omitempty"`
}

// DeviceStatus mirrors the status report the battery-powered display uploads
// between deep sleeps.
type DeviceStatus struct {
	DeviceID        string    `json:"deviceId"`
	BatteryVoltage  float64   `json:"batteryVoltage"`
	BatteryPercent  int       `json:"batteryPercent"`
	Charging        bool      `json:"charging"`
	FirmwareVersion string    `json:"firmwareVersion,omitempty"`
	WifiRSSI        int       `json:"wifiRssi,omitempty"`
	LastSeen        time.Time `json:"lastSeen,omitempty"`
	NextWake        time.Time `json:"nextWake,omitempty"`
}

// Client calls the backend over plain HTTP at a configured base URL.
type Client struct {
	base *url.URL
	http *http.Client
}

// New builds a Client for the backend at baseURL (e.g.
// "http://localhost:3000"). The optional httpClient lets tests and callers
// inject timeouts; nil means http.DefaultClient.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must use HTTP or HTTPS scheme, got %q", u.Scheme)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: u, http: httpClient}, nil
}

// SearchArtworks queries the museum search backend.
func (c *Client) SearchArtworks(ctx context.Context, query string, limit int) ([]Artwork, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Results []Artwork `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/artworks/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// DisplayArtwork asks the backend to import the image at imageURL, process
// it for the e-ink panel, and queue it for the device's next wake.
func (c *Client) DisplayArtwork(ctx context.Context, imageURL, title, artist string) (*CurrentDisplay, error) {
	body := map[string]string{"imageUrl": imageURL}
	if title != "" {
		body["title"] = title
	}
	if artist != "" {
		body["artist"] = artist
	}
	var out CurrentDisplay
	if err := c.do(ctx, http.MethodPost, "/api/import/url", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentDisplay reports what the device is currently showing.
func (c *Client) CurrentDisplay(ctx context.Context) (*CurrentDisplay, error) {
	var out CurrentDisplay
	if err := c.do(ctx, http.MethodGet, "/api/current", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPlaylists returns all playlists known to the backend.
func (c *Client) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var out struct {
		Playlists []Playlist `json:"playlists"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/playlists", nil, &out); err != nil {
		return nil, err
	}
	return out.Playlists, nil
}

// GetPlaylist returns a single playlist with its items.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	var out Playlist
	if err := c.do(ctx, http.MethodGet, "/api/playlists/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeviceStatus returns the device's last uploaded status report.
func (c *Client) DeviceStatus(ctx context.Context) (*DeviceStatus, error) {
	var out DeviceStatus
	if err := c.do(ctx, http.MethodGet, "/api/device-status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RandomArtwork asks the backend to pick one artwork from its collection.
func (c *Client) RandomArtwork(ctx context.Context) (*Artwork, error) {
	var out Artwork
	if err := c.do(ctx, http.MethodGet, "/api/artworks/random", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request against the backend and decodes a JSON response
// into out (when out is non-nil). Non-2xx statuses become errors carrying a
// trimmed slice of the response body.
func (c *Client) do(ctx context.Context, method, pathAndQuery string, body, out any) error {
	ref, err := url.Parse(pathAndQuery)
	if err != nil {
		return fmt.Errorf("invalid backend path %q: %w", pathAndQuery, err)
	}
	u := c.base.ResolveReference(ref)

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("build backend request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s %s: %w", method, ref.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("backend %s %s: status %d: %s", method, ref.Path, res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode backend response for %s: %w", ref.Path, err)
	}
	return nil
}
