package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chaerem/glance-mcp-gateway/internal/bridge"
	"github.com/chaerem/glance-mcp-gateway/internal/glance"
	"github.com/chaerem/glance-mcp-gateway/internal/logctx"
)

// toolNames lists the registry in registration order, for health and
// discovery responses.
func toolNames() []string {
	return []string{
		"search-artworks",
		"display-artwork",
		"get-current-display",
		"list-playlists",
		"get-playlist",
		"get-device-status",
		"random-artwork",
	}
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"free-text search query for museum collections"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

type displayArgs struct {
	ImageURL string `json:"imageUrl" jsonschema:"URL of the image to display on the e-ink panel"`
	Title    string `json:"title,omitempty" jsonschema:"artwork title shown alongside the image"`
	Artist   string `json:"artist,omitempty" jsonschema:"artist attribution shown alongside the image"`
}

type playlistArgs struct {
	PlaylistID string `json:"playlistId" jsonschema:"identifier of the playlist to fetch"`
}

type emptyArgs struct{}

// newToolServer builds a fresh MCP server with the full tool registry.
// It is called once per inbound request; nothing here may hold per-session
// state.
func (h *Handler) newToolServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: Version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search-artworks",
		Description: "Search museum collections for artworks matching a query. Results also appear on the Glance dashboard.",
	}, run(h, "search-artworks", h.searchArtworks))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "display-artwork",
		Description: "Queue an image for the e-ink display; the panel updates on the device's next wake.",
	}, run(h, "display-artwork", h.displayArtwork))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get-current-display",
		Description: "Report what the display is currently showing.",
	}, run(h, "get-current-display", h.getCurrentDisplay))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list-playlists",
		Description: "List the artwork playlists configured on the display.",
	}, run(h, "list-playlists", h.listPlaylists))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get-playlist",
		Description: "Fetch one playlist with its artworks. The items also appear on the Glance dashboard.",
	}, run(h, "get-playlist", h.getPlaylist))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get-device-status",
		Description: "Report the display device's battery, firmware and connectivity status.",
	}, run(h, "get-device-status", h.getDeviceStatus))

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "random-artwork",
		Description: "Pick a random artwork from the collection. The pick also appears on the Glance dashboard.",
	}, run(h, "random-artwork", h.randomArtwork))

	return srv
}

// run adapts a plain (text, error) tool body to the SDK handler shape. A
// failing body becomes an isError result rather than a transport failure, so
// the calling agent sees the message and can react conversationally.
func run[In any](h *Handler, name string, fn func(ctx context.Context, args In) (string, error)) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, any, error) {
		ctx = logctx.WithToolName(ctx, name)
		if id, ok := identityFrom(ctx); ok {
			h.log.DebugContext(ctx, "tool invoked", "client_id", id.ClientID, "auth_method", id.Method)
		}
		text, err := fn(ctx, args)
		if err != nil {
			h.log.WarnContext(ctx, "tool call failed", "err", err)
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s failed: %v", name, err)}},
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil, nil
	}
}

func (h *Handler) searchArtworks(ctx context.Context, args searchArgs) (string, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := h.backend.SearchArtworks(ctx, query, limit)
	if err != nil {
		return "", err
	}
	h.publish(ctx, query, results)

	if len(results) == 0 {
		return fmt.Sprintf("No artworks found for %q.", query), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d artworks for %q:\n", len(results), query)
	writeArtworkList(&b, results)
	b.WriteString("\nThe results are showing on the Glance dashboard. Use display-artwork with an imageUrl to put one on the e-ink panel.")
	return b.String(), nil
}

func (h *Handler) displayArtwork(ctx context.Context, args displayArgs) (string, error) {
	imageURL := strings.TrimSpace(args.ImageURL)
	if imageURL == "" {
		return "", errors.New("imageUrl must not be empty")
	}

	cur, err := h.backend.DisplayArtwork(ctx, imageURL, args.Title, args.Artist)
	if err != nil {
		return "", err
	}

	label := args.Title
	if label == "" && cur.Artwork != nil {
		label = cur.Artwork.Title
	}
	if label == "" {
		label = imageURL
	}
	return fmt.Sprintf("Queued %q for display. The e-ink panel updates on the device's next wake.", label), nil
}

func (h *Handler) getCurrentDisplay(ctx context.Context, _ emptyArgs) (string, error) {
	cur, err := h.backend.CurrentDisplay(ctx)
	if err != nil {
		return "", err
	}
	if cur.Artwork == nil {
		return "The display is not showing anything yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Currently displayed: %s", cur.Artwork.Title)
	if cur.Artwork.Artist != "" {
		fmt.Fprintf(&b, " by %s", cur.Artwork.Artist)
	}
	if cur.Pending {
		b.WriteString(" (queued; appears on the device's next wake)")
	} else if !cur.DisplayedAt.IsZero() {
		fmt.Fprintf(&b, " (since %s)", cur.DisplayedAt.Format(time.RFC1123))
	}
	return b.String(), nil
}

func (h *Handler) listPlaylists(ctx context.Context, _ emptyArgs) (string, error) {
	playlists, err := h.backend.ListPlaylists(ctx)
	if err != nil {
		return "", err
	}
	if len(playlists) == 0 {
		return "No playlists are configured.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d playlists:\n", len(playlists))
	for _, p := range playlists {
		count := p.ItemCount
		if count == 0 {
			count = len(p.Items)
		}
		fmt.Fprintf(&b, "- %s (id %s, %d artworks)", p.Name, p.ID, count)
		if p.Active {
			b.WriteString(" [active]")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (h *Handler) getPlaylist(ctx context.Context, args playlistArgs) (string, error) {
	id := strings.TrimSpace(args.PlaylistID)
	if id == "" {
		return "", errors.New("playlistId must not be empty")
	}

	p, err := h.backend.GetPlaylist(ctx, id)
	if err != nil {
		return "", err
	}
	h.publish(ctx, "playlist: "+p.Name, p.Items)

	var b strings.Builder
	fmt.Fprintf(&b, "Playlist %q has %d artworks:\n", p.Name, len(p.Items))
	writeArtworkList(&b, p.Items)
	return b.String(), nil
}

func (h *Handler) getDeviceStatus(ctx context.Context, _ emptyArgs) (string, error) {
	st, err := h.backend.DeviceStatus(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Device %s:\n", st.DeviceID)
	fmt.Fprintf(&b, "- Battery: %d%% (%.2fV)", st.BatteryPercent, st.BatteryVoltage)
	if st.Charging {
		b.WriteString(", charging")
	}
	b.WriteString("\n")
	if st.FirmwareVersion != "" {
		fmt.Fprintf(&b, "- Firmware: %s\n", st.FirmwareVersion)
	}
	if st.WifiRSSI != 0 {
		fmt.Fprintf(&b, "- WiFi RSSI: %d dBm\n", st.WifiRSSI)
	}
	if !st.LastSeen.IsZero() {
		fmt.Fprintf(&b, "- Last seen: %s\n", st.LastSeen.Format(time.RFC1123))
	}
	if !st.NextWake.IsZero() {
		fmt.Fprintf(&b, "- Next wake: %s\n", st.NextWake.Format(time.RFC1123))
	}
	return b.String(), nil
}

func (h *Handler) randomArtwork(ctx context.Context, _ emptyArgs) (string, error) {
	a, err := h.backend.RandomArtwork(ctx)
	if err != nil {
		return "", err
	}
	h.publish(ctx, "random pick", []glance.Artwork{*a})

	var b strings.Builder
	fmt.Fprintf(&b, "Random pick: %s", a.Title)
	if a.Artist != "" {
		fmt.Fprintf(&b, " by %s", a.Artist)
	}
	if a.Date != "" {
		fmt.Fprintf(&b, " (%s)", a.Date)
	}
	fmt.Fprintf(&b, "\nImage: %s\nUse display-artwork with this imageUrl to put it on the panel.", a.ImageURL)
	return b.String(), nil
}

// publish replaces the dashboard's latest-search snapshot. Best effort: the
// dashboard poller must never fail a tool call.
func (h *Handler) publish(ctx context.Context, query string, results []glance.Artwork) {
	snap := bridge.Snapshot{Query: query, Results: results, Timestamp: time.Now()}
	if err := h.bridge.Write(ctx, snap); err != nil {
		h.log.WarnContext(ctx, "failed to publish results snapshot", "err", err)
	}
}

func writeArtworkList(b *strings.Builder, artworks []glance.Artwork) {
	for i, a := range artworks {
		fmt.Fprintf(b, "%d. %s", i+1, a.Title)
		if a.Artist != "" {
			fmt.Fprintf(b, " by %s", a.Artist)
		}
		if a.Date != "" {
			fmt.Fprintf(b, " (%s)", a.Date)
		}
		if a.ImageURL != "" {
			fmt.Fprintf(b, "\n   imageUrl: %s", a.ImageURL)
		}
		b.WriteString("\n")
	}
}
