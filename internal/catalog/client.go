package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vinyl-countdown/internal/game"
)

// ErrAuth marks an unrecoverable token problem. The orchestrator routes it
// to re-authentication instead of tearing the session down.
var ErrAuth = errors.New("auth_expired")

// TokenSource hands out a currently valid access token or fails.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client talks to the music catalog's REST API. Every call fetches a token
// first and never dispatches with a stale one.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
	}
}

func (c *Client) GetProfile(ctx context.Context) (game.Player, error) {
	var body profileResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &body); err != nil {
		return game.Player{}, err
	}
	p := game.Player{
		ID:      body.ID,
		Name:    body.DisplayName,
		Premium: body.Product == "premium",
	}
	if len(body.Images) > 0 {
		p.AvatarURL = body.Images[0].URL
	}
	return p, nil
}

func (c *Client) GetPlaylists(ctx context.Context) ([]game.Playlist, error) {
	q := url.Values{}
	q.Set("limit", "50")
	var body playlistsResponse
	if err := c.do(ctx, http.MethodGet, "/me/playlists", q, nil, &body); err != nil {
		return nil, err
	}
	out := make([]game.Playlist, 0, len(body.Items))
	for _, it := range body.Items {
		pl := game.Playlist{ID: it.ID, Name: it.Name, TrackCount: it.Tracks.Total}
		if len(it.Images) > 0 {
			pl.CoverURL = it.Images[0].URL
		}
		out = append(out, pl)
	}
	return out, nil
}

// maxTrackPages bounds pagination so a bad cursor cannot loop forever.
const maxTrackPages = 20

// GetPlaylistTracks returns the playlist's usable tracks: a parseable
// release year and a playable reference. Local files and region-blocked
// entries come back as null tracks and are skipped. Pagination cursors
// are followed until the playlist is exhausted.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string) ([]game.Song, error) {
	q := url.Values{}
	q.Set("limit", "100")

	var out []game.Song
	page := "/playlists/" + playlistID + "/tracks"
	query := q
	for i := 0; page != "" && i < maxTrackPages; i++ {
		var body playlistTracksResponse
		if err := c.do(ctx, http.MethodGet, page, query, nil, &body); err != nil {
			return nil, err
		}
		out = append(out, usableSongs(body.Items)...)
		// next is an absolute URL carrying its own offset
		page = body.Next
		query = nil
	}
	return out, nil
}

func usableSongs(items []trackItem) []game.Song {
	out := make([]game.Song, 0, len(items))
	for _, it := range items {
		tr := it.Track
		if tr == nil || tr.ID == "" || tr.URI == "" {
			continue
		}
		year, ok := releaseYear(tr.Album.ReleaseDate)
		if !ok {
			continue
		}
		song := game.Song{
			ID:          tr.ID,
			Title:       tr.Name,
			Year:        year,
			PreviewURL:  tr.PreviewURL,
			PlayableRef: tr.URI,
		}
		if len(tr.Artists) > 0 {
			song.Artist = tr.Artists[0].Name
		}
		if len(tr.Album.Images) > 0 {
			song.AlbumArtURL = tr.Album.Images[0].URL
		}
		out = append(out, song)
	}
	return out
}

// PlaybackControl starts playback of uri on the given device.
func (c *Client) PlaybackControl(ctx context.Context, deviceID, uri string) error {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	payload, err := json.Marshal(map[string][]string{"uris": {uri}})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/me/player/play", q, bytes.NewReader(payload), nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, out any) error {
	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("catalog token: %w", ErrAuth)
	}

	u := c.baseURL + path
	if strings.HasPrefix(path, "http") {
		u = path
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrAuth
	case resp.StatusCode >= 300:
		return fmt.Errorf("catalog status %d on %s", resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

func releaseYear(date string) (int, bool) {
	if len(date) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year == 0 {
		return 0, false
	}
	return year, true
}
