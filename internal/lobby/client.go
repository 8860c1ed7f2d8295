package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrNotFound = errors.New("lobby_not_found")

// Lobby is the backend's view of a lobby, shared with internal/lobbyd.
type Lobby struct {
	Code     string   `json:"code"`
	HostName string   `json:"host_name"`
	Rounds   int      `json:"rounds"`
	Players  []string `json:"players"`
	State    string   `json:"state"`
}

type createRequest struct {
	HostName string `json:"host_name"`
	Rounds   int    `json:"rounds"`
}

type joinRequest struct {
	PlayerName string `json:"player_name"`
}

// Client talks to the lobby backend's REST surface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Create(ctx context.Context, hostName string, rounds int) (*Lobby, error) {
	return c.do(ctx, http.MethodPost, "/lobbies", createRequest{HostName: hostName, Rounds: rounds})
}

func (c *Client) Get(ctx context.Context, code string) (*Lobby, error) {
	return c.do(ctx, http.MethodGet, "/lobbies/"+code, nil)
}

func (c *Client) Join(ctx context.Context, code, playerName string) (*Lobby, error) {
	return c.do(ctx, http.MethodPost, "/lobbies/"+code+"/join", joinRequest{PlayerName: playerName})
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*Lobby, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lobby request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("lobby status %d on %s", resp.StatusCode, path)
	}

	var out Lobby
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode lobby response: %w", err)
	}
	return &out, nil
}
