package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clipfarm/production"
)

// Client is a thin HTTP client for the production API
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("server returned %d with an unreadable body: %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		if env.Error != "" {
			return fmt.Errorf("%s: %s", env.Message, env.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Production fetches one production's snapshot.
func (c *Client) Production(ctx context.Context, id string) (*production.Snapshot, error) {
	var snap production.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/productions/"+id, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Latest returns the newest production, or nil when there is none.
func (c *Client) Latest(ctx context.Context) (*production.Snapshot, error) {
	var list []production.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/productions", nil, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// Create starts a production for a product URL and returns its id.
func (c *Client) Create(ctx context.Context, url, tone string, duration int) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]interface{}{"url": url, "tone": tone, "durationSeconds": duration}
	if err := c.do(ctx, http.MethodPost, "/api/productions", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ProduceAudio voices the script with the given background track.
func (c *Client) ProduceAudio(ctx context.Context, id, voice, track string) error {
	body := map[string]interface{}{"voice": voice, "backgroundTrackId": track}
	return c.do(ctx, http.MethodPost, "/api/productions/"+id+"/audio", body, nil)
}

// Render starts a render, superseding any running one.
func (c *Client) Render(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/productions/"+id+"/render", map[string]interface{}{"force": true}, nil)
}
