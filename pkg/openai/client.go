// Package openai is a minimal client for the OpenAI REST API, used
// here only to verify connectivity from the health loop.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.token != "" }

// ListModels returns how many models the API key can see. It is the
// cheapest authenticated call the API offers, which makes it a good
// connectivity probe.
func (c *Client) ListModels(ctx context.Context) (int, error) {
	if c.token == "" {
		return 0, errors.New("openai: no api key configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.New("openai: unexpected status " + resp.Status)
	}
	var respBody struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return 0, err
	}
	return len(respBody.Data), nil
}
