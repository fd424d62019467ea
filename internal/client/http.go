package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"playground-flow/internal/tracking/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPClient talks to the tracking API. It implements Backend and Sender.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a client for the tracking API at baseURL (e.g. http://localhost:8081).
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Connect fetches the session data for login.
func (c *HTTPClient) Connect(ctx context.Context, login string) (*domain.SessionData, error) {
	u := c.baseURL + "/connect?login=" + url.QueryEscape(login)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("connect: status %d: %s", resp.StatusCode, string(body))
	}
	var data domain.SessionData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("connect: decode: %w", err)
	}
	return &data, nil
}

// Send posts one beacon.
func (c *HTTPClient) Send(ctx context.Context, p *domain.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/track", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("track: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("track: status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
