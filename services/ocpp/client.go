// Package ocpp reads charge sessions from an OCPP backend that exposes
// them per charger over HTTP.
package ocpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/RobNhz/zaptec-invoice-app/services/zaptec"
)

type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewClient(client *http.Client, baseURL, token string) *Client {
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Sessions returns the sessions recorded for a charger. The backend may
// answer with a bare array or with an object wrapping it in "Data" or
// "sessions". Failures wrap zaptec.ErrUpstream so callers treat every
// vendor-side problem alike.
func (c *Client) Sessions(ctx context.Context, chargerID string) ([]zaptec.SessionEntry, error) {
	target := fmt.Sprintf("%s/chargers/%s/sessions", c.baseURL, url.PathEscape(chargerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ocpp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ocpp request failed: %w", zaptec.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read ocpp response: %w", zaptec.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ocpp sessions for %s failed with status %d", zaptec.ErrUpstream, chargerID, resp.StatusCode)
	}

	return decodeSessions(body)
}

func decodeSessions(body []byte) ([]zaptec.SessionEntry, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var sessions []zaptec.SessionEntry
	if body[0] == '[' {
		if err := json.Unmarshal(body, &sessions); err != nil {
			return nil, fmt.Errorf("%w: failed to decode ocpp sessions: %w", zaptec.ErrUpstream, err)
		}
		return sessions, nil
	}

	var wrapped struct {
		Data     []zaptec.SessionEntry `json:"Data"`
		Sessions []zaptec.SessionEntry `json:"sessions"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: failed to decode ocpp sessions: %w", zaptec.ErrUpstream, err)
	}
	if len(wrapped.Data) > 0 {
		return wrapped.Data, nil
	}
	return wrapped.Sessions, nil
}
