package zaptec

import (
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
)

var (
	// ErrUpstream wraps every failure talking to the vendor API.
	ErrUpstream = errors.New("upstream vendor failure")
	// ErrUnauthorized is returned together with ErrUpstream when the vendor
	// rejects credentials or a token.
	ErrUnauthorized = errors.New("vendor rejected credentials")
)

const pageSize = 100

// APIClient handles communication with the Zaptec API
type APIClient struct {
	client     *http.Client
	apiBaseURL string
}

// NewAPIClient creates a new API client
func NewAPIClient(client *http.Client, apiBaseURL string) *APIClient {
	return &APIClient{
		client:     client,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
	}
}

// Authenticate exchanges username and password for an access token.
func (ac *APIClient) Authenticate(ctx context.Context, username, password string) (*AuthResponse, error) {
	authURL := fmt.Sprintf("%s/oauth/token", ac.apiBaseURL)

	formData := url.Values{}
	formData.Set("grant_type", "password")
	formData.Set("username", username)
	formData.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ac.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: auth request failed: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("auth", resp)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode auth response: %w", ErrUpstream, err)
	}
	if authResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: auth response without access token", ErrUpstream)
	}

	return &authResp, nil
}

// ListChargers retrieves all chargers visible to the token.
func (ac *APIClient) ListChargers(ctx context.Context, token string) ([]Charger, error) {
	var chargers []Charger

	err := ac.paginate(ctx, token, "/api/chargers", url.Values{}, func(item json.RawMessage) {
		var charger Charger
		if err := json.Unmarshal(item, &charger); err == nil {
			chargers = append(chargers, charger)
		}
	})
	if err != nil {
		return nil, err
	}

	return chargers, nil
}

// ChargeHistory retrieves the raw charge sessions of a charger between
// from and to.
func (ac *APIClient) ChargeHistory(ctx context.Context, token, chargerID string, from, to time.Time) ([]SessionEntry, error) {
	params := url.Values{}
	params.Set("ChargerId", chargerID)
	params.Set("From", from.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("To", to.UTC().Format("2006-01-02T15:04:05Z"))

	var sessions []SessionEntry
	err := ac.paginate(ctx, token, "/api/chargehistory", params, func(item json.RawMessage) {
		var entry SessionEntry
		if err := json.Unmarshal(item, &entry); err == nil && entry != nil {
			sessions = append(sessions, entry)
		}
	})
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

func (ac *APIClient) paginate(ctx context.Context, token, path string, params url.Values, each func(json.RawMessage)) error {
	pageIndex := 0

	for {
		params.Set("PageIndex", strconv.Itoa(pageIndex))
		params.Set("PageSize", strconv.Itoa(pageSize))
		pageURL := fmt.Sprintf("%s%s?%s", ac.apiBaseURL, path, params.Encode())

		var apiResp APIResponse
		if err := ac.getJSON(ctx, token, pageURL, &apiResp); err != nil {
			return err
		}

		for _, dataItem := range apiResp.Data {
			each(dataItem)
		}

		pageIndex++
		if pageIndex >= apiResp.Pages {
			return nil
		}
	}
}

func (ac *APIClient) getJSON(ctx context.Context, token, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := ac.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("request", resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrUpstream, err)
	}
	return nil
}

func statusError(what string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		(what == "auth" && resp.StatusCode == http.StatusBadRequest) {
		return fmt.Errorf("%w: %w: %s failed with status %d: %s", ErrUpstream, ErrUnauthorized, what, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("%w: %s failed with status %d: %s", ErrUpstream, what, resp.StatusCode, strings.TrimSpace(string(body)))
}
