package zaptec

import "encoding/json"

// AuthResponse represents Zaptec authentication response
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// APIResponse represents generic Zaptec API response with pagination
type APIResponse struct {
	Pages   int               `json:"Pages"`
	Data    []json.RawMessage `json:"Data"`
	Message string            `json:"Message"`
}

// Charger is the subset of the charger listing used to create owners.
// Field matching is case-insensitive, so both "Id" and "id" decode.
type Charger struct {
	ID               string `json:"Id"`
	DeviceID         string `json:"DeviceId"`
	Name             string `json:"Name"`
	Address          string `json:"Address"`
	InstallationID   string `json:"InstallationId"`
	InstallationName string `json:"InstallationName"`
	IsOnline         bool   `json:"IsOnline"`
}

// SessionEntry is one raw charge-history item. It stays untyped because
// the timestamp and energy field names differ between API versions and
// between Zaptec and OCPP backends.
type SessionEntry map[string]any
