package model

import "encoding/json"

// If you want a helper for JSON unmarshal:
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// ----------------------------------------------------------------------
// Token endpoint wire format
// ----------------------------------------------------------------------

// RefreshResponse is the token endpoint's successful payload when a refresh
// credential is exchanged for a new pair.
type RefreshResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresInSeconds int64  `json:"expires_in"`
}

// ErrorResponse is the OAuth-style error payload some servers return with a
// 400 status instead of a plain 401.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ----------------------------------------------------------------------
// Durable mirror format
// ----------------------------------------------------------------------

// StoredCredentials is the shape a credential pair takes in durable storage.
// ExpiresAt is RFC3339 so the file stays readable by hand.
type StoredCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}
