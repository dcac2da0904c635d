package models

import "time"

// Credential is an issued TikTok user token. It is replaced wholesale on
// refresh or re-authorization, never patched.
type Credential struct {
	AccessToken      string    `json:"access_token"`
	OpenID           string    `json:"open_id"`
	ObtainedAt       time.Time `json:"obtained_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	Scope            string    `json:"scope,omitempty"`
}

// Valid reports whether the credential carries both required fields.
func (c *Credential) Valid() bool {
	return c != nil && c.AccessToken != "" && c.OpenID != ""
}

// Stale reports whether the credential should be refreshed or re-issued at now.
// A platform-provided expiry wins; otherwise maxAge from ObtainedAt applies.
func (c *Credential) Stale(now time.Time, maxAge time.Duration) bool {
	if !c.Valid() {
		return true
	}
	if !c.ExpiresAt.IsZero() {
		return !now.Before(c.ExpiresAt.Add(-time.Minute))
	}
	if maxAge > 0 && !c.ObtainedAt.IsZero() {
		return now.Sub(c.ObtainedAt) >= maxAge
	}
	return false
}

// CanRefresh reports whether a refresh token is present and not expired.
func (c *Credential) CanRefresh(now time.Time) bool {
	if c == nil || c.RefreshToken == "" {
		return false
	}
	return c.RefreshExpiresAt.IsZero() || now.Before(c.RefreshExpiresAt)
}
