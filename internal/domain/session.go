package domain

import "time"

// Profile is the display shape of a Decode user. It originates upstream;
// this system only caches and proxies it.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// PlaceholderProfile is the synthetic profile used when enrichment cannot
// resolve a user. Enrichment failures never fail the surrounding request.
func PlaceholderProfile(id string) Profile {
	return Profile{ID: id, Username: "User_" + id, DisplayName: "User_" + id}
}

// Session is cache-resident only; the Decode API is its source of truth.
type Session struct {
	SessionToken string    `json:"session_token"`
	AccessToken  string    `json:"access_token"`
	User         Profile   `json:"user"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TTL returns the remaining cache lifetime of the session.
func (s *Session) TTL(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
