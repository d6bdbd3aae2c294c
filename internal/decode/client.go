// Package decode is the outbound client for the Decode identity/social API.
// All profile, follow, and auth-token data originates there; this system
// caches and proxies it but never owns it.
package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dehive/internal/domain"
	apperr "dehive/pkg/errors"
)

const (
	headerSessionID   = "x-session-id"
	headerFingerprint = "x-fingerprint-hashed"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:9000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// envelope is Decode's uniform response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type sessionPayload struct {
	SessionToken string         `json:"session_token"`
	AccessToken  string         `json:"access_token"`
	User         domain.Profile `json:"user"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

func (p *sessionPayload) toDomain() *domain.Session {
	return &domain.Session{
		SessionToken: p.SessionToken,
		AccessToken:  p.AccessToken,
		User:         p.User,
		ExpiresAt:    p.ExpiresAt,
	}
}

// ValidateSSO exchanges a session id + device fingerprint for a full session.
// Failure here must fail auth, so errors are typed, not swallowed.
func (c *Client) ValidateSSO(ctx context.Context, sessionID, fingerprint string) (*domain.Session, error) {
	var out sessionPayload
	err := c.call(ctx, http.MethodPost, "/auth/sso/validate", map[string]string{
		"session_id":  sessionID,
		"fingerprint": fingerprint,
	}, map[string]string{headerSessionID: sessionID, headerFingerprint: fingerprint}, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// RefreshSession trades an expired access token's session for a fresh one.
// This is the single retry path in the whole system.
func (c *Client) RefreshSession(ctx context.Context, sessionToken, fingerprint string) (*domain.Session, error) {
	var out sessionPayload
	err := c.call(ctx, http.MethodPost, "/auth/refresh-session", map[string]string{
		"session_token": sessionToken,
		"fingerprint":   fingerprint,
	}, map[string]string{headerFingerprint: fingerprint}, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// InfoByAccessToken resolves the user behind a bearer access token.
func (c *Client) InfoByAccessToken(ctx context.Context, accessToken string) (*domain.Profile, error) {
	var out domain.Profile
	err := c.call(ctx, http.MethodPost, "/auth/info/by-access-token", map[string]string{
		"access_token": accessToken,
	}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches a user's public profile. Tolerant: returns nil on any
// failure so enrichment callers can degrade to a placeholder.
func (c *Client) Profile(ctx context.Context, userID string) *domain.Profile {
	var out domain.Profile
	path := "/users/profile/" + url.PathEscape(userID)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		c.log.Debug("decode profile lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return &out
}

// MyProfile fetches the calling user's own profile. Tolerant like Profile.
func (c *Client) MyProfile(ctx context.Context, accessToken string) *domain.Profile {
	var out domain.Profile
	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	if err := c.call(ctx, http.MethodGet, "/users/profile/me", nil, headers, &out); err != nil {
		c.log.Debug("decode my-profile lookup failed", "error", err)
		return nil
	}
	return &out
}

// Followings lists the users the caller follows. Tolerant: empty on failure.
func (c *Client) Followings(ctx context.Context, accessToken string) []domain.Profile {
	var out []domain.Profile
	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	if err := c.call(ctx, http.MethodGet, "/relationship/follow/followings/me", nil, headers, &out); err != nil {
		c.log.Debug("decode followings lookup failed", "error", err)
		return nil
	}
	return out
}

func (c *Client) call(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeUnavailable, "identity service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperr.Unauthorized("identity service rejected the session")
	}
	if resp.StatusCode == http.StatusNotFound {
		return apperr.NotFound("identity service: not found")
	}
	if resp.StatusCode >= 500 {
		return apperr.Unavailable(fmt.Sprintf("identity service error: %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.CodeUnknown, fmt.Sprintf("identity service: unexpected status %s", resp.Status))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperr.Wrap(apperr.CodeUnavailable, "identity service: malformed response", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "identity service refused the request"
		}
		return apperr.Unauthorized(msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperr.Wrap(apperr.CodeUnavailable, "identity service: malformed payload", err)
		}
	}
	return nil
}
