package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dehive/internal/cache"
	"dehive/internal/domain"
	"dehive/internal/observability/metrics"
	apperr "dehive/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderSessionID   = "x-session-id"
	HeaderFingerprint = "x-fingerprint-hashed"
)

type ctxKey string

const ctxKeySession ctxKey = "session"

// SessionValidator revalidates a session against the identity service.
// Implemented by *decode.Client.
type SessionValidator interface {
	ValidateSSO(ctx context.Context, sessionID, fingerprint string) (*domain.Session, error)
	RefreshSession(ctx context.Context, sessionToken, fingerprint string) (*domain.Session, error)
	InfoByAccessToken(ctx context.Context, accessToken string) (*domain.Profile, error)
}

// Guard authenticates requests from the x-session-id and
// x-fingerprint-hashed headers: cached session first, upstream revalidation
// on miss, with a single refresh attempt when the access token has expired.
type Guard struct {
	Sessions           *cache.SessionCache
	Validator          SessionValidator
	RequireFingerprint bool
	Log                *slog.Logger
	now                func() time.Time
}

func NewGuard(sessions *cache.SessionCache, validator SessionValidator, requireFingerprint bool, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		Sessions:           sessions,
		Validator:          validator,
		RequireFingerprint: requireFingerprint,
		Log:                log,
		now:                time.Now,
	}
}

// SessionFrom returns the authenticated session placed by the guard.
func SessionFrom(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(ctxKeySession).(*domain.Session)
	return s, ok
}

// UserIDFrom is a convenience accessor for the authenticated user id.
func UserIDFrom(ctx context.Context) string {
	if s, ok := SessionFrom(ctx); ok {
		return s.User.ID
	}
	return ""
}

func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.Resolve(r.Context(), r.Header.Get(HeaderSessionID), r.Header.Get(HeaderFingerprint))
		if err != nil {
			Fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeySession, sess)))
	})
}

// Resolve turns a session id + fingerprint pair into an authenticated
// session. Shared by the HTTP middleware and the session-create endpoint.
func (g *Guard) Resolve(ctx context.Context, sessionID, fingerprint string) (*domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	fingerprint = strings.TrimSpace(fingerprint)
	if sessionID == "" {
		return nil, apperr.Unauthorized("missing session")
	}
	if g.RequireFingerprint && fingerprint == "" {
		return nil, apperr.Unauthorized("missing device fingerprint")
	}

	if cached, err := g.Sessions.Get(ctx, sessionID, fingerprint); err == nil {
		if !accessTokenExpired(cached.AccessToken, g.now()) {
			metrics.SessionCacheLookupsTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.SessionCacheLookupsTotal.WithLabelValues("expired").Inc()
		// Expired access token: one refresh attempt, then give up.
		refreshed, err := g.Validator.RefreshSession(ctx, cached.SessionToken, fingerprint)
		if err != nil {
			_ = g.Sessions.Delete(ctx, sessionID, fingerprint)
			return nil, apperr.Unauthorized("session expired")
		}
		// Some refresh responses carry tokens only; the user is then
		// recovered from the fresh access token.
		if refreshed.User.ID == "" {
			if p, err := g.Validator.InfoByAccessToken(ctx, refreshed.AccessToken); err == nil && p != nil {
				refreshed.User = *p
			}
		}
		if err := g.Sessions.Set(ctx, sessionID, fingerprint, refreshed); err != nil {
			g.Log.Warn("session recache failed", "error", err)
		}
		return refreshed, nil
	} else if errors.Is(err, cache.ErrMiss) {
		metrics.SessionCacheLookupsTotal.WithLabelValues("miss").Inc()
	} else {
		// Cache trouble is not an auth failure; fall through to upstream.
		metrics.SessionCacheLookupsTotal.WithLabelValues("error").Inc()
		g.Log.Warn("session cache read failed", "error", err)
	}

	sess, err := g.Validator.ValidateSSO(ctx, sessionID, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := g.Sessions.Set(ctx, sessionID, fingerprint, sess); err != nil {
		g.Log.Warn("session cache write failed", "error", err)
	}
	return sess, nil
}

// accessTokenExpired reads the exp claim without verifying the signature;
// Decode owns the signature, this side only needs the expiry.
func accessTokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
