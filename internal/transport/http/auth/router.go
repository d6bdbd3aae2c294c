// Package auth mounts the session and profile endpoints. Session data is
// owned by the Decode API; this service validates, caches, and echoes it.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"dehive/internal/cache"
	"dehive/internal/decode"
	"dehive/internal/domain"
	"dehive/internal/dto"
	"dehive/internal/httpx"
	apperr "dehive/pkg/errors"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	guard    *httpx.Guard
	sessions *cache.SessionCache
	profiles *cache.ProfileCache
	decode   *decode.Client
	log      *slog.Logger
}

func NewHandler(guard *httpx.Guard, sessions *cache.SessionCache, profiles *cache.ProfileCache, dc *decode.Client, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{guard: guard, sessions: sessions, profiles: profiles, decode: dc, log: log}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/auth/session/create", h.createSession)

	r.Group(func(pr chi.Router) {
		pr.Use(h.guard.Middleware)
		pr.Get("/auth/session/check", h.checkSession)
		pr.Get("/auth/profile", h.myProfile)
		pr.Get("/auth/profile/{id}", h.profileByID)
	})
}

// createSession is the one public endpoint: it exchanges a session id +
// fingerprint for a validated, cached session.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSessionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(httpx.HeaderSessionID))
	}
	fingerprint := strings.TrimSpace(r.Header.Get(httpx.HeaderFingerprint))

	sess, err := h.guard.Resolve(r.Context(), sessionID, fingerprint)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "session created", dto.SessionResponse{
		User:      sess.User,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *Handler) checkSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.Fail(w, r, apperr.Unauthorized("no session"))
		return
	}
	httpx.OK(w, http.StatusOK, "session valid", dto.SessionResponse{
		User:      sess.User,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *Handler) myProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := httpx.SessionFrom(r.Context())
	if p := h.decode.MyProfile(r.Context(), sess.AccessToken); p != nil {
		if err := h.profiles.Set(r.Context(), p); err != nil {
			h.log.Debug("profile cache write failed", "error", err)
		}
		httpx.OK(w, http.StatusOK, "profile", p)
		return
	}
	// Upstream hiccup: the session copy is still a usable answer.
	httpx.OK(w, http.StatusOK, "profile", sess.User)
}

func (h *Handler) profileByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		httpx.Fail(w, r, apperr.InvalidArg("invalid user id"))
		return
	}
	if p, err := h.profiles.Get(r.Context(), id); err == nil {
		httpx.OK(w, http.StatusOK, "profile", p)
		return
	}
	if p := h.decode.Profile(r.Context(), id); p != nil {
		if err := h.profiles.Set(r.Context(), p); err != nil {
			h.log.Debug("profile cache write failed", "user_id", id, "error", err)
		}
		httpx.OK(w, http.StatusOK, "profile", p)
		return
	}
	httpx.OK(w, http.StatusOK, "profile", domain.PlaceholderProfile(id))
}
