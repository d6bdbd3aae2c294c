// Package membership mounts the server membership and invite HTTP surface.
package membership

import (
	"log/slog"
	"net/http"
	"time"

	"dehive/internal/dto"
	"dehive/internal/httpx"
	msvc "dehive/internal/service/membership"
	apperr "dehive/pkg/errors"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	guard *httpx.Guard
	svc   *msvc.Service
	log   *slog.Logger
}

func NewHandler(guard *httpx.Guard, svc *msvc.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{guard: guard, svc: svc, log: log}
}

func (h *Handler) Mount(r chi.Router) {
	r.Group(func(pr chi.Router) {
		pr.Use(h.guard.Middleware)
		pr.Post("/memberships/server", h.createServer)
		pr.Post("/memberships/join", h.join)
		pr.Post("/memberships/leave", h.leave)
		pr.Post("/memberships/kick", h.kick)
		pr.Post("/memberships/ban", h.ban)
		pr.Post("/memberships/unban", h.unban)
		pr.Post("/memberships/role", h.assignRole)
		pr.Post("/memberships/transfer-ownership", h.transferOwnership)
		pr.Patch("/memberships/notification", h.notification)
		pr.Post("/memberships/invite", h.createInvite)
		pr.Post("/memberships/invite/accept", h.acceptInvite)
		pr.Delete("/memberships/invite/{code}", h.revokeInvite)
		pr.Get("/memberships/server/{serverID}/members", h.serverMembers)
		pr.Get("/memberships/server/{serverID}/profile/{userID}", h.memberProfile)
	})
}

func (h *Handler) createServer(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateServerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.CreateServer(r.Context(), httpx.UserIDFrom(r.Context()), req.ServerID, req.Name); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "server created", nil)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req dto.JoinServerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.Join(r.Context(), httpx.UserIDFrom(r.Context()), req.ServerID); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "joined server", nil)
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	var req dto.LeaveServerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.Leave(r.Context(), httpx.UserIDFrom(r.Context()), req.ServerID); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "left server", nil)
}

func (h *Handler) kick(w http.ResponseWriter, r *http.Request) {
	var req dto.MemberActionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.Kick(r.Context(), httpx.UserIDFrom(r.Context()), req.TargetUserID, req.ServerID); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "member kicked", nil)
}

func (h *Handler) ban(w http.ResponseWriter, r *http.Request) {
	var req dto.MemberActionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.Ban(r.Context(), httpx.UserIDFrom(r.Context()), req.TargetUserID, req.ServerID); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "member banned", nil)
}

func (h *Handler) unban(w http.ResponseWriter, r *http.Request) {
	var req dto.MemberActionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.Unban(r.Context(), httpx.UserIDFrom(r.Context()), req.TargetUserID, req.ServerID); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "member unbanned", nil)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req dto.AssignRoleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.AssignRole(r.Context(), httpx.UserIDFrom(r.Context()), req.TargetUserID, req.ServerID, req.Role); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "role assigned", nil)
}

func (h *Handler) transferOwnership(w http.ResponseWriter, r *http.Request) {
	var req dto.MemberActionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.TransferOwnership(r.Context(), httpx.UserIDFrom(r.Context()), req.TargetUserID, req.ServerID); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "ownership transferred", nil)
}

func (h *Handler) notification(w http.ResponseWriter, r *http.Request) {
	var req dto.NotificationRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if err := h.svc.UpdateNotification(r.Context(), httpx.UserIDFrom(r.Context()), req.ServerID, req.Enabled); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "notification preference updated", nil)
}

func (h *Handler) createInvite(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateInviteRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	var ttl time.Duration
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			httpx.Fail(w, r, apperr.InvalidArg("invalid expires_in duration"))
			return
		}
		ttl = d
	}
	invite, err := h.svc.CreateInvite(r.Context(), httpx.UserIDFrom(r.Context()), req.ServerID, ttl)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "invite created", invite)
}

func (h *Handler) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var req dto.AcceptInviteRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	serverID, err := h.svc.AcceptInvite(r.Context(), httpx.UserIDFrom(r.Context()), req.Code)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "invite accepted", map[string]string{"server_id": serverID})
}

func (h *Handler) revokeInvite(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeInvite(r.Context(), httpx.UserIDFrom(r.Context()), chi.URLParam(r, "code")); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "invite revoked", nil)
}

func (h *Handler) serverMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ServerMembers(r.Context(), chi.URLParam(r, "serverID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "server members", members)
}

func (h *Handler) memberProfile(w http.ResponseWriter, r *http.Request) {
	member, err := h.svc.MemberProfile(r.Context(), chi.URLParam(r, "serverID"), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "member profile", member)
}
