// Package calls mounts the channel-call HTTP surface and the RTC socket.
package calls

import (
	"log/slog"
	"net/http"
	"time"

	"dehive/internal/dto"
	"dehive/internal/gateway"
	"dehive/internal/httpx"
	callsvc "dehive/internal/service/calls"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Handler struct {
	guard *httpx.Guard
	svc   *callsvc.Service
	ws    *gateway.RTCGateway
	log   *slog.Logger
}

func NewHandler(guard *httpx.Guard, svc *callsvc.Service, ws *gateway.RTCGateway, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{guard: guard, svc: svc, ws: ws, log: log}
}

func (h *Handler) Mount(r chi.Router) {
	r.HandleFunc("/channel-rtc", h.ws.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(chimw.Timeout(30 * time.Second))
		pr.Use(h.guard.Middleware)
		pr.Post("/channel-calls/join", h.join)
		pr.Post("/channel-calls/leave", h.leave)
		pr.Get("/channel-calls/{channelID}/participants", h.participants)
	})
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req dto.JoinChannelRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	res, err := h.svc.Join(r.Context(), req.ChannelID, httpx.UserIDFrom(r.Context()))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "joined channel call", map[string]any{
		"call":        dto.NewCallView(res.Call),
		"participant": dto.NewParticipantView(res.Participant),
		"rejoined":    res.Rejoined,
	})
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	var req dto.LeaveChannelRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	res, err := h.svc.Leave(r.Context(), req.ChannelID, httpx.UserIDFrom(r.Context()))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "left channel call", map[string]any{
		"call":  dto.NewCallView(res.Call),
		"ended": res.Ended,
	})
}

func (h *Handler) participants(w http.ResponseWriter, r *http.Request) {
	call, parts, err := h.svc.Participants(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	views := make([]dto.ParticipantView, 0, len(parts))
	for i := range parts {
		views = append(views, dto.NewParticipantView(&parts[i]))
	}
	httpx.OK(w, http.StatusOK, "channel call participants", map[string]any{
		"call":         dto.NewCallView(call),
		"participants": views,
	})
}
