// Package dm mounts the direct-messaging HTTP surface: conversations,
// messages, uploads, followings, and the WebSocket endpoint.
package dm

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dehive/internal/decode"
	"dehive/internal/domain"
	"dehive/internal/dto"
	"dehive/internal/gateway"
	"dehive/internal/httpx"
	"dehive/internal/observability/metrics"
	dmsvc "dehive/internal/service/dm"
	uploadsvc "dehive/internal/service/upload"
	apperr "dehive/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// maxMultipartMemory bounds the in-memory part of multipart parsing; the
// rest spills to temp files.
const maxMultipartMemory = 32 << 20

type Handler struct {
	guard   *httpx.Guard
	svc     *dmsvc.Service
	uploads *uploadsvc.Service
	ws      *gateway.DMGateway
	decode  *decode.Client
	dir     string
	log     *slog.Logger
}

func NewHandler(guard *httpx.Guard, svc *dmsvc.Service, uploads *uploadsvc.Service, ws *gateway.DMGateway, dc *decode.Client, uploadDir string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{guard: guard, svc: svc, uploads: uploads, ws: ws, decode: dc, dir: uploadDir, log: log}
}

func (h *Handler) Mount(r chi.Router) {
	// The socket identifies in-band; static uploads are public by URL.
	r.HandleFunc("/ws", h.ws.HandleWS)
	r.Handle("/uploads/*", httpx.LogRequests(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.dir)))))

	r.Group(func(pr chi.Router) {
		pr.Use(chimw.Timeout(30 * time.Second))
		pr.Use(h.guard.Middleware)
		pr.Post("/dm/conversation", h.createConversation)
		pr.Get("/dm/conversation", h.listConversations)
		pr.Post("/dm/send", h.sendMessage)
		pr.Get("/dm/messages/{id}", h.listMessages)
		pr.Patch("/dm/messages/{id}", h.editMessage)
		pr.Delete("/dm/messages/{id}", h.deleteMessage)
		pr.Post("/dm/files/upload", h.uploadFile)
		pr.Get("/dm/files/list", h.listFiles)
		pr.Get("/dm/following", h.following)
	})
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateConversationRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	conv, err := h.svc.CreateOrGet(r.Context(), httpx.UserIDFrom(r.Context()), req.OtherUserID, req.IsEncrypted)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "conversation", conv)
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	out, err := h.svc.ListConversations(r.Context(), httpx.UserIDFrom(r.Context()), page, limit)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "conversations", out)
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req dto.SendMessageRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	view, conv, err := h.svc.Send(r.Context(), httpx.UserIDFrom(r.Context()), dmsvc.SendInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		UploadIDs:      req.UploadIDs,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		metrics.MessagesSentTotal.WithLabelValues("http", "error").Inc()
		httpx.Fail(w, r, err)
		return
	}
	metrics.MessagesSentTotal.WithLabelValues("http", "ok").Inc()
	h.ws.NotifyPair(conv, "newMessage", view)
	h.ws.NotifyPair(conv, "conversation_update", map[string]any{"conversationId": view.ConversationID, "lastMessage": view})
	httpx.OK(w, http.StatusCreated, "message sent", view)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	out, err := h.svc.List(r.Context(), httpx.UserIDFrom(r.Context()), chi.URLParam(r, "id"), page, limit)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "messages", out)
}

func (h *Handler) editMessage(w http.ResponseWriter, r *http.Request) {
	var req dto.EditMessageRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Fail(w, r, err)
		return
	}
	view, conv, err := h.svc.Edit(r.Context(), httpx.UserIDFrom(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	h.ws.NotifyPair(conv, "messageEdited", view)
	httpx.OK(w, http.StatusOK, "message edited", view)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	view, conv, err := h.svc.Delete(r.Context(), httpx.UserIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	h.ws.NotifyPair(conv, "messageDeleted", view)
	httpx.OK(w, http.StatusOK, "message deleted", view)
}

func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httpx.Fail(w, r, apperr.Wrap(apperr.CodeInvalidArgument, "malformed multipart body", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Fail(w, r, apperr.InvalidArg("missing file field"))
		return
	}
	defer func() { _ = file.Close() }()

	up, err := h.uploads.Store(r.Context(), httpx.UserIDFrom(r.Context()), uploadsvc.StoreInput{
		ConversationID: r.FormValue("conversationId"),
		Filename:       header.Filename,
		Size:           header.Size,
		File:           file,
	})
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "file uploaded", dto.NewUploadView(up))
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	uploads, err := h.uploads.List(r.Context(), httpx.UserIDFrom(r.Context()), r.URL.Query().Get("conversationId"), page, limit)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	out := make([]dto.UploadView, 0, len(uploads))
	for i := range uploads {
		out = append(out, dto.NewUploadView(&uploads[i]))
	}
	httpx.OK(w, http.StatusOK, "files", out)
}

// following proxies the caller's follow list from Decode; upstream trouble
// degrades to an empty list rather than an error.
func (h *Handler) following(w http.ResponseWriter, r *http.Request) {
	sess, ok := httpx.SessionFrom(r.Context())
	if !ok {
		httpx.Fail(w, r, apperr.Unauthorized("session required"))
		return
	}
	if strings.TrimSpace(sess.AccessToken) == "" {
		h.log.Debug("following requested with empty access token")
	}
	list := h.decode.Followings(r.Context(), sess.AccessToken)
	if list == nil {
		list = []domain.Profile{}
	}
	httpx.OK(w, http.StatusOK, "following", list)
}
