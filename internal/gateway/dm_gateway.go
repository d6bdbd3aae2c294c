package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"dehive/internal/cache"
	"dehive/internal/domain"
	"dehive/internal/observability/metrics"
	dmsvc "dehive/internal/service/dm"
	apperr "dehive/pkg/errors"

	"github.com/gorilla/websocket"
)

type Options struct {
	EventsPerSec float64
	EventBurst   int
}

// UserDirectory answers whether a user id is known to the identity service.
// Implemented by *decode.Client; nil means unknown.
type UserDirectory interface {
	Profile(ctx context.Context, userID string) *domain.Profile
}

// DMGateway is the direct-message WebSocket endpoint. It re-validates every
// payload server-side (the transport bypasses HTTP middleware), calls the
// same service the HTTP controllers use, and rebroadcasts the canonical
// saved document to both participants' personal rooms.
type DMGateway struct {
	hub      *Hub
	svc      *dmsvc.Service
	status   *cache.StatusCache
	users    UserDirectory
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewDMGateway(hub *Hub, svc *dmsvc.Service, status *cache.StatusCache, users UserDirectory, opts Options, log *slog.Logger) *DMGateway {
	if log == nil {
		log = slog.Default()
	}
	return &DMGateway{
		hub:    hub,
		svc:    svc,
		status: status,
		users:  users,
		opts:   opts,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (g *DMGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("ws upgrade failed", "error", err)
		return
	}
	conn := newConn(ws, g.opts.EventsPerSec, g.opts.EventBurst)
	metrics.SocketConnections.WithLabelValues().Inc()
	defer func() {
		g.disconnect(r.Context(), conn)
		metrics.SocketConnections.WithLabelValues().Dec()
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if !conn.limiter.Allow() {
			conn.SendError(string(apperr.CodeInvalidArgument), "too many events")
			continue
		}
		g.dispatch(r.Context(), conn, raw)
	}
}

func (g *DMGateway) dispatch(ctx context.Context, conn *Conn, raw []byte) {
	frame, err := parseFrame(raw)
	if err != nil {
		conn.SendError(string(apperr.CodeOf(err)), apperr.MessageOf(err))
		return
	}

	var handlerErr error
	switch frame.Event {
	case "identity":
		handlerErr = g.onIdentity(ctx, conn, frame)
	case "sendMessage":
		handlerErr = g.onSendMessage(ctx, conn, frame)
	case "editMessage":
		handlerErr = g.onEditMessage(ctx, conn, frame)
	case "deleteMessage":
		handlerErr = g.onDeleteMessage(ctx, conn, frame)
	default:
		handlerErr = apperr.InvalidArg("unknown event: " + frame.Event)
	}

	result := "ok"
	if handlerErr != nil {
		result = "error"
		conn.SendError(string(apperr.CodeOf(handlerErr)), apperr.MessageOf(handlerErr))
	}
	metrics.SocketEventsTotal.WithLabelValues(frame.Event, result).Inc()

	// Presence keys carry a TTL; any inbound traffic renews them so an idle
	// but connected socket stays online and a dead one ages out.
	if conn.Identified() {
		if err := g.status.SetOnline(ctx, conn.userID); err != nil {
			g.log.Debug("status refresh failed", "user_id", conn.userID, "error", err)
		}
	}
}

func (g *DMGateway) onIdentity(ctx context.Context, conn *Conn, frame *inboundFrame) error {
	var p identityPayload
	if err := decodePayload(frame, &p); err != nil {
		return err
	}
	userID := strings.TrimSpace(p.UserID)
	if userID == "" || len(userID) > 64 {
		return apperr.InvalidArg("invalid user id")
	}
	if conn.Identified() {
		return apperr.InvalidArg("already identified")
	}
	// Identity is a claim until the directory confirms the user exists;
	// without this anyone could join another user's room by guessing ids.
	if g.users.Profile(ctx, userID) == nil {
		return apperr.Unauthorized("unknown user")
	}
	conn.userID = userID
	g.hub.Join(UserRoom(userID), conn)
	if err := g.status.SetOnline(ctx, userID); err != nil {
		g.log.Debug("status cache write failed", "user_id", userID, "error", err)
	}
	return conn.Send("identityConfirmed", map[string]string{"userId": userID})
}

// requireIdentity rejects message-mutating events on unidentified sockets.
func (g *DMGateway) requireIdentity(conn *Conn) error {
	if !conn.Identified() {
		return apperr.Unauthorized("identify first")
	}
	return nil
}

func (g *DMGateway) onSendMessage(ctx context.Context, conn *Conn, frame *inboundFrame) error {
	if err := g.requireIdentity(conn); err != nil {
		return err
	}
	var p sendMessagePayload
	if err := decodePayload(frame, &p); err != nil {
		return err
	}
	// Defense in depth: the socket path never went through the HTTP DTO
	// validation, so bounds are re-checked before touching the store.
	if utf8.RuneCountInString(p.Content) > domain.MaxMessageContentLen {
		return apperr.InvalidArg("message content too long")
	}

	view, conv, err := g.svc.Send(ctx, conn.userID, dmsvc.SendInput{
		ConversationID: p.ConversationID,
		Content:        p.Content,
		UploadIDs:      p.UploadIDs,
		ReplyTo:        p.ReplyTo,
	})
	if err != nil {
		metrics.MessagesSentTotal.WithLabelValues("ws", "error").Inc()
		return err
	}
	metrics.MessagesSentTotal.WithLabelValues("ws", "ok").Inc()

	g.broadcastToPair(conv, "newMessage", view)
	update := map[string]any{"conversationId": view.ConversationID, "lastMessage": view}
	g.broadcastToPair(conv, "conversation_update", update)
	return nil
}

func (g *DMGateway) onEditMessage(ctx context.Context, conn *Conn, frame *inboundFrame) error {
	if err := g.requireIdentity(conn); err != nil {
		return err
	}
	var p editMessagePayload
	if err := decodePayload(frame, &p); err != nil {
		return err
	}
	if utf8.RuneCountInString(p.Content) > domain.MaxMessageContentLen {
		return apperr.InvalidArg("message content too long")
	}
	view, conv, err := g.svc.Edit(ctx, conn.userID, p.MessageID, p.Content)
	if err != nil {
		return err
	}
	g.broadcastToPair(conv, "messageEdited", view)
	return nil
}

func (g *DMGateway) onDeleteMessage(ctx context.Context, conn *Conn, frame *inboundFrame) error {
	if err := g.requireIdentity(conn); err != nil {
		return err
	}
	var p deleteMessagePayload
	if err := decodePayload(frame, &p); err != nil {
		return err
	}
	view, conv, err := g.svc.Delete(ctx, conn.userID, p.MessageID)
	if err != nil {
		return err
	}
	g.broadcastToPair(conv, "messageDeleted", view)
	return nil
}

// NotifyPair lets the HTTP controllers push the same events the socket
// handlers emit, so REST-originated mutations still reach connected peers.
func (g *DMGateway) NotifyPair(conv *domain.Conversation, event string, payload any) {
	if conv == nil {
		return
	}
	g.broadcastToPair(conv, event, payload)
}

// broadcastToPair emits to both participants' personal rooms, so sender and
// recipient both see the canonical saved form rather than a local echo.
func (g *DMGateway) broadcastToPair(conv *domain.Conversation, event string, payload any) {
	g.hub.Broadcast(UserRoom(conv.UserA), event, payload)
	g.hub.Broadcast(UserRoom(conv.UserB), event, payload)
}

func (g *DMGateway) disconnect(ctx context.Context, conn *Conn) {
	g.hub.LeaveAll(conn)
	if conn.Identified() {
		if err := g.status.SetOffline(ctx, conn.userID); err != nil {
			g.log.Debug("status cache clear failed", "user_id", conn.userID, "error", err)
		}
		g.log.Debug("socket disconnected", "user_id", conn.userID)
	}
	_ = conn.Close()
}
