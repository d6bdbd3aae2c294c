package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"dehive/internal/cache"
	"dehive/internal/dto"
	"dehive/internal/observability/metrics"
	callsvc "dehive/internal/service/calls"
	apperr "dehive/pkg/errors"

	"github.com/gorilla/websocket"
)

// RTCGateway is the /channel-rtc namespace: join/leave bookkeeping for
// channel voice calls. No media negotiation happens here; clients exchange
// that out of band.
type RTCGateway struct {
	hub      *Hub
	svc      *callsvc.Service
	status   *cache.StatusCache
	users    UserDirectory
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewRTCGateway(hub *Hub, svc *callsvc.Service, status *cache.StatusCache, users UserDirectory, opts Options, log *slog.Logger) *RTCGateway {
	if log == nil {
		log = slog.Default()
	}
	return &RTCGateway{
		hub:    hub,
		svc:    svc,
		status: status,
		users:  users,
		opts:   opts,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (g *RTCGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
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

func (g *RTCGateway) dispatch(ctx context.Context, conn *Conn, raw []byte) {
	frame, err := parseFrame(raw)
	if err != nil {
		conn.SendError(string(apperr.CodeOf(err)), apperr.MessageOf(err))
		return
	}

	var handlerErr error
	switch frame.Event {
	case "identity":
		handlerErr = g.onIdentity(ctx, conn, frame)
	case "joinChannel":
		handlerErr = g.onJoin(ctx, conn, frame)
	case "leaveChannel":
		handlerErr = g.onLeave(ctx, conn, frame)
	case "ping":
		handlerErr = conn.Send("pong", nil)
	default:
		handlerErr = apperr.InvalidArg("unknown event: " + frame.Event)
	}

	result := "ok"
	if handlerErr != nil {
		result = "error"
		conn.SendError(string(apperr.CodeOf(handlerErr)), apperr.MessageOf(handlerErr))
	}
	metrics.SocketEventsTotal.WithLabelValues(frame.Event, result).Inc()

	// Renew the TTL'd presence key on any traffic, pings included.
	if conn.Identified() {
		if err := g.status.SetOnline(ctx, conn.userID); err != nil {
			g.log.Debug("status refresh failed", "user_id", conn.userID, "error", err)
		}
	}
}

func (g *RTCGateway) onIdentity(ctx context.Context, conn *Conn, frame *inboundFrame) error {
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
	if g.users.Profile(ctx, userID) == nil {
		return apperr.Unauthorized("unknown user")
	}
	conn.userID = userID
	if err := g.status.SetOnline(ctx, userID); err != nil {
		g.log.Debug("status cache write failed", "user_id", userID, "error", err)
	}
	return conn.Send("identityConfirmed", map[string]string{"userId": userID})
}

func (g *RTCGateway) onJoin(ctx context.Context, conn *Conn, frame *inboundFrame) error {
	if !conn.Identified() {
		return apperr.Unauthorized("identify first")
	}
	var p channelPayload
	if err := decodePayload(frame, &p); err != nil {
		return err
	}
	// One socket holds at most one channel. Switching channels must release
	// the old participant row first, or its call would stay connected with
	// a member no socket will ever remove.
	if conn.channelID != "" && conn.channelID != p.ChannelID {
		if err := g.leaveChannel(ctx, conn, conn.channelID); err != nil {
			g.log.Debug("implicit leave on channel switch failed",
				"user_id", conn.userID, "channel_id", conn.channelID, "error", err)
		}
	}
	res, err := g.svc.Join(ctx, p.ChannelID, conn.userID)
	if err != nil {
		return err
	}
	room := ChannelRoom(p.ChannelID)
	g.hub.Join(room, conn)
	conn.channelID = p.ChannelID

	callView := dto.NewCallView(res.Call)
	if err := conn.Send("channelJoined", map[string]any{"call": callView}); err != nil {
		return err
	}
	if !res.Rejoined {
		g.hub.Broadcast(room, "userJoinedChannel", map[string]any{
			"channelId": p.ChannelID,
			"userId":    conn.userID,
			"call":      callView,
		})
	}
	return nil
}

func (g *RTCGateway) onLeave(ctx context.Context, conn *Conn, frame *inboundFrame) error {
	if !conn.Identified() {
		return apperr.Unauthorized("identify first")
	}
	var p channelPayload
	if err := decodePayload(frame, &p); err != nil {
		return err
	}
	return g.leaveChannel(ctx, conn, p.ChannelID)
}

func (g *RTCGateway) leaveChannel(ctx context.Context, conn *Conn, channelID string) error {
	res, err := g.svc.Leave(ctx, channelID, conn.userID)
	room := ChannelRoom(channelID)
	g.hub.Leave(room, conn)
	if conn.channelID == channelID {
		conn.channelID = ""
	}
	if err != nil {
		return err
	}
	g.hub.Broadcast(room, "userLeftChannel", map[string]any{
		"channelId": channelID,
		"userId":    conn.userID,
		"call":      dto.NewCallView(res.Call),
		"ended":     res.Ended,
	})
	return nil
}

// disconnect implies leaving any joined channel; the participant row must
// not outlive the socket.
func (g *RTCGateway) disconnect(ctx context.Context, conn *Conn) {
	if conn.Identified() && conn.channelID != "" {
		if err := g.leaveChannel(ctx, conn, conn.channelID); err != nil {
			g.log.Debug("disconnect leave failed", "user_id", conn.userID, "channel_id", conn.channelID, "error", err)
		}
	}
	g.hub.LeaveAll(conn)
	if conn.Identified() {
		if err := g.status.SetOffline(ctx, conn.userID); err != nil {
			g.log.Debug("status cache clear failed", "user_id", conn.userID, "error", err)
		}
	}
	_ = conn.Close()
}
