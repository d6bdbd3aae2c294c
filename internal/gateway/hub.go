// Package gateway carries the WebSocket surfaces: per-user rooms for direct
// messages and per-channel rooms for voice-call signaling. Connection state
// lives on the connection itself; the hub only maps room names to the
// connections currently in them.
package gateway

import (
	"sync"

	"dehive/internal/observability/metrics"
)

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// UserRoom is the personal room every identified DM socket joins.
func UserRoom(userID string) string { return "user:" + userID }

// ChannelRoom groups the sockets in one voice channel.
func ChannelRoom(channelID string) string { return "channel:" + channelID }

func (h *Hub) Join(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Leave(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) LeaveAll(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends an event frame to every connection in the room. Delivery
// is best-effort; failed writes are dropped (the HTTP listing path is the
// durability fallback).
func (h *Hub) Broadcast(room, event string, payload any) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(event, payload); err != nil {
			metrics.SocketEventsTotal.WithLabelValues(event, "send_failed").Inc()
		}
	}
}

// RoomSize reports the current membership of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
