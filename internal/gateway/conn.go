package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	maxFrameBytes = 64 << 10
	writeTimeout  = 10 * time.Second
)

// Conn wraps one WebSocket connection. All connection-scoped state (the
// identified user, the joined channel) lives here, owned by the reader
// goroutine; writes are serialized through mu because gorilla connections
// do not allow concurrent writers.
type Conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	limiter *rate.Limiter

	// set by the reader goroutine after a successful identity event
	userID string
	// rtc only: the channel this socket joined, for disconnect cleanup
	channelID string
}

func newConn(ws *websocket.Conn, eventsPerSec float64, burst int) *Conn {
	ws.SetReadLimit(maxFrameBytes)
	if eventsPerSec <= 0 {
		eventsPerSec = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &Conn{ws: ws, limiter: rate.NewLimiter(rate.Limit(eventsPerSec), burst)}
}

func (c *Conn) Identified() bool { return c.userID != "" }

// Send writes one event frame.
func (c *Conn) Send(event string, payload any) error {
	frame := outboundFrame{Event: event, Data: payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// SendError emits a structured error frame instead of closing the socket.
func (c *Conn) SendError(code, message string) {
	_ = c.Send("error", map[string]string{"code": code, "message": message})
}

func (c *Conn) Close() error { return c.ws.Close() }
