package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"dehive/internal/cache"
	"dehive/internal/domain"
	"dehive/internal/observability/metrics"
	dmsvc "dehive/internal/service/dm"
	"dehive/internal/store"
	apperr "dehive/pkg/errors"

	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("gateway")
	os.Exit(m.Run())
}

// fakeKV is an in-memory cache.KV backing the status cache in tests.
type fakeKV struct {
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (m *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		m.data[key] = string(b)
	}
	return nil
}

func (m *fakeKV) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", cache.ErrMiss
}

func (m *fakeKV) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// stubDirectory knows a fixed set of user ids.
type stubDirectory struct {
	known map[string]bool
}

func (d *stubDirectory) Profile(_ context.Context, userID string) *domain.Profile {
	if d.known[userID] {
		return &domain.Profile{ID: userID, Username: userID}
	}
	return nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sendFrame(t *testing.T, c *websocket.Conn, raw string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, c *websocket.Conn) *inboundFrame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal frame %q: %v", raw, err)
	}
	return &f
}

func identify(t *testing.T, c *websocket.Conn, userID string) {
	t.Helper()
	sendFrame(t, c, `{"event":"identity","data":{"userId":"`+userID+`"}}`)
	if f := readFrame(t, c); f.Event != "identityConfirmed" {
		t.Fatalf("expected identityConfirmed, got %q (%s)", f.Event, f.Data)
	}
}

func setupDMGateway(t *testing.T, known ...string) (*dmsvc.Service, *httptest.Server) {
	t.Helper()
	st := openTestStore(t)
	svc := dmsvc.New(st, dmsvc.NewProfileResolver(nil, nil, nil), nil)
	dir := &stubDirectory{known: map[string]bool{}}
	for _, id := range known {
		dir.known[id] = true
	}
	g := NewDMGateway(NewHub(), svc, cache.NewStatusCache(newFakeKV(), time.Minute), dir,
		Options{EventsPerSec: 100, EventBurst: 100}, nil)
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWS))
	t.Cleanup(srv.Close)
	return svc, srv
}

func TestDMGatewayDeliversToBothParticipants(t *testing.T) {
	svc, srv := setupDMGateway(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateOrGet(ctx, "alice", "bob", false)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	aliceWS := dialWS(t, srv)
	bobWS := dialWS(t, srv)
	identify(t, aliceWS, "alice")
	identify(t, bobWS, "bob")

	sendFrame(t, aliceWS, `{"event":"sendMessage","data":{"conversationId":"`+conv.ID.String()+`","content":"hi"}}`)

	var msg struct {
		ConversationID string `json:"conversationId"`
		Content        string `json:"content"`
	}
	for _, c := range []*websocket.Conn{bobWS, aliceWS} {
		f := readFrame(t, c)
		if f.Event != "newMessage" {
			t.Fatalf("expected newMessage, got %q (%s)", f.Event, f.Data)
		}
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			t.Fatalf("unmarshal newMessage: %v", err)
		}
		if msg.Content != "hi" || msg.ConversationID != conv.ID.String() {
			t.Fatalf("unexpected message payload %+v", msg)
		}
		if f := readFrame(t, c); f.Event != "conversation_update" {
			t.Fatalf("expected conversation_update, got %q", f.Event)
		}
	}
}

func TestDMGatewayRejectsUnknownIdentity(t *testing.T) {
	_, srv := setupDMGateway(t, "alice")

	ws := dialWS(t, srv)
	sendFrame(t, ws, `{"event":"identity","data":{"userId":"mallory"}}`)

	f := readFrame(t, ws)
	if f.Event != "error" {
		t.Fatalf("expected error frame, got %q", f.Event)
	}
	var e struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(f.Data, &e); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if e.Code != string(apperr.CodeUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %q", e.Code)
	}

	// The socket stays unidentified, so mutations are still refused.
	sendFrame(t, ws, `{"event":"sendMessage","data":{"conversationId":"x","content":"hi"}}`)
	if f := readFrame(t, ws); f.Event != "error" {
		t.Fatalf("expected error for unidentified send, got %q", f.Event)
	}
}
