package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dehive/internal/cache"
	callsvc "dehive/internal/service/calls"
	apperr "dehive/pkg/errors"

	"github.com/gorilla/websocket"
)

func setupRTCGateway(t *testing.T, known ...string) (*callsvc.Service, *httptest.Server) {
	t.Helper()
	st := openTestStore(t)
	svc := callsvc.New(st, nil)
	dir := &stubDirectory{known: map[string]bool{}}
	for _, id := range known {
		dir.known[id] = true
	}
	g := NewRTCGateway(NewHub(), svc, cache.NewStatusCache(newFakeKV(), time.Minute), dir,
		Options{EventsPerSec: 100, EventBurst: 100}, nil)
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWS))
	t.Cleanup(srv.Close)
	return svc, srv
}

func readUntil(t *testing.T, c *websocket.Conn, event string) *inboundFrame {
	t.Helper()
	for i := 0; i < 10; i++ {
		f := readFrame(t, c)
		if f.Event == event {
			return f
		}
	}
	t.Fatalf("never received %q", event)
	return nil
}

// waitNoActiveCall polls until the channel's call has ended; disconnect
// cleanup runs on the server goroutine after the socket closes.
func waitNoActiveCall(t *testing.T, svc *callsvc.Service, channelID string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, _, err := svc.Participants(context.Background(), channelID)
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("call in %s still active: %v", channelID, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRTCGatewaySwitchingChannelsLeavesTheOldOne(t *testing.T) {
	svc, srv := setupRTCGateway(t, "alice")
	ctx := context.Background()

	ws := dialWS(t, srv)
	identify(t, ws, "alice")

	sendFrame(t, ws, `{"event":"joinChannel","data":{"channelId":"chan-a"}}`)
	readUntil(t, ws, "channelJoined")

	sendFrame(t, ws, `{"event":"joinChannel","data":{"channelId":"chan-b"}}`)
	readUntil(t, ws, "channelJoined")

	// chan-a lost its only member when the socket moved to chan-b.
	if _, _, err := svc.Participants(ctx, "chan-a"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected chan-a call ended, got %v", err)
	}
	_, participants, err := svc.Participants(ctx, "chan-b")
	if err != nil {
		t.Fatalf("chan-b participants: %v", err)
	}
	if len(participants) != 1 || participants[0].UserID != "alice" {
		t.Fatalf("expected alice alone in chan-b, got %+v", participants)
	}
}

func TestRTCGatewayDisconnectLeavesJoinedChannel(t *testing.T) {
	svc, srv := setupRTCGateway(t, "alice")

	ws := dialWS(t, srv)
	identify(t, ws, "alice")

	sendFrame(t, ws, `{"event":"joinChannel","data":{"channelId":"chan-a"}}`)
	readUntil(t, ws, "channelJoined")

	_ = ws.Close()
	waitNoActiveCall(t, svc, "chan-a")
}

func TestRTCGatewayRejectsUnknownIdentity(t *testing.T) {
	_, srv := setupRTCGateway(t, "alice")

	ws := dialWS(t, srv)
	sendFrame(t, ws, `{"event":"identity","data":{"userId":"ghost"}}`)
	if f := readFrame(t, ws); f.Event != "error" {
		t.Fatalf("expected error frame, got %q", f.Event)
	}
	sendFrame(t, ws, `{"event":"joinChannel","data":{"channelId":"chan-a"}}`)
	if f := readFrame(t, ws); f.Event != "error" {
		t.Fatalf("expected error for unidentified join, got %q", f.Event)
	}
}
