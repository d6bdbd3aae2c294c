package gateway

import (
	"testing"

	apperr "dehive/pkg/errors"
)

func TestParseFrame(t *testing.T) {
	f, err := parseFrame([]byte(`{"event":"sendMessage","data":{"conversationId":"c1","content":"hi"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Event != "sendMessage" {
		t.Fatalf("unexpected event %q", f.Event)
	}

	var p sendMessagePayload
	if err := decodePayload(f, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.ConversationID != "c1" || p.Content != "hi" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestParseFrameRejectsStringPayload(t *testing.T) {
	// A double-encoded payload is a client bug, not something to repair.
	_, err := parseFrame([]byte(`{"event":"sendMessage","data":"{\"content\":\"hi\"}"}`))
	if apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":      `hello`,
		"missing event": `{"data":{}}`,
		"empty object":  `{}`,
	}
	for name, raw := range cases {
		if _, err := parseFrame([]byte(raw)); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
			t.Errorf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestDecodePayloadRequiresData(t *testing.T) {
	f := &inboundFrame{Event: "identity"}
	var p identityPayload
	if err := decodePayload(f, &p); apperr.CodeOf(err) != apperr.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for missing payload, got %v", err)
	}
}

func TestHubRoomBookkeeping(t *testing.T) {
	hub := NewHub()
	a := &Conn{}
	b := &Conn{}

	hub.Join(UserRoom("u1"), a)
	hub.Join(UserRoom("u1"), b)
	hub.Join(ChannelRoom("c1"), a)

	if n := hub.RoomSize(UserRoom("u1")); n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}

	hub.Leave(UserRoom("u1"), b)
	if n := hub.RoomSize(UserRoom("u1")); n != 1 {
		t.Fatalf("expected 1 member after leave, got %d", n)
	}

	hub.LeaveAll(a)
	if n := hub.RoomSize(UserRoom("u1")); n != 0 {
		t.Fatalf("expected empty user room, got %d", n)
	}
	if n := hub.RoomSize(ChannelRoom("c1")); n != 0 {
		t.Fatalf("expected empty channel room, got %d", n)
	}
}
