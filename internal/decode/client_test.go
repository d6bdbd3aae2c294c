package decode_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dehive/internal/decode"
	"dehive/internal/domain"
	apperr "dehive/pkg/errors"
)

func newServer(t *testing.T, handler http.HandlerFunc) *decode.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return decode.NewClient(srv.URL, 5*time.Second, nil)
}

func writeEnvelope(w http.ResponseWriter, success bool, data any, message string) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"data":    json.RawMessage(raw),
		"message": message,
	})
}

func TestValidateSSO(t *testing.T) {
	var gotPath, gotSessionHeader string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSessionHeader = r.Header.Get("x-session-id")
		writeEnvelope(w, true, map[string]any{
			"session_token": "st",
			"access_token":  "at",
			"user":          map[string]string{"id": "u1", "username": "alice"},
			"expires_at":    time.Now().Add(time.Hour).Format(time.RFC3339),
		}, "")
	})

	sess, err := c.ValidateSSO(context.Background(), "sid", "fp")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotPath != "/auth/sso/validate" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotSessionHeader != "sid" {
		t.Fatalf("session id header not forwarded, got %q", gotSessionHeader)
	}
	if sess.User.ID != "u1" || sess.AccessToken != "at" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestValidateSSORejection(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := c.ValidateSSO(context.Background(), "sid", "fp"); apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Fatalf("401 upstream: expected unauthenticated, got %v", err)
	}

	c = newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, false, nil, "session revoked")
	})
	_, err := c.ValidateSSO(context.Background(), "sid", "fp")
	if apperr.CodeOf(err) != apperr.CodeUnauthenticated || apperr.MessageOf(err) != "session revoked" {
		t.Fatalf("refused envelope: expected upstream message, got %v", err)
	}
}

func TestValidateSSOUpstreamDown(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := c.ValidateSSO(context.Background(), "sid", "fp"); apperr.CodeOf(err) != apperr.CodeUnavailable {
		t.Fatalf("5xx upstream: expected unavailable, got %v", err)
	}

	dead := decode.NewClient("http://127.0.0.1:1", time.Second, nil)
	if _, err := dead.ValidateSSO(context.Background(), "sid", "fp"); apperr.CodeOf(err) != apperr.CodeUnavailable {
		t.Fatalf("unreachable upstream: expected unavailable, got %v", err)
	}
}

func TestProfileIsTolerant(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/profile/u1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeEnvelope(w, true, domain.Profile{ID: "u1", Username: "alice"}, "")
	})

	if p := c.Profile(context.Background(), "u1"); p == nil || p.Username != "alice" {
		t.Fatalf("expected alice, got %+v", p)
	}
	if p := c.Profile(context.Background(), "missing"); p != nil {
		t.Fatalf("missing profile must degrade to nil, got %+v", p)
	}
}

func TestFollowingsForwardsBearer(t *testing.T) {
	var gotAuth string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, true, []domain.Profile{{ID: "u2"}, {ID: "u3"}}, "")
	})

	list := c.Followings(context.Background(), "tok")
	if gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 followings, got %d", len(list))
	}

	down := decode.NewClient("http://127.0.0.1:1", time.Second, nil)
	if list := down.Followings(context.Background(), "tok"); list != nil {
		t.Fatalf("failure must degrade to nil, got %v", list)
	}
}

func TestRefreshSession(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh-session" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["session_token"] != "st" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeEnvelope(w, true, map[string]any{
			"session_token": "st2",
			"access_token":  "at2",
			"user":          map[string]string{"id": "u1"},
			"expires_at":    time.Now().Add(time.Hour).Format(time.RFC3339),
		}, "")
	})

	sess, err := c.RefreshSession(context.Background(), "st", "fp")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if sess.SessionToken != "st2" || sess.AccessToken != "at2" {
		t.Fatalf("unexpected refreshed session %+v", sess)
	}

	if _, err := c.RefreshSession(context.Background(), "wrong", "fp"); apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Fatalf("bad token: expected unauthenticated, got %v", err)
	}
}
