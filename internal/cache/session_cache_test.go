package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dehive/internal/cache"
	"dehive/internal/domain"
	"dehive/internal/dto"
)

type memKV struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
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
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", cache.ErrMiss
}

func (m *memKV) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestSessionCacheRoundTrip(t *testing.T) {
	kv := newMemKV()
	sc := cache.NewSessionCache(kv)
	ctx := context.Background()

	sess := &domain.Session{
		SessionToken: "st",
		AccessToken:  "at",
		User:         domain.Profile{ID: "u1"},
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := sc.Set(ctx, "sid", "fp", sess); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := sc.Get(ctx, "sid", "fp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.User.ID != "u1" || got.AccessToken != "at" {
		t.Fatalf("unexpected session %+v", got)
	}

	// A different fingerprint derives a different key.
	if _, err := sc.Get(ctx, "sid", "other-fp"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss for a different fingerprint, got %v", err)
	}

	// TTL is derived from the session expiry.
	for k, ttl := range kv.ttls {
		if ttl <= 0 || ttl > time.Hour {
			t.Fatalf("unexpected ttl %v for %s", ttl, k)
		}
	}

	if err := sc.Delete(ctx, "sid", "fp"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := sc.Get(ctx, "sid", "fp"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestSessionCacheSkipsExpired(t *testing.T) {
	kv := newMemKV()
	sc := cache.NewSessionCache(kv)
	ctx := context.Background()

	expired := &domain.Session{SessionToken: "st", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := sc.Set(ctx, "sid", "fp", expired); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(kv.data) != 0 {
		t.Fatalf("expired sessions must not be cached")
	}
	if _, err := sc.Get(ctx, "sid", "fp"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestProfileCacheRoundTrip(t *testing.T) {
	kv := newMemKV()
	pc := cache.NewProfileCache(kv, 10*time.Minute)
	ctx := context.Background()

	if _, err := pc.Get(ctx, "u1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	p := &domain.Profile{ID: "u1", Username: "alice"}
	if err := pc.Set(ctx, p); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := pc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected profile %+v", got)
	}
}

func TestStatusCacheKeysAlwaysExpire(t *testing.T) {
	kv := newMemKV()
	ctx := context.Background()

	// A zero TTL would leave crashed gateways' users online forever, so the
	// cache substitutes a finite default.
	sc := cache.NewStatusCache(kv, 0)
	if err := sc.SetOnline(ctx, "u1"); err != nil {
		t.Fatalf("set online: %v", err)
	}
	if ttl := kv.ttls["user:status:u1"]; ttl <= 0 {
		t.Fatalf("expected a finite presence ttl, got %v", ttl)
	}

	sc = cache.NewStatusCache(kv, 90*time.Second)
	if err := sc.SetOnline(ctx, "u2"); err != nil {
		t.Fatalf("set online: %v", err)
	}
	if ttl := kv.ttls["user:status:u2"]; ttl != 90*time.Second {
		t.Fatalf("expected the configured ttl, got %v", ttl)
	}

	if err := sc.SetOffline(ctx, "u2"); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	if _, err := sc.Get(ctx, "u2"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss after offline, got %v", err)
	}
}

func TestMemberCacheRoundTrip(t *testing.T) {
	kv := newMemKV()
	mc := cache.NewMemberCache(kv, 300*time.Second)
	ctx := context.Background()

	members := []dto.ServerMember{
		{Profile: domain.Profile{ID: "u1"}, Role: domain.RoleOwner},
		{Profile: domain.Profile{ID: "u2"}, Role: domain.RoleMember},
	}
	if err := mc.Set(ctx, "srv-1", members); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := mc.Get(ctx, "srv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Role != domain.RoleOwner {
		t.Fatalf("unexpected members %+v", got)
	}

	if err := mc.Invalidate(ctx, "srv-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := mc.Get(ctx, "srv-1"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected miss after invalidate, got %v", err)
	}
}
