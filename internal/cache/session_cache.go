package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"dehive/internal/domain"

	"golang.org/x/crypto/sha3"
)

// KV is the minimal key-value surface the typed caches need. Satisfied by
// *Redis and by test stubs.
type KV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

// SessionCache stores Decode session blobs under session:<id>. The key also
// folds in a digest of the device fingerprint, so a stolen session id
// presented with a different fingerprint misses cache and is forced through
// upstream revalidation.
type SessionCache struct {
	kv  KV
	now func() time.Time
}

func NewSessionCache(kv KV) *SessionCache {
	return &SessionCache{kv: kv, now: time.Now}
}

func sessionKey(sessionID, fingerprint string) string {
	sum := sha3.Sum256([]byte(sessionID + ":" + fingerprint))
	return "session:" + hex.EncodeToString(sum[:16])
}

func (c *SessionCache) Get(ctx context.Context, sessionID, fingerprint string) (*domain.Session, error) {
	raw, err := c.kv.Get(ctx, sessionKey(sessionID, fingerprint))
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	if !s.ExpiresAt.After(c.now()) {
		return nil, ErrMiss
	}
	return &s, nil
}

// Set stores the session with a TTL derived from its expiry. Sessions that
// already expired are not cached.
func (c *SessionCache) Set(ctx context.Context, sessionID, fingerprint string, s *domain.Session) error {
	ttl := s.TTL(c.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, sessionKey(sessionID, fingerprint), data, ttl)
}

func (c *SessionCache) Delete(ctx context.Context, sessionID, fingerprint string) error {
	return c.kv.Delete(ctx, sessionKey(sessionID, fingerprint))
}
