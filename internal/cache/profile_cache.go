package cache

import (
	"context"
	"encoding/json"
	"time"

	"dehive/internal/domain"
)

// ProfileCache stores Decode display profiles under user_profile:<id>.
type ProfileCache struct {
	kv  KV
	ttl time.Duration
}

func NewProfileCache(kv KV, ttl time.Duration) *ProfileCache {
	return &ProfileCache{kv: kv, ttl: ttl}
}

func profileKey(userID string) string { return "user_profile:" + userID }

func (c *ProfileCache) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	raw, err := c.kv.Get(ctx, profileKey(userID))
	if err != nil {
		return nil, err
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *ProfileCache) Set(ctx context.Context, p *domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, profileKey(p.ID), data, c.ttl)
}

// StatusCache tracks coarse online/offline presence under user:status:<id>.
// Written by the gateways on identify/disconnect; purely advisory.
type StatusCache struct {
	kv  KV
	ttl time.Duration
}

func NewStatusCache(kv KV, ttl time.Duration) *StatusCache {
	// Presence keys must age out: a crashed gateway never sends the
	// offline delete, so an unbounded key would pin users online forever.
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatusCache{kv: kv, ttl: ttl}
}

func statusKey(userID string) string { return "user:status:" + userID }

func (c *StatusCache) SetOnline(ctx context.Context, userID string) error {
	return c.kv.Set(ctx, statusKey(userID), "online", c.ttl)
}

func (c *StatusCache) SetOffline(ctx context.Context, userID string) error {
	return c.kv.Delete(ctx, statusKey(userID))
}

func (c *StatusCache) Get(ctx context.Context, userID string) (string, error) {
	return c.kv.Get(ctx, statusKey(userID))
}
