package cache

import (
	"context"
	"encoding/json"
	"time"

	"dehive/internal/dto"
)

// MemberCache holds the enriched member list of a server under
// server_members:<id>. Short TTL; invalidated on every membership mutation
// and rebuilt lazily on the next read.
type MemberCache struct {
	kv  KV
	ttl time.Duration
}

func NewMemberCache(kv KV, ttl time.Duration) *MemberCache {
	return &MemberCache{kv: kv, ttl: ttl}
}

func membersKey(serverID string) string { return "server_members:" + serverID }

func (c *MemberCache) Get(ctx context.Context, serverID string) ([]dto.ServerMember, error) {
	raw, err := c.kv.Get(ctx, membersKey(serverID))
	if err != nil {
		return nil, err
	}
	var out []dto.ServerMember
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MemberCache) Set(ctx context.Context, serverID string, members []dto.ServerMember) error {
	data, err := json.Marshal(members)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, membersKey(serverID), data, c.ttl)
}

func (c *MemberCache) Invalidate(ctx context.Context, serverID string) error {
	return c.kv.Delete(ctx, membersKey(serverID))
}
