package dm

import (
	"context"
	"errors"
	"log/slog"

	"dehive/internal/cache"
	"dehive/internal/domain"
)

// profileSource is the slice of the Decode client this package needs.
type profileSource interface {
	Profile(ctx context.Context, userID string) *domain.Profile
}

// ProfileResolver turns user ids into display profiles: cache first, then
// the identity client, then a synthetic placeholder. It never fails — a
// missing display name must not fail a message listing.
type ProfileResolver struct {
	Cache  *cache.ProfileCache
	Source profileSource
	Log    *slog.Logger
}

func NewProfileResolver(pc *cache.ProfileCache, src profileSource, log *slog.Logger) *ProfileResolver {
	if log == nil {
		log = slog.Default()
	}
	return &ProfileResolver{Cache: pc, Source: src, Log: log}
}

func (r *ProfileResolver) Resolve(ctx context.Context, userID string) domain.Profile {
	if r.Cache != nil {
		if p, err := r.Cache.Get(ctx, userID); err == nil {
			return *p
		} else if !errors.Is(err, cache.ErrMiss) {
			r.Log.Debug("profile cache read failed", "user_id", userID, "error", err)
		}
	}
	if r.Source != nil {
		if p := r.Source.Profile(ctx, userID); p != nil {
			if r.Cache != nil {
				if err := r.Cache.Set(ctx, p); err != nil {
					r.Log.Debug("profile cache write failed", "user_id", userID, "error", err)
				}
			}
			return *p
		}
	}
	return domain.PlaceholderProfile(userID)
}
