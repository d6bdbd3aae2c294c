// Package membership manages server membership lifecycle and roles. Every
// mutation runs in one short transaction spanning the membership row and the
// two redundant counters (user server_count, server member_count), and
// invalidates the cached member list for the server.
package membership

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dehive/internal/domain"
	"dehive/internal/dto"
	"dehive/internal/observability/metrics"
	"dehive/internal/store"
	apperr "dehive/pkg/errors"

	"gorm.io/gorm"
)

// memberCache is the server_members:<id> cache surface. Satisfied by
// *cache.MemberCache and by test stubs.
type memberCache interface {
	Get(ctx context.Context, serverID string) ([]dto.ServerMember, error)
	Set(ctx context.Context, serverID string, members []dto.ServerMember) error
	Invalidate(ctx context.Context, serverID string) error
}

// profileResolver enriches member rows with display profiles; it never
// fails (placeholder fallback).
type profileResolver interface {
	Resolve(ctx context.Context, userID string) domain.Profile
}

type Service struct {
	store    *store.Store
	members  memberCache
	profiles profileResolver
	log      *slog.Logger
	now      func() time.Time
}

func New(st *store.Store, members memberCache, profiles profileResolver, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, members: members, profiles: profiles, log: log, now: time.Now}
}

func validID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && len(id) <= 64 && !strings.ContainsAny(id, " \t\r\n")
}

func (s *Service) invalidate(ctx context.Context, serverID string) {
	if err := s.members.Invalidate(ctx, serverID); err != nil {
		s.log.Warn("member cache invalidation failed", "server_id", serverID, "error", err)
	}
}

func countOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.MembershipMutationsTotal.WithLabelValues(op, result).Inc()
}

// CreateServer registers a server and its owner membership.
func (s *Service) CreateServer(ctx context.Context, ownerID, serverID, name string) (err error) {
	defer func() { countOp("create_server", err) }()
	if !validID(ownerID) || !validID(serverID) {
		return apperr.InvalidArg("invalid id")
	}
	if strings.TrimSpace(name) == "" {
		return apperr.InvalidArg("server name is required")
	}
	now := s.now().UTC()
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Servers().Create(ctx, &domain.Server{
			ID:          serverID,
			Name:        strings.TrimSpace(name),
			OwnerID:     ownerID,
			MemberCount: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.AlreadyExists("server already exists")
			}
			return err
		}
		if err := tx.Memberships().Create(ctx, &domain.Membership{
			UserID:               ownerID,
			ServerID:             serverID,
			Role:                 domain.RoleOwner,
			NotificationsEnabled: true,
			JoinedAt:             now,
		}); err != nil {
			return err
		}
		return tx.UserStats().AddServerCount(ctx, ownerID, 1)
	})
	if err != nil {
		return normalize(err, "server create failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// Join adds the user as a plain member. Banned users are rejected; joining
// twice is a conflict.
func (s *Service) Join(ctx context.Context, userID, serverID string) (err error) {
	defer func() { countOp("join", err) }()
	if !validID(userID) || !validID(serverID) {
		return apperr.InvalidArg("invalid id")
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.Servers().GetByID(ctx, serverID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("server not found")
			}
			return err
		}
		existing, err := tx.Memberships().Get(ctx, userID, serverID)
		if err == nil {
			if existing.IsBanned {
				return apperr.Forbidden("you are banned from this server")
			}
			return apperr.AlreadyExists("already a member")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Memberships().Create(ctx, &domain.Membership{
			UserID:               userID,
			ServerID:             serverID,
			Role:                 domain.RoleMember,
			NotificationsEnabled: true,
			JoinedAt:             s.now().UTC(),
		}); err != nil {
			return err
		}
		if err := tx.Servers().AddMemberCount(ctx, serverID, 1); err != nil {
			return err
		}
		return tx.UserStats().AddServerCount(ctx, userID, 1)
	})
	if err != nil {
		return normalize(err, "server join failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// Leave removes the caller's own membership. The owner must transfer
// ownership first.
func (s *Service) Leave(ctx context.Context, userID, serverID string) (err error) {
	defer func() { countOp("leave", err) }()
	if !validID(userID) || !validID(serverID) {
		return apperr.InvalidArg("invalid id")
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		m, err := tx.Memberships().Get(ctx, userID, serverID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("not a member of this server")
			}
			return err
		}
		if m.Role == domain.RoleOwner {
			return apperr.Forbidden("the owner must transfer ownership before leaving")
		}
		return s.removeMember(ctx, tx, m)
	})
	if err != nil {
		return normalize(err, "server leave failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// Kick removes another member. Owner cannot be kicked; moderators cannot
// act on moderators.
func (s *Service) Kick(ctx context.Context, actorID, targetID, serverID string) (err error) {
	defer func() { countOp("kick", err) }()
	actor, target, err := s.actorAndTarget(ctx, actorID, targetID, serverID)
	if err != nil {
		return err
	}
	if err := canActOn(actor, target); err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		return s.removeMember(ctx, tx, target)
	})
	if err != nil {
		return normalize(err, "kick failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// Ban marks the membership banned and removes the member from the counters.
// The row is kept so a banned user cannot rejoin.
func (s *Service) Ban(ctx context.Context, actorID, targetID, serverID string) (err error) {
	defer func() { countOp("ban", err) }()
	actor, target, err := s.actorAndTarget(ctx, actorID, targetID, serverID)
	if err != nil {
		return err
	}
	if err := canActOn(actor, target); err != nil {
		return err
	}
	if target.IsBanned {
		return apperr.AlreadyExists("already banned")
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		target.IsBanned = true
		target.Role = domain.RoleMember
		if err := tx.Memberships().Save(ctx, target); err != nil {
			return err
		}
		if err := tx.Servers().AddMemberCount(ctx, serverID, -1); err != nil {
			return err
		}
		return tx.UserStats().AddServerCount(ctx, target.UserID, -1)
	})
	if err != nil {
		return normalize(err, "ban failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// Unban deletes the banned row so the user may rejoin. Counters were already
// adjusted at ban time.
func (s *Service) Unban(ctx context.Context, actorID, targetID, serverID string) (err error) {
	defer func() { countOp("unban", err) }()
	if !validID(actorID) || !validID(targetID) || !validID(serverID) {
		return apperr.InvalidArg("invalid id")
	}
	actor, err := s.membership(ctx, actorID, serverID)
	if err != nil {
		return err
	}
	if domain.RoleRank(actor.Role) < domain.RoleRank(domain.RoleModerator) {
		return apperr.Forbidden("insufficient role")
	}
	target, err := s.membership(ctx, targetID, serverID)
	if err != nil {
		return err
	}
	if !target.IsBanned {
		return apperr.InvalidArg("user is not banned")
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		_, err := tx.Memberships().Delete(ctx, targetID, serverID)
		return err
	})
	if err != nil {
		return normalize(err, "unban failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// AssignRole sets moderator or member. Owner only; the owner role is only
// reachable through TransferOwnership.
func (s *Service) AssignRole(ctx context.Context, actorID, targetID, serverID, role string) (err error) {
	defer func() { countOp("assign_role", err) }()
	if role != domain.RoleModerator && role != domain.RoleMember {
		return apperr.InvalidArg("role must be moderator or member")
	}
	actor, target, err := s.actorAndTarget(ctx, actorID, targetID, serverID)
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleOwner {
		return apperr.Forbidden("only the owner can assign roles")
	}
	if target.Role == domain.RoleOwner {
		return apperr.Forbidden("the owner's role cannot be changed")
	}
	if target.IsBanned {
		return apperr.InvalidArg("cannot assign a role to a banned user")
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		target.Role = role
		return tx.Memberships().Save(ctx, target)
	})
	if err != nil {
		return normalize(err, "role assignment failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// TransferOwnership swaps the owner and a member in one transaction.
func (s *Service) TransferOwnership(ctx context.Context, actorID, targetID, serverID string) (err error) {
	defer func() { countOp("transfer_ownership", err) }()
	actor, target, err := s.actorAndTarget(ctx, actorID, targetID, serverID)
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleOwner {
		return apperr.Forbidden("only the owner can transfer ownership")
	}
	if target.IsBanned {
		return apperr.InvalidArg("cannot transfer ownership to a banned user")
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		now := s.now().UTC()
		actor.Role = domain.RoleMember
		target.Role = domain.RoleOwner
		if err := tx.Memberships().Save(ctx, actor); err != nil {
			return err
		}
		if err := tx.Memberships().Save(ctx, target); err != nil {
			return err
		}
		return tx.Servers().SetOwner(ctx, serverID, target.UserID, now)
	})
	if err != nil {
		return normalize(err, "ownership transfer failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// UpdateNotification toggles the caller's own notification flag.
func (s *Service) UpdateNotification(ctx context.Context, userID, serverID string, enabled bool) (err error) {
	defer func() { countOp("notification", err) }()
	m, err := s.membership(ctx, userID, serverID)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		m.NotificationsEnabled = enabled
		return tx.Memberships().Save(ctx, m)
	})
	if err != nil {
		return normalize(err, "notification update failed")
	}
	s.invalidate(ctx, serverID)
	return nil
}

// ServerMembers returns the enriched member list, cache-backed with lazy
// rebuild.
func (s *Service) ServerMembers(ctx context.Context, serverID string) ([]dto.ServerMember, error) {
	if !validID(serverID) {
		return nil, apperr.InvalidArg("invalid server id")
	}
	if cached, err := s.members.Get(ctx, serverID); err == nil {
		return cached, nil
	}
	rows, err := s.store.Memberships().ListByServer(ctx, serverID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "member listing failed", err)
	}
	out := make([]dto.ServerMember, 0, len(rows))
	for i := range rows {
		m := &rows[i]
		out = append(out, dto.ServerMember{
			Profile:  s.profiles.Resolve(ctx, m.UserID),
			Role:     m.Role,
			IsMuted:  m.IsMuted,
			IsBanned: m.IsBanned,
			JoinedAt: m.JoinedAt,
		})
	}
	if err := s.members.Set(ctx, serverID, out); err != nil {
		s.log.Warn("member cache write failed", "server_id", serverID, "error", err)
	}
	return out, nil
}

// MemberProfile returns a single enriched membership.
func (s *Service) MemberProfile(ctx context.Context, serverID, userID string) (*dto.ServerMember, error) {
	m, err := s.membership(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	return &dto.ServerMember{
		Profile:  s.profiles.Resolve(ctx, m.UserID),
		Role:     m.Role,
		IsMuted:  m.IsMuted,
		IsBanned: m.IsBanned,
		JoinedAt: m.JoinedAt,
	}, nil
}

func (s *Service) membership(ctx context.Context, userID, serverID string) (*domain.Membership, error) {
	if !validID(userID) || !validID(serverID) {
		return nil, apperr.InvalidArg("invalid id")
	}
	m, err := s.store.Memberships().Get(ctx, userID, serverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("membership not found")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "membership lookup failed", err)
	}
	return m, nil
}

func (s *Service) actorAndTarget(ctx context.Context, actorID, targetID, serverID string) (*domain.Membership, *domain.Membership, error) {
	if actorID == targetID {
		return nil, nil, apperr.InvalidArg("cannot act on yourself")
	}
	actor, err := s.membership(ctx, actorID, serverID)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.membership(ctx, targetID, serverID)
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

// canActOn is the moderation permission matrix: the owner is untouchable,
// moderators cannot act on moderators, members cannot act at all.
func canActOn(actor, target *domain.Membership) error {
	if target.Role == domain.RoleOwner {
		return apperr.Forbidden("the owner cannot be targeted")
	}
	if domain.RoleRank(actor.Role) < domain.RoleRank(domain.RoleModerator) {
		return apperr.Forbidden("insufficient role")
	}
	if actor.Role == domain.RoleModerator && target.Role == domain.RoleModerator {
		return apperr.Forbidden("moderators cannot act on moderators")
	}
	return nil
}

// removeMember deletes the row and walks both counters back.
func (s *Service) removeMember(ctx context.Context, tx *store.Store, m *domain.Membership) error {
	removed, err := tx.Memberships().Delete(ctx, m.UserID, m.ServerID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return apperr.NotFound("membership not found")
	}
	if m.IsBanned {
		// Banned rows were already taken out of the counters.
		return nil
	}
	if err := tx.Servers().AddMemberCount(ctx, m.ServerID, -1); err != nil {
		return err
	}
	return tx.UserStats().AddServerCount(ctx, m.UserID, -1)
}

// normalize keeps typed AppErrors intact and wraps everything else as a
// generic internal failure (transactions are abandoned, never retried).
func normalize(err error, msg string) error {
	var app *apperr.AppError
	if errors.As(err, &app) {
		return err
	}
	return apperr.Wrap(apperr.CodeInternal, msg, err)
}
