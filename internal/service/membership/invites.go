package membership

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"dehive/internal/domain"
	"dehive/internal/dto"
	apperr "dehive/pkg/errors"

	"gorm.io/gorm"
)

const defaultInviteTTL = 24 * time.Hour

func newInviteCode() string {
	buf := make([]byte, 10)
	_, _ = rand.Read(buf)
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
}

// CreateInvite issues a join code. Any non-banned member may invite.
func (s *Service) CreateInvite(ctx context.Context, inviterID, serverID string, ttl time.Duration) (*dto.InviteView, error) {
	m, err := s.membership(ctx, inviterID, serverID)
	if err != nil {
		return nil, err
	}
	if m.IsBanned {
		return nil, apperr.Forbidden("banned users cannot invite")
	}
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	inv := &domain.Invite{
		ServerID:  serverID,
		InviterID: inviterID,
		Code:      newInviteCode(),
		ExpiresAt: s.now().UTC().Add(ttl),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Invites().Create(ctx, inv); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "invite create failed", err)
	}
	return &dto.InviteView{Code: inv.Code, ServerID: inv.ServerID, ExpiresAt: inv.ExpiresAt}, nil
}

// AcceptInvite resolves a code and joins its server through the normal Join
// path (same counters, same ban check).
func (s *Service) AcceptInvite(ctx context.Context, userID, code string) (string, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return "", apperr.InvalidArg("invite code is required")
	}
	inv, err := s.store.Invites().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NotFound("invite not found")
		}
		return "", apperr.Wrap(apperr.CodeInternal, "invite lookup failed", err)
	}
	if inv.RevokedAt != nil {
		return "", apperr.InvalidArg("invite was revoked")
	}
	if !inv.ExpiresAt.After(s.now().UTC()) {
		return "", apperr.InvalidArg("invite has expired")
	}
	if err := s.Join(ctx, userID, inv.ServerID); err != nil {
		return "", err
	}
	return inv.ServerID, nil
}

// RevokeInvite disables a code. Moderator or above.
func (s *Service) RevokeInvite(ctx context.Context, actorID, code string) error {
	code = strings.TrimSpace(strings.ToLower(code))
	inv, err := s.store.Invites().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("invite not found")
		}
		return apperr.Wrap(apperr.CodeInternal, "invite lookup failed", err)
	}
	actor, err := s.membership(ctx, actorID, inv.ServerID)
	if err != nil {
		return err
	}
	if domain.RoleRank(actor.Role) < domain.RoleRank(domain.RoleModerator) {
		return apperr.Forbidden("insufficient role")
	}
	if err := s.store.Invites().Revoke(ctx, inv.ID, s.now().UTC()); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "invite revoke failed", err)
	}
	return nil
}
