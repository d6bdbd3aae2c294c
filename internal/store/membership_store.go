package store

import (
	"context"
	"time"

	"dehive/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MembershipStore struct{ db *gorm.DB }

func (s *Store) Memberships() *MembershipStore { return &MembershipStore{s.DB} }

func (ms *MembershipStore) Create(ctx context.Context, m *domain.Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return ms.db.WithContext(ctx).Create(m).Error
}

func (ms *MembershipStore) Get(ctx context.Context, userID, serverID string) (*domain.Membership, error) {
	var m domain.Membership
	err := ms.db.WithContext(ctx).
		First(&m, "user_id = ? AND server_id = ?", userID, serverID).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (ms *MembershipStore) ListByServer(ctx context.Context, serverID string) ([]domain.Membership, error) {
	var out []domain.Membership
	err := ms.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		Order("joined_at ASC").
		Find(&out).Error
	return out, err
}

func (ms *MembershipStore) Save(ctx context.Context, m *domain.Membership) error {
	return ms.db.WithContext(ctx).Save(m).Error
}

func (ms *MembershipStore) Delete(ctx context.Context, userID, serverID string) (int64, error) {
	tx := ms.db.WithContext(ctx).
		Where("user_id = ? AND server_id = ?", userID, serverID).
		Delete(&domain.Membership{})
	return tx.RowsAffected, tx.Error
}

type ServerStore struct{ db *gorm.DB }

func (s *Store) Servers() *ServerStore { return &ServerStore{s.DB} }

func (ss *ServerStore) Create(ctx context.Context, sv *domain.Server) error {
	return ss.db.WithContext(ctx).Create(sv).Error
}

func (ss *ServerStore) GetByID(ctx context.Context, id string) (*domain.Server, error) {
	var sv domain.Server
	if err := ss.db.WithContext(ctx).First(&sv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sv, nil
}

func (ss *ServerStore) SetOwner(ctx context.Context, id, ownerID string, at time.Time) error {
	return ss.db.WithContext(ctx).
		Model(&domain.Server{}).
		Where("id = ?", id).
		Updates(map[string]any{"owner_id": ownerID, "updated_at": at}).Error
}

func (ss *ServerStore) AddMemberCount(ctx context.Context, id string, delta int64) error {
	return ss.db.WithContext(ctx).
		Model(&domain.Server{}).
		Where("id = ?", id).
		Update("member_count", gorm.Expr("member_count + ?", delta)).Error
}

type UserStatsStore struct{ db *gorm.DB }

func (s *Store) UserStats() *UserStatsStore { return &UserStatsStore{s.DB} }

// AddServerCount upserts and bumps the per-user server counter.
func (us *UserStatsStore) AddServerCount(ctx context.Context, userID string, delta int64) error {
	return us.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"server_count": gorm.Expr("user_stats.server_count + ?", delta)}),
		}).
		Create(&domain.UserStats{UserID: userID, ServerCount: delta}).Error
}

func (us *UserStatsStore) Get(ctx context.Context, userID string) (*domain.UserStats, error) {
	var st domain.UserStats
	if err := us.db.WithContext(ctx).First(&st, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

type InviteStore struct{ db *gorm.DB }

func (s *Store) Invites() *InviteStore { return &InviteStore{s.DB} }

func (is *InviteStore) Create(ctx context.Context, inv *domain.Invite) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	return is.db.WithContext(ctx).Create(inv).Error
}

func (is *InviteStore) GetByCode(ctx context.Context, code string) (*domain.Invite, error) {
	var inv domain.Invite
	if err := is.db.WithContext(ctx).First(&inv, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (is *InviteStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	return is.db.WithContext(ctx).
		Model(&domain.Invite{}).
		Where("id = ?", id).
		Update("revoked_at", at).Error
}
