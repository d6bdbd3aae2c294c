package store

import (
	"context"
	"time"

	"dehive/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CallStore struct{ db *gorm.DB }

func (s *Store) Calls() *CallStore { return &CallStore{s.DB} }

func (cs *CallStore) Create(ctx context.Context, c *domain.ChannelCall) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return cs.db.WithContext(ctx).Create(c).Error
}

func (cs *CallStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChannelCall, error) {
	var c domain.ChannelCall
	if err := cs.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConnected returns the channel's live call, if any.
func (cs *CallStore) GetConnected(ctx context.Context, channelID string) (*domain.ChannelCall, error) {
	var c domain.ChannelCall
	err := cs.db.WithContext(ctx).
		Where("channel_id = ? AND status = ?", channelID, domain.CallStatusConnected).
		Order("started_at ASC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConnected returns every live call, for the reconciler sweep.
func (cs *CallStore) ListConnected(ctx context.Context) ([]domain.ChannelCall, error) {
	var out []domain.ChannelCall
	err := cs.db.WithContext(ctx).
		Where("status = ?", domain.CallStatusConnected).
		Find(&out).Error
	return out, err
}

func (cs *CallStore) SetParticipantCount(ctx context.Context, id uuid.UUID, n int64) error {
	return cs.db.WithContext(ctx).
		Model(&domain.ChannelCall{}).
		Where("id = ?", id).
		Update("current_participants", n).Error
}

func (cs *CallStore) End(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return cs.db.WithContext(ctx).
		Model(&domain.ChannelCall{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":               domain.CallStatusEnded,
			"end_reason":           reason,
			"ended_at":             at,
			"current_participants": 0,
		}).Error
}

type ParticipantStore struct{ db *gorm.DB }

func (s *Store) Participants() *ParticipantStore { return &ParticipantStore{s.DB} }

func (ps *ParticipantStore) Create(ctx context.Context, p *domain.ChannelParticipant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return ps.db.WithContext(ctx).Create(p).Error
}

func (ps *ParticipantStore) GetByCallAndUser(ctx context.Context, callID uuid.UUID, userID string) (*domain.ChannelParticipant, error) {
	var p domain.ChannelParticipant
	err := ps.db.WithContext(ctx).
		First(&p, "call_id = ? AND user_id = ?", callID, userID).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (ps *ParticipantStore) ListByCall(ctx context.Context, callID uuid.UUID) ([]domain.ChannelParticipant, error) {
	var out []domain.ChannelParticipant
	err := ps.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("joined_at ASC").
		Find(&out).Error
	return out, err
}

func (ps *ParticipantStore) Delete(ctx context.Context, callID uuid.UUID, userID string) (int64, error) {
	tx := ps.db.WithContext(ctx).
		Where("call_id = ? AND user_id = ?", callID, userID).
		Delete(&domain.ChannelParticipant{})
	return tx.RowsAffected, tx.Error
}

// CountByCall recomputes the live participant count from rows. Called inside
// the same transaction as the insert/delete so the counter cannot drift.
func (ps *ParticipantStore) CountByCall(ctx context.Context, callID uuid.UUID) (int64, error) {
	var n int64
	err := ps.db.WithContext(ctx).
		Model(&domain.ChannelParticipant{}).
		Where("call_id = ?", callID).
		Count(&n).Error
	return n, err
}
