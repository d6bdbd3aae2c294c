package store

import (
	"context"
	"time"

	"dehive/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationStore struct{ db *gorm.DB }

func (s *Store) Conversations() *ConversationStore { return &ConversationStore{s.DB} }

func (cs *ConversationStore) Create(ctx context.Context, c *domain.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return cs.db.WithContext(ctx).Create(c).Error
}

func (cs *ConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := cs.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByPair looks up the conversation for a canonically ordered user pair.
func (cs *ConversationStore) GetByPair(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := cs.db.WithContext(ctx).First(&c, "user_a = ? AND user_b = ?", userA, userB).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (cs *ConversationStore) ListForUser(ctx context.Context, userID string, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := cs.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("updated_at DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// Touch bumps updated_at so the conversation sorts to the top of listings.
func (cs *ConversationStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return cs.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at).Error
}
