package store

import (
	"context"

	"dehive/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageStore struct{ db *gorm.DB }

func (s *Store) Messages() *MessageStore { return &MessageStore{s.DB} }

func (ms *MessageStore) Create(ctx context.Context, m *domain.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return ms.db.WithContext(ctx).Create(m).Error
}

func (ms *MessageStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	var m domain.Message
	if err := ms.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByConversation pages newest-first with id as the stable tie-break.
func (ms *MessageStore) ListByConversation(ctx context.Context, convID uuid.UUID, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := ms.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

func (ms *MessageStore) Save(ctx context.Context, m *domain.Message) error {
	return ms.db.WithContext(ctx).Save(m).Error
}
