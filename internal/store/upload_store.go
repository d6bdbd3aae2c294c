package store

import (
	"context"

	"dehive/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UploadStore struct{ db *gorm.DB }

func (s *Store) Uploads() *UploadStore { return &UploadStore{s.DB} }

func (us *UploadStore) Create(ctx context.Context, u *domain.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return us.db.WithContext(ctx).Create(u).Error
}

func (us *UploadStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Upload, error) {
	var u domain.Upload
	if err := us.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByIDs fetches a batch of uploads; missing ids simply do not appear in
// the result, the caller decides whether that is an error.
func (us *UploadStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Upload, error) {
	var out []domain.Upload
	if len(ids) == 0 {
		return out, nil
	}
	err := us.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

func (us *UploadStore) ListForOwner(ctx context.Context, ownerID string, convID uuid.UUID, offset, limit int) ([]domain.Upload, error) {
	var out []domain.Upload
	err := us.db.WithContext(ctx).
		Where("owner_id = ? AND conversation_id = ?", ownerID, convID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}
