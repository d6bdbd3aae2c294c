package store

import (
	"context"

	"dehive/internal/domain"

	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}

// Migrate creates the full schema. The binaries each call it on boot; it is
// idempotent under gorm's AutoMigrate semantics.
func (s *Store) Migrate() error {
	return s.DB.AutoMigrate(
		&domain.Conversation{},
		&domain.Message{},
		&domain.Upload{},
		&domain.ChannelCall{},
		&domain.ChannelParticipant{},
		&domain.Membership{},
		&domain.Server{},
		&domain.UserStats{},
		&domain.Invite{},
	)
}
