package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct conversation between two users. UserA/UserB are
// Decode user ids stored in canonical order (UserA < UserB); the pair is
// unique regardless of who initiated.
type Conversation struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserA       string    `gorm:"type:text;not null;uniqueIndex:ux_conversations_pair,priority:1" json:"userA"`
	UserB       string    `gorm:"type:text;not null;uniqueIndex:ux_conversations_pair,priority:2" json:"userB"`
	IsEncrypted bool      `gorm:"not null;default:false" json:"isEncrypted"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

// CanonicalPair orders two user ids the way they are stored.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// HasParticipant reports whether id is one of the two conversation members.
func (c *Conversation) HasParticipant(id string) bool {
	return id == c.UserA || id == c.UserB
}

// OtherParticipant returns the member that is not id.
func (c *Conversation) OtherParticipant(id string) string {
	if id == c.UserA {
		return c.UserB
	}
	return c.UserA
}
