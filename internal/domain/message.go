package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxMessageContentLen is enforced at both the HTTP DTO layer and the
	// WebSocket gateway, since the socket path bypasses HTTP validation.
	MaxMessageContentLen = 2000

	// DeletedMessageContent replaces the content of a soft-deleted message.
	DeletedMessageContent = "This message was deleted"
)

// Attachment is the snapshot of an Upload embedded into a message at send
// time. It is denormalized on purpose: later upload mutations never change
// an already-sent message.
type Attachment struct {
	UploadID     uuid.UUID `json:"uploadId"`
	Type         string    `json:"type"`
	URL          string    `json:"url"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	Width        *int      `json:"width,omitempty"`
	Height       *int      `json:"height,omitempty"`
	DurationMs   *int64    `json:"durationMs,omitempty"`
	ThumbnailURL *string   `json:"thumbnailUrl,omitempty"`
}

type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index:ix_messages_conv_created,priority:1" json:"conversationId"`
	SenderID       string         `gorm:"type:text;not null" json:"senderId"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Attachments    []Attachment   `gorm:"serializer:json" json:"attachments"`
	IsEdited       bool           `gorm:"not null;default:false" json:"isEdited"`
	EditedAt       *time.Time     `json:"editedAt,omitempty"`
	IsDeleted      bool           `gorm:"not null;default:false" json:"isDeleted"`
	ReplyToID      *uuid.UUID     `gorm:"type:uuid" json:"replyToId,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index:ix_messages_conv_created,priority:2,sort:desc" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updatedAt"`
}

func (Message) TableName() string { return "messages" }
