package dto

import (
	"time"

	"dehive/internal/domain"
)

type CreateConversationRequest struct {
	OtherUserID string `json:"otherUserId"`
	IsEncrypted bool   `json:"isEncrypted,omitempty"`
}

type SendMessageRequest struct {
	ConversationID string   `json:"conversationId"`
	Content        string   `json:"content"`
	UploadIDs      []string `json:"uploadIds,omitempty"`
	ReplyTo        string   `json:"replyTo,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

// MessageView is a message enriched with the sender's display profile and,
// when present, the message it replies to. This is the canonical shape both
// the HTTP responses and the gateway broadcasts carry.
type MessageView struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	Sender         domain.Profile      `json:"sender"`
	Content        string              `json:"content"`
	Attachments    []domain.Attachment `json:"attachments"`
	IsEdited       bool                `json:"isEdited"`
	EditedAt       *time.Time          `json:"editedAt,omitempty"`
	IsDeleted      bool                `json:"isDeleted"`
	ReplyTo        *MessageView        `json:"replyTo,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

type ConversationView struct {
	ID          string         `json:"id"`
	Other       domain.Profile `json:"otherUser"`
	IsEncrypted bool           `json:"isEncrypted"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
