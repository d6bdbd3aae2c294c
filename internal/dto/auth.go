package dto

import (
	"time"

	"dehive/internal/domain"
)

type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
}

type SessionResponse struct {
	User      domain.Profile `json:"user"`
	ExpiresAt time.Time      `json:"expires_at"`
}

type UploadView struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Type           string     `json:"type"`
	URL            string     `json:"url"`
	Name           string     `json:"name"`
	Size           int64      `json:"size"`
	MimeType       string     `json:"mimeType"`
	Width          *int       `json:"width,omitempty"`
	Height         *int       `json:"height,omitempty"`
	DurationMs     *int64     `json:"durationMs,omitempty"`
	ThumbnailURL   *string    `json:"thumbnailUrl,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func NewUploadView(u *domain.Upload) UploadView {
	return UploadView{
		ID:             u.ID.String(),
		ConversationID: u.ConversationID.String(),
		Type:           u.Type,
		URL:            u.URL,
		Name:           u.Name,
		Size:           u.Size,
		MimeType:       u.MimeType,
		Width:          u.Width,
		Height:         u.Height,
		DurationMs:     u.DurationMs,
		ThumbnailURL:   u.ThumbnailURL,
		CreatedAt:      u.CreatedAt,
	}
}
