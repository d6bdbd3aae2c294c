package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	UploadTypeImage = "image"
	UploadTypeVideo = "video"
	UploadTypeAudio = "audio"
	UploadTypeFile  = "file"
)

// Upload is created once per successful file upload and never mutated.
// Messages reference it through denormalized Attachment snapshots.
type Upload struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID        string     `gorm:"type:text;not null;index" json:"ownerId"`
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index" json:"conversationId"`
	Type           string     `gorm:"type:text;not null" json:"type"`
	URL            string     `gorm:"type:text;not null" json:"url"`
	Name           string     `gorm:"type:text;not null" json:"name"`
	Size           int64      `gorm:"not null" json:"size"`
	MimeType       string     `gorm:"type:text;not null" json:"mimeType"`
	Width          *int       `json:"width,omitempty"`
	Height         *int       `json:"height,omitempty"`
	DurationMs     *int64     `json:"durationMs,omitempty"`
	ThumbnailURL   *string    `gorm:"type:text" json:"thumbnailUrl,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"createdAt"`
}

func (Upload) TableName() string { return "uploads" }

// Snapshot converts the upload into the attachment form embedded in messages.
func (u *Upload) Snapshot() Attachment {
	return Attachment{
		UploadID:     u.ID,
		Type:         u.Type,
		URL:          u.URL,
		Name:         u.Name,
		Size:         u.Size,
		MimeType:     u.MimeType,
		Width:        u.Width,
		Height:       u.Height,
		DurationMs:   u.DurationMs,
		ThumbnailURL: u.ThumbnailURL,
	}
}
