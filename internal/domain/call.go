package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	CallStatusRinging    = "ringing"
	CallStatusConnecting = "connecting"
	CallStatusConnected  = "connected"
	CallStatusEnded      = "ended"

	CallEndReasonAllLeft = "all_participants_left"
)

// ChannelCall tracks one voice call in a channel. At most one call per
// channel should be in the connected state; the service treats a duplicate
// created under a race as reconcilable, not fatal.
type ChannelCall struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID           string     `gorm:"type:text;not null;index" json:"channel_id"`
	Status              string     `gorm:"type:text;not null" json:"status"`
	EndReason           *string    `gorm:"type:text" json:"end_reason,omitempty"`
	StartedAt           time.Time  `gorm:"not null" json:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	CurrentParticipants int64      `gorm:"not null;default:0" json:"current_participants"`
	Metadata            string     `gorm:"type:text" json:"metadata,omitempty"`
}

func (ChannelCall) TableName() string { return "channel_calls" }

// ChannelParticipant is one user's live membership in a call. Rows are
// created on join and deleted on leave/disconnect; the call's participant
// counter is always recomputed from these rows inside the same transaction.
type ChannelParticipant struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CallID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_participants_call_user,priority:1" json:"call_id"`
	ChannelID      string    `gorm:"type:text;not null;index" json:"channel_id"`
	UserID         string    `gorm:"type:text;not null;uniqueIndex:ux_participants_call_user,priority:2" json:"user_id"`
	JoinedAt       time.Time `gorm:"not null" json:"joined_at"`
	IsAudioEnabled bool      `gorm:"not null;default:true" json:"is_audio_enabled"`
	IsVideoMuted   bool      `gorm:"not null;default:true" json:"is_video_muted"`
}

func (ChannelParticipant) TableName() string { return "channel_participants" }
