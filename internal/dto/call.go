package dto

import (
	"time"

	"dehive/internal/domain"
)

type JoinChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type LeaveChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type CallView struct {
	ID                  string     `json:"id"`
	ChannelID           string     `json:"channel_id"`
	Status              string     `json:"status"`
	EndReason           *string    `json:"end_reason,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	CurrentParticipants int64      `json:"current_participants"`
}

type ParticipantView struct {
	UserID         string    `json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
	IsAudioEnabled bool      `json:"is_audio_enabled"`
	IsVideoMuted   bool      `json:"is_video_muted"`
}

func NewCallView(c *domain.ChannelCall) CallView {
	return CallView{
		ID:                  c.ID.String(),
		ChannelID:           c.ChannelID,
		Status:              c.Status,
		EndReason:           c.EndReason,
		StartedAt:           c.StartedAt,
		EndedAt:             c.EndedAt,
		CurrentParticipants: c.CurrentParticipants,
	}
}

func NewParticipantView(p *domain.ChannelParticipant) ParticipantView {
	return ParticipantView{
		UserID:         p.UserID,
		JoinedAt:       p.JoinedAt,
		IsAudioEnabled: p.IsAudioEnabled,
		IsVideoMuted:   p.IsVideoMuted,
	}
}
