package dto

import (
	"time"

	"dehive/internal/domain"
)

type CreateServerRequest struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
}

type JoinServerRequest struct {
	ServerID string `json:"server_id"`
}

type LeaveServerRequest struct {
	ServerID string `json:"server_id"`
}

type MemberActionRequest struct {
	ServerID     string `json:"server_id"`
	TargetUserID string `json:"target_user_id"`
}

type AssignRoleRequest struct {
	ServerID     string `json:"server_id"`
	TargetUserID string `json:"target_user_id"`
	Role         string `json:"role"`
}

type NotificationRequest struct {
	ServerID string `json:"server_id"`
	Enabled  bool   `json:"enabled"`
}

type CreateInviteRequest struct {
	ServerID  string `json:"server_id"`
	ExpiresIn string `json:"expires_in,omitempty"`
}

type AcceptInviteRequest struct {
	Code string `json:"code"`
}

type InviteView struct {
	Code      string    `json:"code"`
	ServerID  string    `json:"server_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ServerMember is one row of the enriched, cache-backed member list.
type ServerMember struct {
	Profile  domain.Profile `json:"profile"`
	Role     string         `json:"role"`
	IsMuted  bool           `json:"is_muted"`
	IsBanned bool           `json:"is_banned"`
	JoinedAt time.Time      `json:"joined_at"`
}
