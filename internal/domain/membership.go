package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleOwner     = "owner"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// RoleRank orders roles for permission checks. Higher acts on lower.
func RoleRank(role string) int {
	switch role {
	case RoleOwner:
		return 3
	case RoleModerator:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Membership links a Decode user to a server, unique per (user, server).
type Membership struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               string    `gorm:"type:text;not null;uniqueIndex:ux_memberships_user_server,priority:1" json:"user_dehive_id"`
	ServerID             string    `gorm:"type:text;not null;uniqueIndex:ux_memberships_user_server,priority:2;index" json:"server_id"`
	Role                 string    `gorm:"type:text;not null;default:'member'" json:"role"`
	IsMuted              bool      `gorm:"not null;default:false" json:"is_muted"`
	IsBanned             bool      `gorm:"not null;default:false" json:"is_banned"`
	NotificationsEnabled bool      `gorm:"not null;default:true" json:"notifications_enabled"`
	JoinedAt             time.Time `gorm:"not null" json:"joined_at"`
}

func (Membership) TableName() string { return "user_dehive_servers" }

// Server carries the redundant member counter updated inside every
// membership transaction.
type Server struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	OwnerID     string    `gorm:"type:text;not null" json:"owner_id"`
	MemberCount int64     `gorm:"not null;default:0" json:"member_count"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Server) TableName() string { return "servers" }

// UserStats carries the per-user server counter, the second leg of the
// membership transaction.
type UserStats struct {
	UserID      string `gorm:"type:text;primaryKey" json:"user_id"`
	ServerCount int64  `gorm:"not null;default:0" json:"server_count"`
}

func (UserStats) TableName() string { return "user_stats" }

// Invite is a shareable join code for a server.
type Invite struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ServerID  string    `gorm:"type:text;not null;index" json:"server_id"`
	InviterID string    `gorm:"type:text;not null" json:"inviter_id"`
	Code      string    `gorm:"type:text;not null;uniqueIndex:ux_invites_code" json:"code"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Invite) TableName() string { return "server_invites" }
