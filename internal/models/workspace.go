package models

import "time"

type Workspace struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Slug      string    `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	CreatedBy uint      `gorm:"not null" json:"created_by"`
	Members   []Member  `gorm:"foreignKey:WorkspaceID" json:"members,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a user's membership in one workspace. ActiveHuddleID is a
// derived back-reference to the huddle the member is currently in; the
// participant records are the source of truth and the field can always
// be re-derived from them.
type Member struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID    uint      `gorm:"not null;uniqueIndex:idx_workspace_user" json:"workspace_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_workspace_user;index" json:"user_id"`
	User           User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role           string    `gorm:"size:20;not null;default:'member'" json:"role"`
	ActiveHuddleID *uint     `gorm:"index" json:"active_huddle_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)
