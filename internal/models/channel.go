package models

import "time"

type Channel struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	WorkspaceID uint            `gorm:"not null;index" json:"workspace_id"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	IsPrivate   bool            `gorm:"not null;default:false" json:"is_private"`
	CreatedBy   uint            `gorm:"not null" json:"created_by"`
	Members     []ChannelMember `gorm:"foreignKey:ChannelID" json:"members,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ChannelMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChannelID uint      `gorm:"not null;uniqueIndex:idx_channel_member" json:"channel_id"`
	MemberID  uint      `gorm:"not null;uniqueIndex:idx_channel_member;index" json:"member_id"`
	JoinedAt  time.Time `json:"joined_at"`
}
