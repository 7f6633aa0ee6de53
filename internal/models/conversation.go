package models

import "time"

// Conversation is a direct-message container between workspace members.
type Conversation struct {
	ID          uint                 `gorm:"primaryKey" json:"id"`
	WorkspaceID uint                 `gorm:"not null;index" json:"workspace_id"`
	Members     []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

type ConversationMember struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;uniqueIndex:idx_conversation_member" json:"conversation_id"`
	MemberID       uint      `gorm:"not null;uniqueIndex:idx_conversation_member;index" json:"member_id"`
	CreatedAt      time.Time `json:"created_at"`
}
