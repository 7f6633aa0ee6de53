package models

import "time"

// HuddleSession is one ad-hoc voice/video call attached to a channel or
// a direct-message conversation. At most one session per source may have
// IsActive = true, enforced by partial unique indexes on the source
// columns; Version gates every mutation (compare-and-swap).
type HuddleSession struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	WorkspaceID    uint                `gorm:"not null;index" json:"workspace_id"`
	SourceType     string              `gorm:"size:10;not null;index:idx_huddle_source" json:"source_type"`
	ChannelID      *uint               `gorm:"index:idx_huddle_source;uniqueIndex:idx_one_active_channel_huddle,where:is_active" json:"channel_id,omitempty"`
	ConversationID *uint               `gorm:"index:idx_huddle_source;uniqueIndex:idx_one_active_dm_huddle,where:is_active" json:"conversation_id,omitempty"`
	CreatedBy      uint                `gorm:"not null" json:"created_by"`
	RoomID         string              `gorm:"size:64" json:"room_id,omitempty"`
	Status         string              `gorm:"size:20;not null;default:'created'" json:"status"`
	IsActive       bool                `gorm:"not null;default:true;index" json:"is_active"`
	Version        uint                `gorm:"not null;default:0" json:"-"`
	StartedAt      time.Time           `json:"started_at"`
	EndedAt        *time.Time          `json:"ended_at,omitempty"`
	Participants   []HuddleParticipant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

const (
	HuddleStatusCreated  = "created"
	HuddleStatusStarted  = "started"
	HuddleStatusEnded    = "ended"
	HuddleStatusDeclined = "declined"
)

const (
	SourceTypeChannel = "channel"
	SourceTypeDM      = "dm"
)

// HuddleParticipant is one member's relationship to one session. Leaving
// is a soft transition (LeftAt set); rejoin reuses the same row. Rows are
// hard-deleted only by the deferred cleanup of a declined DM session.
type HuddleParticipant struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SessionID uint       `gorm:"not null;uniqueIndex:idx_session_member" json:"session_id"`
	MemberID  uint       `gorm:"not null;uniqueIndex:idx_session_member;index" json:"member_id"`
	Role      string     `gorm:"size:20;not null;default:'participant'" json:"role"`
	Status    string     `gorm:"size:20;not null" json:"status"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
	IsMuted   bool       `gorm:"not null;default:false" json:"is_muted"`
	IsActive  bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

const (
	ParticipantRoleHost   = "host"
	ParticipantRoleMember = "participant"
)

const (
	ParticipantStatusWaiting  = "waiting"
	ParticipantStatusJoined   = "joined"
	ParticipantStatusLeft     = "left"
	ParticipantStatusDeclined = "declined"
)

// HuddleSource identifies where a session lives: a channel or a DM
// conversation. Lookup and leave policy branch on the type.
type HuddleSource struct {
	Type string
	ID   uint
}

func ChannelSource(channelID uint) HuddleSource {
	return HuddleSource{Type: SourceTypeChannel, ID: channelID}
}

func ConversationSource(conversationID uint) HuddleSource {
	return HuddleSource{Type: SourceTypeDM, ID: conversationID}
}

func (s HuddleSource) IsDM() bool { return s.Type == SourceTypeDM }

// Source reconstructs the tagged source of an existing session.
func (h *HuddleSession) Source() HuddleSource {
	if h.SourceType == SourceTypeDM && h.ConversationID != nil {
		return ConversationSource(*h.ConversationID)
	}
	if h.ChannelID != nil {
		return ChannelSource(*h.ChannelID)
	}
	return HuddleSource{Type: h.SourceType}
}
