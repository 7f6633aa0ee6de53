package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/PAAPII10/slack-clone-sub001/internal/models"
)

type WorkspaceService struct {
	db *gorm.DB
}

func NewWorkspaceService(db *gorm.DB) *WorkspaceService {
	return &WorkspaceService{db: db}
}

// ResolveMember maps an authenticated user onto their membership in a
// workspace. Every lifecycle call threads the resolved member through
// explicitly; there is no ambient caller state below this point.
func (s *WorkspaceService) ResolveMember(workspaceID, userID uint) (*models.Member, error) {
	var member models.Member
	if err := s.db.Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&member).Error; err != nil {
		return nil, ErrUnauthorized
	}
	return &member, nil
}

func (s *WorkspaceService) CreateWorkspace(userID uint, name, slug string) (*models.Workspace, error) {
	var existing models.Workspace
	if err := s.db.Where("slug = ?", slug).First(&existing).Error; err == nil {
		return nil, errors.New("slug already taken")
	}

	workspace := models.Workspace{Name: name, Slug: slug, CreatedBy: userID}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&workspace).Error; err != nil {
			return err
		}
		member := models.Member{
			WorkspaceID: workspace.ID,
			UserID:      userID,
			Role:        models.MemberRoleAdmin,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return &workspace, nil
}

func (s *WorkspaceService) AddMember(workspaceID, userID uint) (*models.Member, error) {
	var existing models.Member
	if err := s.db.Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&existing).Error; err == nil {
		return &existing, nil
	}

	member := models.Member{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        models.MemberRoleMember,
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *WorkspaceService) CreateChannel(actor *models.Member, name string, isPrivate bool) (*models.Channel, error) {
	channel := models.Channel{
		WorkspaceID: actor.WorkspaceID,
		Name:        name,
		IsPrivate:   isPrivate,
		CreatedBy:   actor.ID,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&channel).Error; err != nil {
			return err
		}
		return tx.Create(&models.ChannelMember{
			ChannelID: channel.ID,
			MemberID:  actor.ID,
			JoinedAt:  time.Now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (s *WorkspaceService) JoinChannel(actor *models.Member, channelID uint) (*models.ChannelMember, error) {
	var channel models.Channel
	if err := s.db.Where("id = ? AND workspace_id = ?", channelID, actor.WorkspaceID).
		First(&channel).Error; err != nil {
		return nil, ErrNotFound
	}
	if channel.IsPrivate {
		return nil, ErrNoAccess
	}

	var existing models.ChannelMember
	if err := s.db.Where("channel_id = ? AND member_id = ?", channelID, actor.ID).
		First(&existing).Error; err == nil {
		return &existing, nil
	}

	member := models.ChannelMember{
		ChannelID: channelID,
		MemberID:  actor.ID,
		JoinedAt:  time.Now(),
	}
	if err := s.db.Create(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// OpenConversation finds or creates the DM conversation between the
// actor and another member of the same workspace.
func (s *WorkspaceService) OpenConversation(actor *models.Member, otherMemberID uint) (*models.Conversation, error) {
	var other models.Member
	if err := s.db.Where("id = ? AND workspace_id = ?", otherMemberID, actor.WorkspaceID).
		First(&other).Error; err != nil {
		return nil, ErrNotFound
	}

	// Existing conversation with exactly these two parties.
	var existing models.Conversation
	err := s.db.
		Joins("JOIN conversation_members cm1 ON cm1.conversation_id = conversations.id AND cm1.member_id = ?", actor.ID).
		Joins("JOIN conversation_members cm2 ON cm2.conversation_id = conversations.id AND cm2.member_id = ?", otherMemberID).
		Where("conversations.workspace_id = ?", actor.WorkspaceID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}

	conversation := models.Conversation{WorkspaceID: actor.WorkspaceID}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		for _, memberID := range []uint{actor.ID, otherMemberID} {
			if err := tx.Create(&models.ConversationMember{
				ConversationID: conversation.ID,
				MemberID:       memberID,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}
