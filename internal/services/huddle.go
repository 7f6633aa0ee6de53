package services

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/PAAPII10/slack-clone-sub001/internal/models"
	"github.com/PAAPII10/slack-clone-sub001/internal/ws"
)

// maxCASRetries bounds the optimistic-concurrency retry loop around
// each lifecycle mutation.
const maxCASRetries = 5

// errVersionConflict aborts a transaction whose session version check
// lost the race; the operation is retried from scratch.
var errVersionConflict = errors.New("huddle version conflict")

// Scheduler fires a one-shot delayed job that hard-deletes a declined
// session's records. Delivery is at-least-once; the handler must be
// idempotent.
type Scheduler interface {
	ScheduleSessionDelete(sessionID uint, delay time.Duration) error
}

// RoomCloser force-disconnects everyone from a transport room once the
// owning session has ended.
type RoomCloser interface {
	DeleteRoom(roomName string) error
}

type HuddleService struct {
	db           *gorm.DB
	hub          *ws.Hub
	scheduler    Scheduler
	rooms        RoomCloser
	cleanupDelay time.Duration
}

func NewHuddleService(db *gorm.DB, hub *ws.Hub, scheduler Scheduler, rooms RoomCloser, cleanupDelay time.Duration) *HuddleService {
	return &HuddleService{db: db, hub: hub, scheduler: scheduler, rooms: rooms, cleanupDelay: cleanupDelay}
}

type LeaveResult struct {
	SessionID        uint   `json:"session_id"`
	RoomID           string `json:"room_id,omitempty"`
	ParticipantCount int    `json:"participant_count"`
	Ended            bool   `json:"ended"`
}

type JoinResult struct {
	SessionID uint   `json:"session_id"`
	RoomID    string `json:"room_id"`
}

// CreateOrJoin finds the active session for the source and joins the
// actor, or creates a fresh one if none exists. Joining a session you
// are already in is a no-op that returns the session unchanged.
func (s *HuddleService) CreateOrJoin(actor *models.Member, source models.HuddleSource, startMuted bool) (*models.HuddleSession, error) {
	if err := s.checkSourceAccess(actor, source); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		session, plan, err := s.createOrJoinOnce(actor, source, startMuted)
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publishPlan(session, plan)
		return session, nil
	}
	return nil, ErrConflict
}

func (s *HuddleService) createOrJoinOnce(actor *models.Member, source models.HuddleSource, startMuted bool) (*models.HuddleSession, *huddlePlan, error) {
	var session *models.HuddleSession
	var plan *huddlePlan

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := activeSessionForSource(tx, source)
		if err != nil {
			return err
		}

		now := time.Now()
		if existing == nil {
			var conversationMemberIDs []uint
			if source.IsDM() {
				conversationMemberIDs, err = conversationMembers(tx, source.ID)
				if err != nil {
					return err
				}
			}
			plan = planCreateSession(source, actor.WorkspaceID, actor, conversationMemberIDs, startMuted, now)
			session = plan.Session
			// A concurrent create for the same source trips the partial
			// unique index on the session's source column. The losing
			// side rolls back and retries, finding the winner's session.
			if err := tx.Create(session).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errVersionConflict
				}
				return err
			}
			for _, p := range plan.Inserts {
				p.SessionID = session.ID
				if err := tx.Create(p).Error; err != nil {
					return err
				}
			}
		} else {
			session = existing
			parts, err := sessionParticipants(tx, session.ID)
			if err != nil {
				return err
			}
			plan = planJoinExisting(session, parts, actor, startMuted, now)
			if err := s.applyPlan(tx, plan); err != nil {
				return err
			}
		}

		if plan.Actor != nil && plan.Actor.Status == models.ParticipantStatusJoined {
			if err := setActiveHuddle(tx, actor.ID, session.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return session, plan, nil
}

// JoinWithRoom marks the actor joined and binds the transport room to
// the session. The first join mints the room id and moves the session
// from created to started; later joins see the same room id.
func (s *HuddleService) JoinWithRoom(actor *models.Member, sessionID uint, roomID string) (*JoinResult, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var result *JoinResult
		var session *models.HuddleSession
		var plan *huddlePlan

		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			session, err = loadActiveSession(tx, actor, sessionID)
			if err != nil {
				return err
			}
			if err := s.checkSourceAccess(actor, session.Source()); err != nil {
				return err
			}
			parts, err := sessionParticipants(tx, session.ID)
			if err != nil {
				return err
			}

			candidate := roomID
			if candidate == "" && session.RoomID == "" {
				candidate = generateRoomID(session.Source())
			}
			plan, err = planJoinWithRoom(session, parts, actor.ID, candidate, time.Now())
			if err != nil {
				return err
			}
			if err := s.applyPlan(tx, plan); err != nil {
				return err
			}
			if err := setActiveHuddle(tx, actor.ID, session.ID); err != nil {
				return err
			}
			result = &JoinResult{SessionID: session.ID, RoomID: session.RoomID}
			return nil
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publishPlan(session, plan)
		return result, nil
	}
	return nil, ErrConflict
}

// Leave removes the actor from the session. A duplicate leave is a
// no-op that reports the current participant count. The last active
// participant out ends the session; on a DM either party leaving ends
// it for everyone.
func (s *HuddleService) Leave(actor *models.Member, sessionID uint) (*LeaveResult, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var session *models.HuddleSession
		var plan *huddlePlan

		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			session, err = loadActiveSession(tx, actor, sessionID)
			if err != nil {
				return err
			}
			parts, err := sessionParticipants(tx, session.ID)
			if err != nil {
				return err
			}
			plan = planLeave(session, parts, actor.ID, time.Now())
			if err := s.applyPlan(tx, plan); err != nil {
				return err
			}
			return clearActiveHuddle(tx, session.ID, plan.Updates)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if plan.Ended {
			s.closeTransportRoom(session)
		}
		s.publishPlan(session, plan)
		return &LeaveResult{
			SessionID:        session.ID,
			RoomID:           session.RoomID,
			ParticipantCount: plan.ParticipantCount,
			Ended:            plan.Ended,
		}, nil
	}
	return nil, ErrConflict
}

// Decline rejects a DM invitation before joining. Only DM sessions have
// an invitation to reject; a channel huddle cannot be declined. When the
// decline empties the session it goes terminal and a delayed hard-delete
// of its records is scheduled, leaving the UI a short window to show the
// declined state.
func (s *HuddleService) Decline(actor *models.Member, sessionID uint) (uint, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var session *models.HuddleSession
		var plan *huddlePlan

		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			session, err = loadActiveSession(tx, actor, sessionID)
			if err != nil {
				return err
			}
			if !session.Source().IsDM() {
				return ErrNotFound
			}
			parts, err := sessionParticipants(tx, session.ID)
			if err != nil {
				return err
			}
			plan, err = planDecline(session, parts, actor.ID, time.Now())
			if err != nil {
				return err
			}
			if err := s.applyPlan(tx, plan); err != nil {
				return err
			}
			return clearActiveHuddle(tx, session.ID, plan.Updates)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return 0, err
		}

		if plan.Ended {
			s.closeTransportRoom(session)
			if s.scheduler != nil {
				if err := s.scheduler.ScheduleSessionDelete(session.ID, s.cleanupDelay); err != nil {
					log.Error().Err(err).Uint("session_id", session.ID).Msg("huddle: failed to schedule cleanup")
				}
			}
		}
		s.publishPlan(session, plan)
		return session.ID, nil
	}
	return 0, ErrConflict
}

// SetMute flips the actor's mute flag in an active session.
func (s *HuddleService) SetMute(actor *models.Member, sessionID uint, muted bool) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var session *models.HuddleSession
		var plan *huddlePlan

		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			session, err = loadActiveSession(tx, actor, sessionID)
			if err != nil {
				return err
			}
			parts, err := sessionParticipants(tx, session.ID)
			if err != nil {
				return err
			}
			plan, err = planSetMute(session, parts, actor.ID, muted)
			if err != nil {
				return err
			}
			return s.applyPlan(tx, plan)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}
		s.publishPlan(session, plan)
		return nil
	}
	return ErrConflict
}

// CloseIfEmpty force-ends the active session for a source regardless of
// participant state. Used by UI-triggered cleanup of stale sessions.
func (s *HuddleService) CloseIfEmpty(actor *models.Member, source models.HuddleSource) (uint, error) {
	if err := s.checkSourceAccess(actor, source); err != nil {
		return 0, err
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var session *models.HuddleSession
		var plan *huddlePlan

		err := s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			session, err = activeSessionForSource(tx, source)
			if err != nil {
				return err
			}
			if session == nil {
				return ErrNotFound
			}
			parts, err := sessionParticipants(tx, session.ID)
			if err != nil {
				return err
			}
			plan = planClose(session, parts, time.Now())
			if err := s.applyPlan(tx, plan); err != nil {
				return err
			}
			return clearActiveHuddle(tx, session.ID, plan.Updates)
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return 0, err
		}

		s.closeTransportRoom(session)
		s.publishPlan(session, plan)
		return session.ID, nil
	}
	return 0, ErrConflict
}

// DeleteSessionData hard-deletes a session and its participants. Invoked
// by the cleanup scheduler with at-least-once delivery, so deleting an
// already-deleted session is a no-op.
func (s *HuddleService) DeleteSessionData(sessionID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Member{}).
			Where("active_huddle_id = ?", sessionID).
			Update("active_huddle_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).
			Delete(&models.HuddleParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.HuddleSession{}, sessionID).Error
	})
}

// --- query surface ---

// GetSession returns an active session by id, scoped to the actor's
// workspace.
func (s *HuddleService) GetSession(actor *models.Member, sessionID uint) (*models.HuddleSession, error) {
	return loadActiveSession(s.db, actor, sessionID)
}

// Participant returns the actor's participant record in a session, or
// ErrNotAParticipant.
func (s *HuddleService) Participant(actor *models.Member, sessionID uint) (*models.HuddleParticipant, error) {
	var part models.HuddleParticipant
	err := s.db.Where("session_id = ? AND member_id = ?", sessionID, actor.ID).First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAParticipant
	}
	if err != nil {
		return nil, err
	}
	return &part, nil
}

// GetActiveSession returns the active session for a source, or nil.
func (s *HuddleService) GetActiveSession(source models.HuddleSource) (*models.HuddleSession, error) {
	return activeSessionForSource(s.db, source)
}

type RosterEntry struct {
	ParticipantID uint       `json:"participant_id"`
	MemberID      uint       `json:"member_id"`
	UserID        uint       `json:"user_id"`
	DisplayName   string     `json:"display_name"`
	Role          string     `json:"role"`
	IsMuted       bool       `json:"is_muted"`
	JoinedAt      *time.Time `json:"joined_at,omitempty"`
}

// GetRoster lists the currently joined participants of a session with
// their member profiles.
func (s *HuddleService) GetRoster(sessionID uint) ([]RosterEntry, error) {
	var parts []models.HuddleParticipant
	if err := s.db.Where("session_id = ? AND left_at IS NULL AND status = ?", sessionID, models.ParticipantStatusJoined).
		Order("joined_at ASC, id ASC").
		Find(&parts).Error; err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return []RosterEntry{}, nil
	}

	memberIDs := make([]uint, len(parts))
	for i, p := range parts {
		memberIDs[i] = p.MemberID
	}
	var members []models.Member
	if err := s.db.Preload("User").Where("id IN ?", memberIDs).Find(&members).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Member, len(members))
	for i := range members {
		byID[members[i].ID] = &members[i]
	}

	roster := make([]RosterEntry, 0, len(parts))
	for _, p := range parts {
		entry := RosterEntry{
			ParticipantID: p.ID,
			MemberID:      p.MemberID,
			Role:          p.Role,
			IsMuted:       p.IsMuted,
			JoinedAt:      p.JoinedAt,
		}
		if m, ok := byID[p.MemberID]; ok {
			entry.UserID = m.UserID
			entry.DisplayName = m.User.Name()
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

type MySession struct {
	Session *models.HuddleSession `json:"session"`
	Roster  []RosterEntry         `json:"roster"`
}

// GetMySession returns the session the actor is currently joined to,
// with its roster, or nil.
func (s *HuddleService) GetMySession(actor *models.Member) (*MySession, error) {
	var part models.HuddleParticipant
	err := s.db.Where("member_id = ? AND left_at IS NULL AND status = ?", actor.ID, models.ParticipantStatusJoined).
		Order("id DESC").
		First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session models.HuddleSession
	err = s.db.Where("id = ? AND is_active = ?", part.SessionID, true).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	roster, err := s.GetRoster(session.ID)
	if err != nil {
		return nil, err
	}
	return &MySession{Session: &session, Roster: roster}, nil
}

// GetIncoming returns the DM session currently ringing for the actor: a
// waiting participant record whose session has started. Channel huddles
// are ambient and never ring.
func (s *HuddleService) GetIncoming(actor *models.Member) (*models.HuddleSession, error) {
	var session models.HuddleSession
	err := s.db.
		Joins("JOIN huddle_participants ON huddle_participants.session_id = huddle_sessions.id").
		Where("huddle_participants.member_id = ? AND huddle_participants.status = ? AND huddle_participants.left_at IS NULL",
			actor.ID, models.ParticipantStatusWaiting).
		Where("huddle_sessions.status = ? AND huddle_sessions.is_active = ? AND huddle_sessions.source_type = ?",
			models.HuddleStatusStarted, true, models.SourceTypeDM).
		Order("huddle_sessions.id DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// --- internals ---

func scopeSource(q *gorm.DB, source models.HuddleSource) *gorm.DB {
	if source.IsDM() {
		return q.Where("source_type = ? AND conversation_id = ?", models.SourceTypeDM, source.ID)
	}
	return q.Where("source_type = ? AND channel_id = ?", models.SourceTypeChannel, source.ID)
}

func activeSessionForSource(db *gorm.DB, source models.HuddleSource) (*models.HuddleSession, error) {
	var session models.HuddleSession
	err := scopeSource(db, source).Where("is_active = ?", true).
		Order("id DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func sessionParticipants(tx *gorm.DB, sessionID uint) ([]models.HuddleParticipant, error) {
	var parts []models.HuddleParticipant
	if err := tx.Where("session_id = ?", sessionID).Order("id ASC").Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}

func conversationMembers(tx *gorm.DB, conversationID uint) ([]uint, error) {
	var rows []models.ConversationMember
	if err := tx.Where("conversation_id = ?", conversationID).Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.MemberID
	}
	return ids, nil
}

// loadActiveSession fetches a session by id, requiring it to be active
// and to belong to the actor's workspace.
func loadActiveSession(tx *gorm.DB, actor *models.Member, sessionID uint) (*models.HuddleSession, error) {
	var session models.HuddleSession
	err := tx.Where("id = ? AND workspace_id = ?", sessionID, actor.WorkspaceID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrNotFound
	}
	return &session, nil
}

// applyPlan persists an engine decision. The session row is written with
// a compare-and-swap on its version; participant writes ride the same
// transaction so the version gates them too.
func (s *HuddleService) applyPlan(tx *gorm.DB, plan *huddlePlan) error {
	if plan.NoOp {
		return nil
	}

	session := plan.Session
	res := tx.Model(&models.HuddleSession{}).
		Where("id = ? AND version = ?", session.ID, session.Version).
		Updates(map[string]interface{}{
			"room_id":   session.RoomID,
			"status":    session.Status,
			"is_active": session.IsActive,
			"ended_at":  session.EndedAt,
			"version":   session.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errVersionConflict
	}
	session.Version++

	for _, p := range plan.Inserts {
		p.SessionID = session.ID
		if err := tx.Create(p).Error; err != nil {
			return err
		}
	}
	for _, p := range plan.Updates {
		if err := tx.Save(p).Error; err != nil {
			return err
		}
	}
	return nil
}

func setActiveHuddle(tx *gorm.DB, memberID, sessionID uint) error {
	return tx.Model(&models.Member{}).Where("id = ?", memberID).
		Update("active_huddle_id", sessionID).Error
}

// clearActiveHuddle drops the denormalized back-reference for every
// participant this plan marked as no longer active, but only where it
// still points at this session.
func clearActiveHuddle(tx *gorm.DB, sessionID uint, updated []*models.HuddleParticipant) error {
	for _, p := range updated {
		if p.LeftAt == nil {
			continue
		}
		if err := tx.Model(&models.Member{}).
			Where("id = ? AND active_huddle_id = ?", p.MemberID, sessionID).
			Update("active_huddle_id", nil).Error; err != nil {
			return err
		}
	}
	return nil
}

// checkSourceAccess verifies the actor can huddle in the source: channel
// membership for channels, being a party to the conversation for DMs.
func (s *HuddleService) checkSourceAccess(actor *models.Member, source models.HuddleSource) error {
	if source.IsDM() {
		var conversation models.Conversation
		if err := s.db.Where("id = ? AND workspace_id = ?", source.ID, actor.WorkspaceID).
			First(&conversation).Error; err != nil {
			return ErrNotFound
		}
		var count int64
		s.db.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND member_id = ?", source.ID, actor.ID).
			Count(&count)
		if count == 0 {
			return ErrNoAccess
		}
		return nil
	}

	var channel models.Channel
	if err := s.db.Where("id = ? AND workspace_id = ?", source.ID, actor.WorkspaceID).
		First(&channel).Error; err != nil {
		return ErrNotFound
	}
	var count int64
	s.db.Model(&models.ChannelMember{}).
		Where("channel_id = ? AND member_id = ?", source.ID, actor.ID).
		Count(&count)
	if count == 0 {
		return ErrNoAccess
	}
	return nil
}

func (s *HuddleService) closeTransportRoom(session *models.HuddleSession) {
	if s.rooms == nil || session.RoomID == "" {
		return
	}
	if err := s.rooms.DeleteRoom(session.RoomID); err != nil {
		log.Warn().Err(err).Str("room_id", session.RoomID).Msg("huddle: failed to close transport room")
	}
}

const roomIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-"

// generateRoomID mints a transport room identifier: a purpose prefix
// plus 20 characters of [A-Za-z0-9_-]. Collision-resistant, not secret.
func generateRoomID(source models.HuddleSource) string {
	prefix := "channel_huddle_"
	if source.IsDM() {
		prefix = "huddle_"
	}
	b := make([]byte, 20)
	for i := range b {
		b[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return prefix + string(b)
}

// publishPlan pushes post-commit hub events. Best effort; a mutation's
// result never depends on delivery.
func (s *HuddleService) publishPlan(session *models.HuddleSession, plan *huddlePlan) {
	if s.hub == nil || plan == nil || plan.NoOp {
		return
	}
	sessionTopic := fmt.Sprintf("session:%d", session.ID)

	switch {
	case plan.Declined:
		s.hub.Broadcast(sessionTopic, ws.WSMessage{Type: "huddle_declined", Data: session})
	case plan.Ended:
		s.hub.Broadcast(sessionTopic, ws.WSMessage{Type: "huddle_ended", Data: session})
	case plan.MuteChanged:
		s.hub.Broadcast(sessionTopic, ws.WSMessage{Type: "mute_changed", Data: plan.Actor})
	default:
		if plan.RoomAssigned {
			s.hub.Broadcast(sessionTopic, ws.WSMessage{Type: "huddle_started", Data: session})
			s.ringWaiting(session)
		}
		if plan.Actor != nil && plan.wroteActor() {
			event := "participant_joined"
			if plan.Actor.LeftAt != nil {
				event = "participant_left"
			}
			s.hub.Broadcast(sessionTopic, ws.WSMessage{Type: event, Data: plan.Actor})
		}
		if plan.PromotedID != 0 {
			s.hub.Broadcast(sessionTopic, ws.WSMessage{Type: "host_changed", Data: plan.PromotedID})
		}
	}
}

// ringWaiting notifies each still-waiting DM invitee that a huddle
// started ringing for them.
func (s *HuddleService) ringWaiting(session *models.HuddleSession) {
	if !session.Source().IsDM() {
		return
	}
	var waiting []models.HuddleParticipant
	if err := s.db.Where("session_id = ? AND status = ? AND left_at IS NULL",
		session.ID, models.ParticipantStatusWaiting).Find(&waiting).Error; err != nil {
		log.Error().Err(err).Uint("session_id", session.ID).Msg("huddle: load waiting participants")
		return
	}
	for _, p := range waiting {
		s.hub.Broadcast(fmt.Sprintf("member:%d", p.MemberID), ws.WSMessage{
			Type: "incoming_huddle",
			Data: session,
		})
	}
}
