package services

import (
	"time"

	"github.com/PAAPII10/slack-clone-sub001/internal/models"
)

// The membership engine is the pure decision core of the huddle
// lifecycle: every function takes the current session and participant
// rows plus an action and returns a huddlePlan describing exactly what
// to write. No I/O happens here; the lifecycle service loads state,
// calls one plan function and applies the result inside a single
// transaction.

// huddlePlan is the outcome of one engine decision.
type huddlePlan struct {
	Session *models.HuddleSession

	// Inserts and Updates are participant rows to persist. Updates
	// point into the slice the engine was given.
	Inserts []*models.HuddleParticipant
	Updates []*models.HuddleParticipant

	// Actor is the acting member's participant row after the decision.
	Actor *models.HuddleParticipant

	// PromotedID is the participant promoted to host, 0 if none.
	PromotedID uint

	// Ended is true when the session reached a terminal status.
	// Declined distinguishes the declined terminal from ended.
	Ended    bool
	Declined bool

	// RoomAssigned is true when this decision set the session's room id.
	RoomAssigned bool

	// MuteChanged is true when the decision only flipped a mute flag.
	MuteChanged bool

	// ParticipantCount is the number of active joined participants
	// after the decision.
	ParticipantCount int

	// NoOp marks a tolerated duplicate action; nothing is written.
	NoOp bool
}

// wroteActor reports whether the plan inserted or updated the acting
// participant's row.
func (p *huddlePlan) wroteActor() bool {
	for _, q := range p.Inserts {
		if q == p.Actor {
			return true
		}
	}
	for _, q := range p.Updates {
		if q == p.Actor {
			return true
		}
	}
	return false
}

func findParticipant(parts []models.HuddleParticipant, memberID uint) *models.HuddleParticipant {
	for i := range parts {
		if parts[i].MemberID == memberID {
			return &parts[i]
		}
	}
	return nil
}

// activeJoined counts participants who are in the call right now.
func activeJoined(parts []models.HuddleParticipant) int {
	n := 0
	for i := range parts {
		if parts[i].LeftAt == nil && parts[i].Status == models.ParticipantStatusJoined {
			n++
		}
	}
	return n
}

// promoteCandidate picks the next host: the earliest-joined active
// participant, ties broken by insertion order. Participants still in
// waiting state are never promoted.
func promoteCandidate(parts []models.HuddleParticipant) *models.HuddleParticipant {
	var best *models.HuddleParticipant
	for i := range parts {
		p := &parts[i]
		if p.LeftAt != nil || p.Status != models.ParticipantStatusJoined || p.JoinedAt == nil {
			continue
		}
		if best == nil || p.JoinedAt.Before(*best.JoinedAt) ||
			(p.JoinedAt.Equal(*best.JoinedAt) && p.ID < best.ID) {
			best = p
		}
	}
	return best
}

func endSession(session *models.HuddleSession, status string, now time.Time) {
	session.Status = status
	session.IsActive = false
	session.EndedAt = &now
}

// planCreateSession starts a brand new session for a source. The creator
// becomes host; on a channel they are joined immediately, on a DM every
// party to the conversation is pre-enrolled as waiting (ringing
// semantics) until someone joins with a room.
func planCreateSession(source models.HuddleSource, workspaceID uint, actor *models.Member, conversationMemberIDs []uint, startMuted bool, now time.Time) *huddlePlan {
	session := &models.HuddleSession{
		WorkspaceID: workspaceID,
		SourceType:  source.Type,
		CreatedBy:   actor.ID,
		Status:      models.HuddleStatusCreated,
		IsActive:    true,
		StartedAt:   now,
	}
	if source.IsDM() {
		session.ConversationID = &source.ID
	} else {
		session.ChannelID = &source.ID
	}

	plan := &huddlePlan{Session: session}

	creator := &models.HuddleParticipant{
		MemberID: actor.ID,
		Role:     models.ParticipantRoleHost,
		Status:   models.ParticipantStatusJoined,
		IsMuted:  startMuted,
		IsActive: true,
	}
	if source.IsDM() {
		creator.Status = models.ParticipantStatusWaiting
	} else {
		joined := now
		creator.JoinedAt = &joined
	}
	plan.Inserts = append(plan.Inserts, creator)
	plan.Actor = creator

	if source.IsDM() {
		for _, memberID := range conversationMemberIDs {
			if memberID == actor.ID {
				continue
			}
			plan.Inserts = append(plan.Inserts, &models.HuddleParticipant{
				MemberID: memberID,
				Role:     models.ParticipantRoleMember,
				Status:   models.ParticipantStatusWaiting,
				IsActive: true,
			})
		}
	}

	if creator.Status == models.ParticipantStatusJoined {
		plan.ParticipantCount = 1
	}
	return plan
}

// planJoinExisting adds the actor to an already-active session, reusing
// their old participant row on rejoin. Joining a session you are already
// active in is a no-op.
func planJoinExisting(session *models.HuddleSession, parts []models.HuddleParticipant, actor *models.Member, startMuted bool, now time.Time) *huddlePlan {
	plan := &huddlePlan{Session: session}
	inserted := false

	p := findParticipant(parts, actor.ID)
	switch {
	case p == nil:
		inserted = true
		np := &models.HuddleParticipant{
			SessionID: session.ID,
			MemberID:  actor.ID,
			Role:      models.ParticipantRoleMember,
			Status:    models.ParticipantStatusJoined,
			IsMuted:   startMuted,
			IsActive:  true,
		}
		// Normally a host already exists; an empty session can happen
		// when every prior participant left between the stale-active
		// lookup and this join.
		if len(parts) == 0 {
			np.Role = models.ParticipantRoleHost
		}
		if session.Source().IsDM() {
			np.Status = models.ParticipantStatusWaiting
		} else {
			joined := now
			np.JoinedAt = &joined
		}
		plan.Inserts = append(plan.Inserts, np)
		plan.Actor = np
	case p.LeftAt != nil:
		// Rejoin: same row, fresh join time.
		p.LeftAt = nil
		joined := now
		p.JoinedAt = &joined
		p.Status = models.ParticipantStatusJoined
		p.IsMuted = startMuted
		p.IsActive = true
		plan.Updates = append(plan.Updates, p)
		plan.Actor = p
	default:
		plan.NoOp = true
		plan.Actor = p
	}

	// Rejoins are already reflected in parts; fresh inserts are not.
	plan.ParticipantCount = activeJoined(parts)
	if inserted && plan.Actor.Status == models.ParticipantStatusJoined {
		plan.ParticipantCount++
	}
	return plan
}

// planJoinWithRoom transitions the actor to joined and assigns the
// transport room to the session if it does not have one yet. The first
// joiner moves the session from created to started. A repeat join by an
// already-joined participant changes nothing and is a no-op.
func planJoinWithRoom(session *models.HuddleSession, parts []models.HuddleParticipant, actorMemberID uint, roomID string, now time.Time) (*huddlePlan, error) {
	p := findParticipant(parts, actorMemberID)
	if p == nil {
		return nil, ErrNotAParticipant
	}

	plan := &huddlePlan{Session: session}

	if session.RoomID == "" {
		session.RoomID = roomID
		plan.RoomAssigned = true
	}
	statusChanged := session.Status != models.HuddleStatusStarted
	session.Status = models.HuddleStatusStarted
	session.IsActive = true

	if p.LeftAt != nil || p.Status != models.ParticipantStatusJoined || p.JoinedAt == nil {
		p.LeftAt = nil
		joined := now
		p.JoinedAt = &joined
		p.Status = models.ParticipantStatusJoined
		p.IsActive = true
		plan.Updates = append(plan.Updates, p)
	}
	plan.Actor = p
	plan.ParticipantCount = activeJoined(parts)
	if !plan.RoomAssigned && !statusChanged && len(plan.Updates) == 0 {
		plan.NoOp = true
	}
	return plan, nil
}

// planLeave removes the actor from the session. Duplicate leaves are
// tolerated. On a channel, a departing host hands off to the
// earliest-joined remaining participant; the last one out ends the
// session. On a DM either party leaving ends the call for everyone.
func planLeave(session *models.HuddleSession, parts []models.HuddleParticipant, actorMemberID uint, now time.Time) *huddlePlan {
	plan := &huddlePlan{Session: session}

	p := findParticipant(parts, actorMemberID)
	if p == nil || p.LeftAt != nil {
		plan.NoOp = true
		plan.Actor = p
		plan.ParticipantCount = activeJoined(parts)
		return plan
	}

	if session.Source().IsDM() {
		// A 1:1 call has no meaningful remaining-host state; end it
		// for everyone.
		for i := range parts {
			q := &parts[i]
			if q.LeftAt == nil {
				left := now
				q.LeftAt = &left
				q.Status = models.ParticipantStatusLeft
				q.IsActive = false
				plan.Updates = append(plan.Updates, q)
			}
		}
		endSession(session, models.HuddleStatusEnded, now)
		plan.Ended = true
		plan.Actor = p
		plan.ParticipantCount = 0
		return plan
	}

	wasHost := p.Role == models.ParticipantRoleHost
	left := now
	p.LeftAt = &left
	p.Status = models.ParticipantStatusLeft
	p.IsActive = false
	plan.Updates = append(plan.Updates, p)
	plan.Actor = p

	remaining := activeJoined(parts)
	plan.ParticipantCount = remaining
	if remaining == 0 {
		endSession(session, models.HuddleStatusEnded, now)
		plan.Ended = true
		return plan
	}

	if wasHost {
		if next := promoteCandidate(parts); next != nil {
			next.Role = models.ParticipantRoleHost
			plan.PromotedID = next.ID
			plan.Updates = append(plan.Updates, next)
		}
	}
	return plan
}

// planDecline rejects a DM invitation before joining. When nobody is
// left in the session it goes terminal: declined if nobody ever joined,
// ended otherwise.
func planDecline(session *models.HuddleSession, parts []models.HuddleParticipant, actorMemberID uint, now time.Time) (*huddlePlan, error) {
	p := findParticipant(parts, actorMemberID)
	if p == nil {
		return nil, ErrNotAParticipant
	}

	plan := &huddlePlan{Session: session, Actor: p}

	if p.LeftAt == nil {
		left := now
		p.LeftAt = &left
		p.Status = models.ParticipantStatusDeclined
		p.IsActive = false
		plan.Updates = append(plan.Updates, p)
	}

	anyActive := false
	anyEverJoined := false
	for i := range parts {
		if parts[i].LeftAt == nil {
			anyActive = true
		}
		if parts[i].JoinedAt != nil {
			anyEverJoined = true
		}
	}
	if !anyActive {
		if anyEverJoined {
			endSession(session, models.HuddleStatusEnded, now)
		} else {
			endSession(session, models.HuddleStatusDeclined, now)
			plan.Declined = true
		}
		plan.Ended = true
	}
	plan.ParticipantCount = activeJoined(parts)
	return plan, nil
}

// planSetMute flips the actor's mute flag. Only a currently joined
// participant can be muted or unmuted.
func planSetMute(session *models.HuddleSession, parts []models.HuddleParticipant, actorMemberID uint, muted bool) (*huddlePlan, error) {
	p := findParticipant(parts, actorMemberID)
	if p == nil || p.LeftAt != nil || p.Status != models.ParticipantStatusJoined {
		return nil, ErrNotActiveParticipant
	}
	plan := &huddlePlan{Session: session, Actor: p, ParticipantCount: activeJoined(parts)}
	if p.IsMuted == muted {
		plan.NoOp = true
		return plan, nil
	}
	p.IsMuted = muted
	plan.MuteChanged = true
	plan.Updates = append(plan.Updates, p)
	return plan, nil
}

// planClose force-ends a session regardless of who is still in it.
func planClose(session *models.HuddleSession, parts []models.HuddleParticipant, now time.Time) *huddlePlan {
	plan := &huddlePlan{Session: session}
	for i := range parts {
		p := &parts[i]
		if p.LeftAt == nil {
			left := now
			p.LeftAt = &left
			p.Status = models.ParticipantStatusLeft
			p.IsActive = false
			plan.Updates = append(plan.Updates, p)
		}
	}
	endSession(session, models.HuddleStatusEnded, now)
	plan.Ended = true
	return plan
}
