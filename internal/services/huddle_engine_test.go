package services

import (
	"errors"
	"testing"
	"time"

	"github.com/PAAPII10/slack-clone-sub001/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) *time.Time {
	ts := t0.Add(time.Duration(sec) * time.Second)
	return &ts
}

func channelSession(id uint) *models.HuddleSession {
	channelID := uint(10)
	return &models.HuddleSession{
		ID:          id,
		WorkspaceID: 1,
		SourceType:  models.SourceTypeChannel,
		ChannelID:   &channelID,
		Status:      models.HuddleStatusStarted,
		IsActive:    true,
		RoomID:      "channel_huddle_abc",
	}
}

func dmSession(id uint) *models.HuddleSession {
	conversationID := uint(20)
	return &models.HuddleSession{
		ID:             id,
		WorkspaceID:    1,
		SourceType:     models.SourceTypeDM,
		ConversationID: &conversationID,
		Status:         models.HuddleStatusStarted,
		IsActive:       true,
		RoomID:         "huddle_xyz",
	}
}

func joined(id, memberID uint, role string, joinedAt *time.Time) models.HuddleParticipant {
	return models.HuddleParticipant{
		ID:       id,
		MemberID: memberID,
		Role:     role,
		Status:   models.ParticipantStatusJoined,
		JoinedAt: joinedAt,
		IsActive: true,
	}
}

func waiting(id, memberID uint) models.HuddleParticipant {
	return models.HuddleParticipant{
		ID:       id,
		MemberID: memberID,
		Role:     models.ParticipantRoleMember,
		Status:   models.ParticipantStatusWaiting,
		IsActive: true,
	}
}

func activeHosts(parts []models.HuddleParticipant) int {
	n := 0
	for _, p := range parts {
		if p.LeftAt == nil && p.Status == models.ParticipantStatusJoined && p.Role == models.ParticipantRoleHost {
			n++
		}
	}
	return n
}

func TestLeavePromotesEarliestJoined(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
		joined(2, 101, models.ParticipantRoleMember, at(10)),
		joined(3, 102, models.ParticipantRoleMember, at(20)),
	}

	plan := planLeave(session, parts, 100, *at(30))

	if plan.Ended {
		t.Fatal("session should stay active with participants remaining")
	}
	if plan.PromotedID != 2 {
		t.Fatalf("promoted = %d, want participant 2 (earliest joined)", plan.PromotedID)
	}
	if parts[1].Role != models.ParticipantRoleHost {
		t.Errorf("participant 2 role = %q, want host", parts[1].Role)
	}
	if got := activeHosts(parts); got != 1 {
		t.Errorf("active hosts = %d, want exactly 1", got)
	}
	if plan.ParticipantCount != 2 {
		t.Errorf("participant count = %d, want 2", plan.ParticipantCount)
	}
}

func TestLeavePromotionTieBreaksByInsertionOrder(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(5, 100, models.ParticipantRoleHost, at(0)),
		joined(7, 101, models.ParticipantRoleMember, at(10)),
		joined(6, 102, models.ParticipantRoleMember, at(10)),
	}

	plan := planLeave(session, parts, 100, *at(30))

	if plan.PromotedID != 6 {
		t.Fatalf("promoted = %d, want participant 6 (lowest id among tied join times)", plan.PromotedID)
	}
}

func TestLeaveNeverPromotesWaitingParticipant(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
		waiting(2, 101),
		joined(3, 102, models.ParticipantRoleMember, at(15)),
	}

	plan := planLeave(session, parts, 100, *at(30))

	if plan.PromotedID != 3 {
		t.Fatalf("promoted = %d, want participant 3; waiting participants must not be promoted", plan.PromotedID)
	}
	if parts[1].Role == models.ParticipantRoleHost {
		t.Error("waiting participant was promoted to host")
	}
}

func TestLeaveLastParticipantEndsSession(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
	}

	plan := planLeave(session, parts, 100, *at(30))

	if !plan.Ended {
		t.Fatal("session should end when the last participant leaves")
	}
	if session.Status != models.HuddleStatusEnded {
		t.Errorf("status = %q, want ended", session.Status)
	}
	if session.IsActive {
		t.Error("session still marked active")
	}
	if session.EndedAt == nil {
		t.Error("EndedAt not set")
	}
	if plan.ParticipantCount != 0 {
		t.Errorf("participant count = %d, want 0", plan.ParticipantCount)
	}
}

func TestLeaveOnlyWaitingRemainEndsSession(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
		waiting(2, 101),
	}

	plan := planLeave(session, parts, 100, *at(30))

	if !plan.Ended {
		t.Fatal("session with only waiting participants left should end")
	}
	if plan.PromotedID != 0 {
		t.Errorf("promoted = %d, want none", plan.PromotedID)
	}
}

func TestDMLeaveEndsForEveryone(t *testing.T) {
	session := dmSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
		joined(2, 101, models.ParticipantRoleMember, at(5)),
	}

	plan := planLeave(session, parts, 101, *at(30))

	if !plan.Ended {
		t.Fatal("DM leave by either party should end the session")
	}
	if plan.PromotedID != 0 {
		t.Error("DM leave must not attempt host promotion")
	}
	for i := range parts {
		if parts[i].LeftAt == nil || parts[i].Status != models.ParticipantStatusLeft {
			t.Errorf("participant %d not force-marked left: status=%q", parts[i].ID, parts[i].Status)
		}
	}
	if session.Status != models.HuddleStatusEnded {
		t.Errorf("status = %q, want ended", session.Status)
	}
}

func TestLeaveByNonParticipantIsNoOp(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
	}

	plan := planLeave(session, parts, 999, *at(30))

	if !plan.NoOp {
		t.Fatal("leave by a non-participant should be a no-op")
	}
	if plan.ParticipantCount != 1 {
		t.Errorf("participant count = %d, want 1", plan.ParticipantCount)
	}
	if session.Status != models.HuddleStatusStarted {
		t.Errorf("status changed to %q on no-op", session.Status)
	}
}

func TestDeclineByLastWaitingGoesDeclined(t *testing.T) {
	session := dmSession(1)
	session.Status = models.HuddleStatusCreated
	session.RoomID = ""
	left := at(5)
	parts := []models.HuddleParticipant{
		{ID: 1, MemberID: 100, Role: models.ParticipantRoleHost, Status: models.ParticipantStatusLeft, LeftAt: left},
		waiting(2, 101),
	}

	plan, err := planDecline(session, parts, 101, *at(10))
	if err != nil {
		t.Fatalf("planDecline: %v", err)
	}

	if !plan.Declined {
		t.Fatal("session should reach declined when nobody ever joined")
	}
	if session.Status != models.HuddleStatusDeclined {
		t.Errorf("status = %q, want declined", session.Status)
	}
	if parts[1].Status != models.ParticipantStatusDeclined {
		t.Errorf("participant status = %q, want declined", parts[1].Status)
	}
}

func TestDeclineAfterSomeoneJoinedGoesEnded(t *testing.T) {
	session := dmSession(1)
	left := at(8)
	parts := []models.HuddleParticipant{
		{ID: 1, MemberID: 100, Role: models.ParticipantRoleHost, Status: models.ParticipantStatusLeft, JoinedAt: at(0), LeftAt: left},
		waiting(2, 101),
	}

	plan, err := planDecline(session, parts, 101, *at(10))
	if err != nil {
		t.Fatalf("planDecline: %v", err)
	}

	if plan.Declined {
		t.Fatal("session with a prior join should end, not decline")
	}
	if session.Status != models.HuddleStatusEnded {
		t.Errorf("status = %q, want ended", session.Status)
	}
}

func TestDeclineByNonParticipantFails(t *testing.T) {
	session := dmSession(1)
	parts := []models.HuddleParticipant{waiting(1, 100)}

	if _, err := planDecline(session, parts, 999, *at(10)); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("err = %v, want ErrNotAParticipant", err)
	}
}

func TestJoinWithRoomAssignsRoomOnce(t *testing.T) {
	session := dmSession(1)
	session.Status = models.HuddleStatusCreated
	session.RoomID = ""
	parts := []models.HuddleParticipant{
		waiting(1, 100),
		waiting(2, 101),
	}

	plan, err := planJoinWithRoom(session, parts, 100, "huddle_first", *at(0))
	if err != nil {
		t.Fatalf("planJoinWithRoom: %v", err)
	}
	if !plan.RoomAssigned || session.RoomID != "huddle_first" {
		t.Fatalf("room not assigned: %q", session.RoomID)
	}
	if session.Status != models.HuddleStatusStarted {
		t.Errorf("status = %q, want started", session.Status)
	}

	plan, err = planJoinWithRoom(session, parts, 101, "huddle_second", *at(5))
	if err != nil {
		t.Fatalf("second planJoinWithRoom: %v", err)
	}
	if plan.RoomAssigned {
		t.Error("second join must not reassign the room")
	}
	if session.RoomID != "huddle_first" {
		t.Errorf("room id changed to %q", session.RoomID)
	}
}

func TestRepeatJoinWithRoomIsNoOp(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
	}

	plan, err := planJoinWithRoom(session, parts, 100, "ignored", *at(10))
	if err != nil {
		t.Fatalf("planJoinWithRoom: %v", err)
	}

	if !plan.NoOp {
		t.Fatal("repeat join by an already-joined participant should be a no-op")
	}
	if plan.RoomAssigned || len(plan.Updates) != 0 {
		t.Errorf("no-op join still wrote state: assigned=%v updates=%d", plan.RoomAssigned, len(plan.Updates))
	}
	if plan.wroteActor() {
		t.Error("no-op join reported an actor write")
	}
	if !parts[0].JoinedAt.Equal(*at(0)) {
		t.Error("repeat join touched the join timestamp")
	}
}

func TestJoinWithRoomRequiresParticipant(t *testing.T) {
	session := dmSession(1)
	parts := []models.HuddleParticipant{waiting(1, 100)}

	if _, err := planJoinWithRoom(session, parts, 999, "huddle_x", *at(0)); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("err = %v, want ErrNotAParticipant", err)
	}
}

func TestCreateSessionDMPreEnrollsConversation(t *testing.T) {
	actor := &models.Member{ID: 100, WorkspaceID: 1}
	plan := planCreateSession(models.ConversationSource(20), 1, actor, []uint{100, 101}, true, *at(0))

	if len(plan.Inserts) != 2 {
		t.Fatalf("inserts = %d, want both conversation members enrolled", len(plan.Inserts))
	}
	creator := plan.Inserts[0]
	if creator.Role != models.ParticipantRoleHost || creator.Status != models.ParticipantStatusWaiting {
		t.Errorf("creator role=%q status=%q, want host/waiting", creator.Role, creator.Status)
	}
	if !creator.IsMuted {
		t.Error("start_muted not applied to creator")
	}
	invitee := plan.Inserts[1]
	if invitee.MemberID != 101 || invitee.Status != models.ParticipantStatusWaiting {
		t.Errorf("invitee = %+v, want member 101 waiting", invitee)
	}
	if plan.Session.Status != models.HuddleStatusCreated || !plan.Session.IsActive {
		t.Errorf("session status=%q active=%v, want created/active", plan.Session.Status, plan.Session.IsActive)
	}
}

func TestCreateSessionChannelCreatorJoins(t *testing.T) {
	actor := &models.Member{ID: 100, WorkspaceID: 1}
	plan := planCreateSession(models.ChannelSource(10), 1, actor, nil, false, *at(0))

	if len(plan.Inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(plan.Inserts))
	}
	creator := plan.Inserts[0]
	if creator.Status != models.ParticipantStatusJoined || creator.JoinedAt == nil {
		t.Errorf("channel creator should be joined immediately, got status=%q", creator.Status)
	}
	if plan.ParticipantCount != 1 {
		t.Errorf("participant count = %d, want 1", plan.ParticipantCount)
	}
}

func TestJoinExistingIdempotentWhileActive(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
	}
	actor := &models.Member{ID: 100, WorkspaceID: 1}

	plan := planJoinExisting(session, parts, actor, false, *at(10))

	if !plan.NoOp {
		t.Fatal("joining while already active should be a no-op")
	}
	if parts[0].JoinedAt == nil || !parts[0].JoinedAt.Equal(*at(0)) {
		t.Error("no-op join must not touch the existing record")
	}
}

func TestSetMuteRequiresActiveParticipant(t *testing.T) {
	session := channelSession(1)
	left := at(5)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
		{ID: 2, MemberID: 101, Status: models.ParticipantStatusLeft, JoinedAt: at(1), LeftAt: left},
	}

	if _, err := planSetMute(session, parts, 101, true); !errors.Is(err, ErrNotActiveParticipant) {
		t.Fatalf("err = %v, want ErrNotActiveParticipant", err)
	}
	if _, err := planSetMute(session, parts, 999, true); !errors.Is(err, ErrNotActiveParticipant) {
		t.Fatalf("err = %v, want ErrNotActiveParticipant", err)
	}

	plan, err := planSetMute(session, parts, 100, true)
	if err != nil {
		t.Fatalf("planSetMute: %v", err)
	}
	if !plan.MuteChanged || !parts[0].IsMuted {
		t.Error("mute flag not applied")
	}
}

func TestCloseForceEndsRegardlessOfParticipants(t *testing.T) {
	session := channelSession(1)
	parts := []models.HuddleParticipant{
		joined(1, 100, models.ParticipantRoleHost, at(0)),
		joined(2, 101, models.ParticipantRoleMember, at(5)),
	}

	plan := planClose(session, parts, *at(30))

	if !plan.Ended {
		t.Fatal("close must end the session")
	}
	for i := range parts {
		if parts[i].LeftAt == nil {
			t.Errorf("participant %d not marked left on close", parts[i].ID)
		}
	}
}
