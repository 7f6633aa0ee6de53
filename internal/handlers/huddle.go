package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PAAPII10/slack-clone-sub001/internal/models"
	"github.com/PAAPII10/slack-clone-sub001/internal/services"
)

type HuddleHandler struct {
	workspaceService *services.WorkspaceService
	huddleService    *services.HuddleService
	tokenService     *services.RoomTokenService
	db               *gorm.DB
}

func NewHuddleHandler(workspaceService *services.WorkspaceService, huddleService *services.HuddleService, tokenService *services.RoomTokenService, db *gorm.DB) *HuddleHandler {
	return &HuddleHandler{
		workspaceService: workspaceService,
		huddleService:    huddleService,
		tokenService:     tokenService,
		db:               db,
	}
}

type SourceRequest struct {
	ChannelID      uint `json:"channel_id"`
	ConversationID uint `json:"conversation_id"`
}

func (r *SourceRequest) source() (models.HuddleSource, bool) {
	switch {
	case r.ChannelID != 0 && r.ConversationID == 0:
		return models.ChannelSource(r.ChannelID), true
	case r.ConversationID != 0 && r.ChannelID == 0:
		return models.ConversationSource(r.ConversationID), true
	default:
		return models.HuddleSource{}, false
	}
}

type CreateOrJoinRequest struct {
	SourceRequest
	StartMuted bool `json:"start_muted"`
}

type JoinHuddleRequest struct {
	RoomID string `json:"room_id"`
}

type SetMuteRequest struct {
	IsMuted *bool `json:"is_muted" binding:"required"`
}

// actor resolves the authenticated caller into their membership in the
// workspace named by the route. Every service call below receives this
// member explicitly.
func (h *HuddleHandler) actor(c *gin.Context) (*models.Member, bool) {
	userID := c.GetUint("user_id")
	workspaceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid workspace id"})
		return nil, false
	}
	member, err := h.workspaceService.ResolveMember(uint(workspaceID), userID)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return member, true
}

func (h *HuddleHandler) huddleID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("huddleId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid huddle id"})
		return 0, false
	}
	return uint(id), true
}

// CreateOrJoin godoc
// @Summary      Start or join the huddle for a channel or conversation
// @Tags         huddles
// @Accept       json
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        request body CreateOrJoinRequest true "Source and mute preference"
// @Success      200 {object} HuddleSession
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles [post]
func (h *HuddleHandler) CreateOrJoin(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}

	var req CreateOrJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	source, ok := req.source()
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exactly one of channel_id or conversation_id is required"})
		return
	}

	session, err := h.huddleService.CreateOrJoin(member, source, req.StartMuted)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Join godoc
// @Summary      Join a huddle and bind its transport room
// @Tags         huddles
// @Accept       json
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        huddleId path int true "Huddle ID"
// @Param        request body JoinHuddleRequest false "Optional pre-minted room id"
// @Success      200 {object} services.JoinResult
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/{huddleId}/join [post]
func (h *HuddleHandler) Join(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.huddleID(c)
	if !ok {
		return
	}

	var req JoinHuddleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.RoomID = ""
	}

	result, err := h.huddleService.JoinWithRoom(member, sessionID, req.RoomID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Leave godoc
// @Summary      Leave a huddle
// @Tags         huddles
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        huddleId path int true "Huddle ID"
// @Success      200 {object} services.LeaveResult
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/{huddleId}/leave [post]
func (h *HuddleHandler) Leave(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.huddleID(c)
	if !ok {
		return
	}

	result, err := h.huddleService.Leave(member, sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Decline godoc
// @Summary      Decline an incoming huddle invitation
// @Tags         huddles
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        huddleId path int true "Huddle ID"
// @Success      200 {object} MessageResponse
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/{huddleId}/decline [post]
func (h *HuddleHandler) Decline(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.huddleID(c)
	if !ok {
		return
	}

	if _, err := h.huddleService.Decline(member, sessionID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "huddle declined"})
}

// SetMute godoc
// @Summary      Toggle the caller's mute flag in a huddle
// @Tags         huddles
// @Accept       json
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        huddleId path int true "Huddle ID"
// @Param        request body SetMuteRequest true "Mute flag"
// @Success      200 {object} MessageResponse
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/{huddleId}/mute [put]
func (h *HuddleHandler) SetMute(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.huddleID(c)
	if !ok {
		return
	}

	var req SetMuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.huddleService.SetMute(member, sessionID, *req.IsMuted); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "mute updated"})
}

// Close godoc
// @Summary      Force-end the active huddle for a source
// @Tags         huddles
// @Accept       json
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        request body SourceRequest true "Source"
// @Success      200 {object} MessageResponse
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/close [post]
func (h *HuddleHandler) Close(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}

	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	source, ok := req.source()
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exactly one of channel_id or conversation_id is required"})
		return
	}

	if _, err := h.huddleService.CloseIfEmpty(member, source); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "huddle closed"})
}

// GetActive godoc
// @Summary      Get the active huddle for a channel or conversation
// @Tags         huddles
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        channel_id query int false "Channel ID"
// @Param        conversation_id query int false "Conversation ID"
// @Success      200 {object} HuddleSession
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/active [get]
func (h *HuddleHandler) GetActive(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}

	channelID, _ := strconv.ParseUint(c.Query("channel_id"), 10, 64)
	conversationID, _ := strconv.ParseUint(c.Query("conversation_id"), 10, 64)
	req := SourceRequest{ChannelID: uint(channelID), ConversationID: uint(conversationID)}
	source, ok := req.source()
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exactly one of channel_id or conversation_id is required"})
		return
	}

	session, err := h.huddleService.GetActiveSession(source)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// GetRoster godoc
// @Summary      List the joined participants of a huddle
// @Tags         huddles
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        huddleId path int true "Huddle ID"
// @Success      200 {array} services.RosterEntry
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/{huddleId}/roster [get]
func (h *HuddleHandler) GetRoster(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.huddleID(c)
	if !ok {
		return
	}

	if _, err := h.huddleService.GetSession(member, sessionID); err != nil {
		abortWithError(c, err)
		return
	}
	roster, err := h.huddleService.GetRoster(sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, roster)
}

// GetMine godoc
// @Summary      Get the huddle the caller is currently in
// @Tags         huddles
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Success      200 {object} services.MySession
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/mine [get]
func (h *HuddleHandler) GetMine(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}

	mine, err := h.huddleService.GetMySession(member)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": mine})
}

// GetIncoming godoc
// @Summary      Get the DM huddle currently ringing for the caller
// @Tags         huddles
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Success      200 {object} HuddleSession
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/incoming [get]
func (h *HuddleHandler) GetIncoming(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}

	session, err := h.huddleService.GetIncoming(member)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// IssueToken godoc
// @Summary      Issue a media transport token for a huddle's room
// @Tags         huddles
// @Produce      json
// @Param        id path int true "Workspace ID"
// @Param        huddleId path int true "Huddle ID"
// @Success      200 {object} services.RoomToken
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /api/v1/workspaces/{id}/huddles/{huddleId}/token [post]
func (h *HuddleHandler) IssueToken(c *gin.Context) {
	member, ok := h.actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.huddleID(c)
	if !ok {
		return
	}

	session, err := h.huddleService.GetSession(member, sessionID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if _, err := h.huddleService.Participant(member, sessionID); err != nil {
		abortWithError(c, err)
		return
	}
	if session.RoomID == "" {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "huddle has no room yet, join first"})
		return
	}

	var user models.User
	if err := h.db.First(&user, member.UserID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load profile"})
		return
	}

	identity := strconv.FormatUint(uint64(member.ID), 10)
	token, err := h.tokenService.IssueToken(identity, session.RoomID, user.Name())
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, token)
}
