package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PAAPII10/slack-clone-sub001/internal/services"
)

type WorkspaceHandler struct {
	workspaceService *services.WorkspaceService
}

func NewWorkspaceHandler(workspaceService *services.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaceService: workspaceService}
}

type CreateWorkspaceRequest struct {
	Name string `json:"name" binding:"required,max=100"`
	Slug string `json:"slug" binding:"required,max=100"`
}

type CreateChannelRequest struct {
	Name      string `json:"name" binding:"required,max=100"`
	IsPrivate bool   `json:"is_private"`
}

type OpenConversationRequest struct {
	MemberID uint `json:"member_id" binding:"required"`
}

func (h *WorkspaceHandler) CreateWorkspace(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	workspace, err := h.workspaceService.CreateWorkspace(userID, req.Name, req.Slug)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, workspace)
}

func (h *WorkspaceHandler) JoinWorkspace(c *gin.Context) {
	userID := c.GetUint("user_id")
	workspaceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid workspace id"})
		return
	}

	member, err := h.workspaceService.AddMember(uint(workspaceID), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *WorkspaceHandler) resolve(c *gin.Context) (uint, bool) {
	workspaceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid workspace id"})
		return 0, false
	}
	return uint(workspaceID), true
}

func (h *WorkspaceHandler) CreateChannel(c *gin.Context) {
	workspaceID, ok := h.resolve(c)
	if !ok {
		return
	}
	member, err := h.workspaceService.ResolveMember(workspaceID, c.GetUint("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	channel, err := h.workspaceService.CreateChannel(member, req.Name, req.IsPrivate)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, channel)
}

func (h *WorkspaceHandler) JoinChannel(c *gin.Context) {
	workspaceID, ok := h.resolve(c)
	if !ok {
		return
	}
	member, err := h.workspaceService.ResolveMember(workspaceID, c.GetUint("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	channelID, err := strconv.ParseUint(c.Param("channelId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid channel id"})
		return
	}

	channelMember, err := h.workspaceService.JoinChannel(member, uint(channelID))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, channelMember)
}

func (h *WorkspaceHandler) OpenConversation(c *gin.Context) {
	workspaceID, ok := h.resolve(c)
	if !ok {
		return
	}
	member, err := h.workspaceService.ResolveMember(workspaceID, c.GetUint("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	conversation, err := h.workspaceService.OpenConversation(member, req.MemberID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}
