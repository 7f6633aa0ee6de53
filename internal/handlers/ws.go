package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/PAAPII10/slack-clone-sub001/internal/services"
	"github.com/PAAPII10/slack-clone-sub001/internal/ws"
)

type WSHandler struct {
	hub              *ws.Hub
	authService      *services.AuthService
	workspaceService *services.WorkspaceService
}

func NewWSHandler(hub *ws.Hub, authService *services.AuthService, workspaceService *services.WorkspaceService) *WSHandler {
	return &WSHandler{hub: hub, authService: authService, workspaceService: workspaceService}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleSession streams roster and lifecycle events for one huddle.
// Auth rides the token query param because browsers cannot set headers
// on websocket upgrades.
func (h *WSHandler) HandleSession(c *gin.Context) {
	if _, ok := h.authenticate(c); !ok {
		return
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session id"})
		return
	}

	h.subscribe(c, fmt.Sprintf("session:%d", sessionID))
}

// HandleMember streams incoming-huddle notifications for the caller's
// membership in a workspace.
func (h *WSHandler) HandleMember(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}
	workspaceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid workspace id"})
		return
	}
	member, err := h.workspaceService.ResolveMember(uint(workspaceID), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.subscribe(c, fmt.Sprintf("member:%d", member.ID))
}

func (h *WSHandler) authenticate(c *gin.Context) (uint, bool) {
	userID, err := h.authService.ValidateToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or expired token"})
		return 0, false
	}
	return userID, true
}

func (h *WSHandler) subscribe(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	h.hub.Subscribe(topic, conn)
	defer h.hub.Unsubscribe(topic, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
