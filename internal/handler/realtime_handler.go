package handler

import (
	"log"

	"spray-machine-monitoring/internal/realtime"

	"github.com/gin-gonic/gin"
)

type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Connect upgrades an authenticated request to a websocket connection
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID, _ := c.Get("userID")
	role, _ := c.Get("role")

	id := realtime.Identity{UserID: userID.(uint), Role: role.(string)}
	if err := h.hub.ServeWS(c.Writer, c.Request, id); err != nil {
		// The upgrader has already written the HTTP error
		log.Printf("[Realtime] %v", err)
	}
}
