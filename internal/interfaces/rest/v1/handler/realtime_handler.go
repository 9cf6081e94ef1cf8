package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
)

// RealtimeHandler exposes the caller's live connections and what each one
// is subscribed to.
type RealtimeHandler struct {
	hub    *hub.Hub
	logger logger.Logger
}

func NewRealtimeHandler(hubInstance *hub.Hub, logger logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "realtime"),
	}
}

func (h *RealtimeHandler) GetConnections(c *gin.Context) {
	userID := auth.UserID(c)

	connections := make([]gin.H, 0)
	for _, conn := range h.hub.GetConnections() {
		p, ok := conn.(hub.Principal)
		if !ok || p.Principal() != userID {
			continue
		}

		keys := h.hub.KeysOf(conn)
		subscriptions := make([]string, 0, len(keys))
		for _, key := range keys {
			subscriptions = append(subscriptions, key.String())
		}
		sort.Strings(subscriptions)

		connections = append(connections, gin.H{
			"id":            conn.ID(),
			"type":          conn.Type(),
			"open":          conn.IsOpen(),
			"subscriptions": subscriptions,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connections,
		"hub_running":       h.hub.IsRunning(),
	})
}
