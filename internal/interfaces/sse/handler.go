package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
)

// ServerSentEventHandler streams the same events as the WebSocket channel
// to clients that cannot hold a socket. The userId and deviceId query
// parameters stand in for declarations.
type ServerSentEventHandler struct {
	hub    *hub.Hub
	logger logger.Logger
	opts   hub.ConnectionOptions
}

func NewServerSentEventHandler(hubInstance *hub.Hub, opts hub.ConnectionOptions, logger logger.Logger) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "sse"),
		opts:   opts,
	}
}

// Connect handles SSE connection requests
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message": "Service temporarily unavailable",
		})
		return
	}

	// The server-wide write timeout would cut the stream.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	principal := auth.UserID(c)
	conn := hub.NewSSEConnection(c.Request.Context(), "sse-"+uuid.NewString(), principal, c.Writer, h.opts, h.logger)

	if err := h.hub.RegisterConnection(conn); err != nil {
		h.logger.Errorf("Failed to register connection: %v", err)
		_ = conn.Close()
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message": "Service temporarily unavailable",
		})
		return
	}

	subscribed := make([]string, 0, 2)
	for _, key := range declaredKeys(c) {
		if h.hub.Declare(c.Request.Context(), conn, key) {
			subscribed = append(subscribed, key.String())
		}
	}

	c.Status(http.StatusOK)
	_ = conn.Send(c.Request.Context(), hub.NewMessage(hub.MessageTypeConnected, gin.H{
		"connectionId":  conn.ID(),
		"subscriptions": subscribed,
		"timestamp":     time.Now().Format(time.RFC3339),
	}))

	h.logger.WithField("user_id", principal).Infof("SSE connection %s established", conn.ID())
	conn.Serve()
	h.logger.Infof("SSE connection %s disconnected", conn.ID())
}

func declaredKeys(c *gin.Context) []hub.Key {
	var keys []hub.Key
	if key, ok := (hub.Declaration{Type: hub.DeclarationRegisterUser, UserID: c.Query("userId")}).Key(); ok {
		keys = append(keys, key)
	}
	if key, ok := (hub.Declaration{Type: hub.DeclarationRegisterDevice, DeviceID: c.Query("deviceId")}).Key(); ok {
		keys = append(keys, key)
	}
	return keys
}
