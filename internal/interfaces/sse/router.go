package sse

import (
	"github.com/gin-gonic/gin"

	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
)

// InitSSERouter mounts the event stream. rg is expected to carry the
// authentication middleware.
func InitSSERouter(logger logger.Logger, hubInstance *hub.Hub, opts hub.ConnectionOptions, rg *gin.RouterGroup) {
	sseHandler := NewServerSentEventHandler(hubInstance, opts, logger)
	rg.GET("/sse", sseHandler.Connect)
}
