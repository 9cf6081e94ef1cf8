package websocket

import (
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"

	"github.com/gin-gonic/gin"
)

// InitWebSocketRouter mounts the subscription endpoint at path. rg is
// expected to carry the authentication middleware.
func InitWebSocketRouter(logger logger.Logger, hubInstance *hub.Hub, opts Options, path string, rg *gin.RouterGroup) {
	wsHandler := NewWebSocketHandler(hubInstance, opts, logger)
	rg.GET(path, wsHandler.Connect)
}
