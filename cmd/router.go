package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smart-tracker/internal/application/tracker"
	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/config"
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
	"smart-tracker/internal/interfaces/rest/v1/handler"
	"smart-tracker/internal/interfaces/sse"
	"smart-tracker/internal/interfaces/websocket"
)

type routerDeps struct {
	cfg      *config.Config
	log      logger.Logger
	hub      *hub.Hub
	svc      *tracker.Service
	verifier *auth.TokenVerifier
	registry *prometheus.Registry
}

func InitRouter(d routerDeps) http.Handler {
	router := gin.New()
	router.Use(gin.LoggerWithWriter(d.log.Writer()))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		isRunning := d.hub.IsRunning()
		database := "ok"
		if err := d.svc.Store().Ping(c.Request.Context()); err != nil {
			d.log.Warnf("store ping failed: %v", err)
			database = "unavailable"
		}

		code, status := http.StatusOK, "healthy"
		if !isRunning || database != "ok" {
			code, status = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(code, gin.H{
			"status":        status,
			"hub_running":   isRunning,
			"connections":   d.hub.ConnectionCount(),
			"subscriptions": d.hub.SubscriptionCount(),
			"database":      database,
		})
	})

	rootGroup.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))

	rt := d.cfg.Realtime
	connOpts := hub.ConnectionOptions{
		SendBuffer:   rt.SendBuffer,
		WriteTimeout: rt.WriteTimeout,
		PongTimeout:  rt.PongTimeout,
		PingInterval: rt.PingInterval,
		KeepAlive:    rt.SSEKeepAlive,
	}

	secured := rootGroup.Group("", auth.RequireUser(d.verifier, d.cfg.Auth.CookieName))

	handler.InitAPIRouter(d.log, d.svc, d.hub, secured)
	sse.InitSSERouter(d.log, d.hub, connOpts, secured)
	websocket.InitWebSocketRouter(d.log, d.hub, websocket.Options{
		Connection:     connOpts,
		AllowedOrigins: rt.AllowedOrigins,
	}, rt.Path, secured)

	return router
}
