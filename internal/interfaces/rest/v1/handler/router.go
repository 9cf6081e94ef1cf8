package handler

import (
	"github.com/gin-gonic/gin"

	"smart-tracker/internal/application/tracker"
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
)

// InitAPIRouter mounts the REST API. rg is expected to carry the
// authentication middleware.
func InitAPIRouter(logger logger.Logger, svc *tracker.Service, hubInstance *hub.Hub, rg *gin.RouterGroup) {
	h := NewTrackerHandler(svc, logger)
	realtime := NewRealtimeHandler(hubInstance, logger)

	api := rg.Group("/api", h.ProvisionUser)
	{
		api.GET("/auth/user", h.CurrentUser)
		api.PUT("/user/preferences", h.UpdatePreferences)

		api.POST("/devices", h.CreateDevice)
		api.GET("/devices", h.ListDevices)
		api.PUT("/devices/:deviceId/status", h.UpdateDeviceStatus)
		api.GET("/devices/:deviceId/location", h.LatestLocation)
		api.GET("/devices/:deviceId/location-history", h.LocationHistory)
		api.GET("/devices/:deviceId/weather", h.LatestWeather)
		api.GET("/devices/:deviceId/weather-history", h.WeatherHistory)

		api.POST("/locations", h.RecordLocation)
		api.POST("/weather", h.RecordWeather)

		api.POST("/activities", h.CreateActivity)
		api.GET("/activities", h.ListActivities)
		api.PUT("/activities/:activityId", h.UpdateActivity)
		api.PUT("/activities/:activityId/toggle", h.ToggleActivity)

		api.POST("/outfits", h.CreateOutfit)
		api.GET("/outfits", h.ListOutfits)
		api.PUT("/outfits/:outfitId/rate", h.RateOutfit)

		api.POST("/emergency-contacts", h.CreateContact)
		api.GET("/emergency-contacts", h.ListContacts)
		api.PUT("/emergency-contacts/:contactId", h.UpdateContact)
		api.DELETE("/emergency-contacts/:contactId", h.DeleteContact)

		api.POST("/emergency-alerts", h.RaiseAlert)
		api.GET("/emergency-alerts", h.ListAlerts)
		api.PUT("/emergency-alerts/:alertId/resolve", h.ResolveAlert)

		api.GET("/v1/realtime/connections", realtime.GetConnections)
	}
}
