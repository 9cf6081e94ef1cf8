package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/storage"
)

type PreferencesRequest struct {
	Notifications     *bool `json:"notifications" binding:"required"`
	LocationSharing   *bool `json:"locationSharing" binding:"required"`
	EmergencyMode     *bool `json:"emergencyMode" binding:"required"`
	WeatherAlerts     *bool `json:"weatherAlerts" binding:"required"`
	ActivityReminders *bool `json:"activityReminders" binding:"required"`
}

// CurrentUser refreshes the profile from the token claims and returns it
func (h *TrackerHandler) CurrentUser(c *gin.Context) {
	user, err := h.store.UpsertUser(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *TrackerHandler) UpdatePreferences(c *gin.Context) {
	var req PreferencesRequest
	if !h.bind(c, &req, "Failed to update preferences") {
		return
	}

	user, err := h.store.UpdateUserPreferences(c.Request.Context(), auth.UserID(c), storage.Preferences{
		Notifications:     *req.Notifications,
		LocationSharing:   *req.LocationSharing,
		EmergencyMode:     *req.EmergencyMode,
		WeatherAlerts:     *req.WeatherAlerts,
		ActivityReminders: *req.ActivityReminders,
	})
	if err != nil {
		h.fail(c, err, "Failed to update preferences")
		return
	}
	c.JSON(http.StatusOK, user)
}
