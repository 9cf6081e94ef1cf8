package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/storage"
)

type CreateActivityRequest struct {
	Title         string  `json:"title" binding:"required"`
	Description   *string `json:"description"`
	ScheduledTime *string `json:"scheduledTime" binding:"omitempty,hhmm"`
	Icon          *string `json:"icon"`
	Priority      *string `json:"priority" binding:"omitempty,oneof=high medium low"`
	IsEnabled     *bool   `json:"isEnabled"`
}

type UpdateActivityRequest struct {
	Title         *string `json:"title" binding:"omitempty,min=1"`
	Description   *string `json:"description"`
	ScheduledTime *string `json:"scheduledTime" binding:"omitempty,hhmm"`
	Icon          *string `json:"icon"`
	Priority      *string `json:"priority" binding:"omitempty,oneof=high medium low"`
	IsEnabled     *bool   `json:"isEnabled"`
}

type ToggleActivityRequest struct {
	IsCompleted *bool `json:"isCompleted" binding:"required"`
}

func (h *TrackerHandler) CreateActivity(c *gin.Context) {
	var req CreateActivityRequest
	if !h.bind(c, &req, "Failed to create activity") {
		return
	}

	activity, err := h.store.CreateActivity(c.Request.Context(), storage.NewActivity{
		UserID:        auth.UserID(c),
		Title:         req.Title,
		Description:   req.Description,
		ScheduledTime: req.ScheduledTime,
		Icon:          req.Icon,
		Priority:      req.Priority,
		IsEnabled:     req.IsEnabled,
	})
	if err != nil {
		h.fail(c, err, "Failed to create activity")
		return
	}
	c.JSON(http.StatusOK, activity)
}

func (h *TrackerHandler) ListActivities(c *gin.Context) {
	activities, err := h.store.ListActivitiesByUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch activities")
		return
	}
	c.JSON(http.StatusOK, activities)
}

func (h *TrackerHandler) UpdateActivity(c *gin.Context) {
	var req UpdateActivityRequest
	if !h.bind(c, &req, "Failed to update activity") {
		return
	}

	activity, err := h.store.UpdateActivity(c.Request.Context(), auth.UserID(c), c.Param("activityId"), storage.ActivityPatch{
		Title:         req.Title,
		Description:   req.Description,
		ScheduledTime: req.ScheduledTime,
		Icon:          req.Icon,
		Priority:      req.Priority,
		IsEnabled:     req.IsEnabled,
	})
	if err != nil {
		h.fail(c, err, "Failed to update activity")
		return
	}
	c.JSON(http.StatusOK, activity)
}

func (h *TrackerHandler) ToggleActivity(c *gin.Context) {
	var req ToggleActivityRequest
	if !h.bind(c, &req, "Failed to toggle activity") {
		return
	}

	activity, err := h.store.ToggleActivityCompletion(c.Request.Context(), auth.UserID(c), c.Param("activityId"), *req.IsCompleted)
	if err != nil {
		h.fail(c, err, "Failed to toggle activity")
		return
	}
	c.JSON(http.StatusOK, activity)
}
