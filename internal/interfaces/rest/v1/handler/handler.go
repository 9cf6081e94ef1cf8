package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-tracker/internal/application/tracker"
	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/logger"
	"smart-tracker/internal/infrastructure/storage"
)

// TrackerHandler serves the authenticated REST API
type TrackerHandler struct {
	svc    *tracker.Service
	store  storage.Store
	logger logger.Logger
}

func NewTrackerHandler(svc *tracker.Service, logger logger.Logger) *TrackerHandler {
	RegisterValidators()
	return &TrackerHandler{
		svc:    svc,
		store:  svc.Store(),
		logger: logger.WithField("handler", "rest"),
	}
}

// ProvisionUser makes sure the authenticated identity has a user row before
// any owned resource is written.
func (h *TrackerHandler) ProvisionUser(c *gin.Context) {
	if _, err := h.svc.EnsureUser(c.Request.Context(), identityFrom(c)); err != nil {
		h.logger.Errorf("Failed to provision user %s: %v", auth.UserID(c), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch user"})
		return
	}
	c.Next()
}

func identityFrom(c *gin.Context) storage.UpsertUser {
	identity := storage.UpsertUser{ID: auth.UserID(c)}
	if claims, ok := auth.ClaimsFrom(c); ok {
		identity.Email = optional(claims.Email)
		identity.FirstName = optional(claims.FirstName)
		identity.LastName = optional(claims.LastName)
		identity.ProfileImageURL = optional(claims.ProfileImageURL)
	}
	return identity
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ensureDevice writes 403 and returns false when the caller does not own deviceID
func (h *TrackerHandler) ensureDevice(c *gin.Context, deviceID, failure string) bool {
	if _, err := h.svc.DeviceOwnedBy(c.Request.Context(), auth.UserID(c), deviceID); err != nil {
		h.fail(c, err, failure)
		return false
	}
	return true
}

// fail maps domain errors to status codes. Unknown errors keep the
// endpoint's own failure message and are logged.
func (h *TrackerHandler) fail(c *gin.Context, err error, failure string) {
	switch {
	case errors.Is(err, tracker.ErrDeviceAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"message": "Device not found or access denied"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	case errors.Is(err, storage.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"message": failure})
	default:
		h.logger.WithField("path", c.FullPath()).Errorf("%s: %v", failure, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": failure})
	}
}

// bind decodes and validates the JSON body, writing 400 on failure
func (h *TrackerHandler) bind(c *gin.Context, req interface{}, failure string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Debugf("Invalid request body on %s: %v", c.FullPath(), err)
		c.JSON(http.StatusBadRequest, gin.H{"message": failure})
		return false
	}
	return true
}
