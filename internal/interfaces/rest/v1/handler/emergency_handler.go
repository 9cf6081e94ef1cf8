package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/storage"
)

type CreateContactRequest struct {
	Name         string `json:"name" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	Relationship string `json:"relationship" binding:"required"`
}

type UpdateContactRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1"`
	Phone        *string `json:"phone" binding:"omitempty,min=1"`
	Relationship *string `json:"relationship" binding:"omitempty,min=1"`
}

type CreateAlertRequest struct {
	DeviceID   string  `json:"deviceId" binding:"required"`
	LocationID *string `json:"locationId"`
}

func (h *TrackerHandler) CreateContact(c *gin.Context) {
	var req CreateContactRequest
	if !h.bind(c, &req, "Failed to create emergency contact") {
		return
	}

	contact, err := h.store.CreateEmergencyContact(c.Request.Context(), storage.NewEmergencyContact{
		UserID:       auth.UserID(c),
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
	})
	if err != nil {
		h.fail(c, err, "Failed to create emergency contact")
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *TrackerHandler) ListContacts(c *gin.Context) {
	contacts, err := h.store.ListEmergencyContacts(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch emergency contacts")
		return
	}
	c.JSON(http.StatusOK, contacts)
}

func (h *TrackerHandler) UpdateContact(c *gin.Context) {
	var req UpdateContactRequest
	if !h.bind(c, &req, "Failed to update emergency contact") {
		return
	}

	contact, err := h.store.UpdateEmergencyContact(c.Request.Context(), auth.UserID(c), c.Param("contactId"), storage.EmergencyContactPatch{
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
	})
	if err != nil {
		h.fail(c, err, "Failed to update emergency contact")
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *TrackerHandler) DeleteContact(c *gin.Context) {
	if err := h.store.DeleteEmergencyContact(c.Request.Context(), auth.UserID(c), c.Param("contactId")); err != nil {
		h.fail(c, err, "Failed to delete emergency contact")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RaiseAlert persists an SOS event and pushes emergency_alert to every
// session of the caller.
func (h *TrackerHandler) RaiseAlert(c *gin.Context) {
	var req CreateAlertRequest
	if !h.bind(c, &req, "Failed to create emergency alert") {
		return
	}

	alert, err := h.svc.RaiseEmergencyAlert(c.Request.Context(), auth.UserID(c), storage.NewEmergencyAlert{
		DeviceID:   req.DeviceID,
		LocationID: req.LocationID,
	})
	if err != nil {
		h.fail(c, err, "Failed to create emergency alert")
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *TrackerHandler) ListAlerts(c *gin.Context) {
	alerts, err := h.store.ListActiveEmergencyAlerts(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch emergency alerts")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *TrackerHandler) ResolveAlert(c *gin.Context) {
	alert, err := h.store.ResolveEmergencyAlert(c.Request.Context(), auth.UserID(c), c.Param("alertId"))
	if err != nil {
		h.fail(c, err, "Failed to resolve emergency alert")
		return
	}
	c.JSON(http.StatusOK, alert)
}
