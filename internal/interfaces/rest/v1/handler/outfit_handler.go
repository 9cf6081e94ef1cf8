package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/storage"
)

type CreateOutfitRequest struct {
	Name        string   `json:"name" binding:"required"`
	Items       []string `json:"items" binding:"required,min=1,dive,required"`
	Temperature *int     `json:"temperature" binding:"required"`
	Weather     string   `json:"weather" binding:"required"`
	Confidence  *int     `json:"confidence" binding:"omitempty,min=0,max=100"`
}

type RateOutfitRequest struct {
	Liked *bool `json:"liked" binding:"required"`
}

func (h *TrackerHandler) CreateOutfit(c *gin.Context) {
	var req CreateOutfitRequest
	if !h.bind(c, &req, "Failed to create outfit recommendation") {
		return
	}

	outfit, err := h.store.CreateOutfitRecommendation(c.Request.Context(), storage.NewOutfitRecommendation{
		UserID:      auth.UserID(c),
		Name:        req.Name,
		Items:       req.Items,
		Temperature: *req.Temperature,
		Weather:     req.Weather,
		Confidence:  req.Confidence,
	})
	if err != nil {
		h.fail(c, err, "Failed to create outfit recommendation")
		return
	}
	c.JSON(http.StatusOK, outfit)
}

func (h *TrackerHandler) ListOutfits(c *gin.Context) {
	outfits, err := h.store.ListOutfitRecommendations(c.Request.Context(), auth.UserID(c), queryLimit(c, storage.DefaultOutfitLimit))
	if err != nil {
		h.fail(c, err, "Failed to fetch outfits")
		return
	}
	c.JSON(http.StatusOK, outfits)
}

func (h *TrackerHandler) RateOutfit(c *gin.Context) {
	var req RateOutfitRequest
	if !h.bind(c, &req, "Failed to rate outfit") {
		return
	}

	outfit, err := h.store.RateOutfit(c.Request.Context(), auth.UserID(c), c.Param("outfitId"), *req.Liked)
	if err != nil {
		h.fail(c, err, "Failed to rate outfit")
		return
	}
	c.JSON(http.StatusOK, outfit)
}
