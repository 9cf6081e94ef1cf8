package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/storage"
)

type CreateDeviceRequest struct {
	Name         string `json:"name" binding:"required"`
	SerialNumber string `json:"serialNumber" binding:"required"`
	BatteryLevel *int   `json:"batteryLevel" binding:"omitempty,min=0,max=100"`
	IsOnline     *bool  `json:"isOnline"`
}

type DeviceStatusRequest struct {
	IsOnline     *bool `json:"isOnline" binding:"required"`
	BatteryLevel *int  `json:"batteryLevel" binding:"omitempty,min=0,max=100"`
}

type LocationRequest struct {
	DeviceID  string   `json:"deviceId" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"required,min=-180,max=180"`
	Accuracy  *int     `json:"accuracy" binding:"omitempty,min=0"`
	Speed     *float64 `json:"speed" binding:"omitempty,min=0"`
	Address   *string  `json:"address"`
}

type WeatherRequest struct {
	DeviceID    string   `json:"deviceId" binding:"required"`
	Temperature *float64 `json:"temperature"`
	Humidity    *int     `json:"humidity" binding:"omitempty,min=0,max=100"`
	Pressure    *float64 `json:"pressure"`
	WindSpeed   *float64 `json:"windSpeed" binding:"omitempty,min=0"`
	Visibility  *int     `json:"visibility" binding:"omitempty,min=0"`
	RainLevel   *float64 `json:"rainLevel" binding:"omitempty,min=0"`
	Condition   *string  `json:"condition"`
}

func (h *TrackerHandler) CreateDevice(c *gin.Context) {
	var req CreateDeviceRequest
	if !h.bind(c, &req, "Failed to create device") {
		return
	}

	device, err := h.store.CreateDevice(c.Request.Context(), storage.NewDevice{
		UserID:       auth.UserID(c),
		Name:         req.Name,
		SerialNumber: req.SerialNumber,
		BatteryLevel: req.BatteryLevel,
		IsOnline:     req.IsOnline,
	})
	if err != nil {
		h.fail(c, err, "Failed to create device")
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *TrackerHandler) ListDevices(c *gin.Context) {
	devices, err := h.store.ListDevicesByUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err, "Failed to fetch devices")
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *TrackerHandler) UpdateDeviceStatus(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if !h.ensureDevice(c, deviceID, "Failed to update device status") {
		return
	}

	var req DeviceStatusRequest
	if !h.bind(c, &req, "Failed to update device status") {
		return
	}

	if err := h.store.UpdateDeviceStatus(c.Request.Context(), deviceID, *req.IsOnline, req.BatteryLevel); err != nil {
		h.fail(c, err, "Failed to update device status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RecordLocation persists a fix and pushes location_update to the device's subscribers
func (h *TrackerHandler) RecordLocation(c *gin.Context) {
	var req LocationRequest
	if !h.bind(c, &req, "Failed to add location") {
		return
	}

	location, err := h.svc.RecordLocation(c.Request.Context(), auth.UserID(c), storage.NewLocation{
		DeviceID:  req.DeviceID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		Speed:     req.Speed,
		Address:   req.Address,
	})
	if err != nil {
		h.fail(c, err, "Failed to add location")
		return
	}
	c.JSON(http.StatusOK, location)
}

func (h *TrackerHandler) LatestLocation(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if !h.ensureDevice(c, deviceID, "Failed to fetch location") {
		return
	}

	location, err := h.store.LatestLocation(c.Request.Context(), deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "No location found"})
		return
	}
	if err != nil {
		h.fail(c, err, "Failed to fetch location")
		return
	}
	c.JSON(http.StatusOK, location)
}

func (h *TrackerHandler) LocationHistory(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if !h.ensureDevice(c, deviceID, "Failed to fetch location history") {
		return
	}

	locations, err := h.store.LocationHistory(c.Request.Context(), deviceID, queryLimit(c, storage.DefaultHistoryLimit))
	if err != nil {
		h.fail(c, err, "Failed to fetch location history")
		return
	}
	c.JSON(http.StatusOK, locations)
}

// RecordWeather persists a reading and pushes weather_update to the device's subscribers
func (h *TrackerHandler) RecordWeather(c *gin.Context) {
	var req WeatherRequest
	if !h.bind(c, &req, "Failed to add weather data") {
		return
	}

	weather, err := h.svc.RecordWeather(c.Request.Context(), auth.UserID(c), storage.NewWeatherData{
		DeviceID:    req.DeviceID,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Pressure:    req.Pressure,
		WindSpeed:   req.WindSpeed,
		Visibility:  req.Visibility,
		RainLevel:   req.RainLevel,
		Condition:   req.Condition,
	})
	if err != nil {
		h.fail(c, err, "Failed to add weather data")
		return
	}
	c.JSON(http.StatusOK, weather)
}

func (h *TrackerHandler) LatestWeather(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if !h.ensureDevice(c, deviceID, "Failed to fetch weather") {
		return
	}

	weather, err := h.store.LatestWeather(c.Request.Context(), deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "No weather data found"})
		return
	}
	if err != nil {
		h.fail(c, err, "Failed to fetch weather")
		return
	}
	c.JSON(http.StatusOK, weather)
}

func (h *TrackerHandler) WeatherHistory(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if !h.ensureDevice(c, deviceID, "Failed to fetch weather history") {
		return
	}

	history, err := h.store.WeatherHistory(c.Request.Context(), deviceID, queryLimit(c, storage.DefaultHistoryLimit))
	if err != nil {
		h.fail(c, err, "Failed to fetch weather history")
		return
	}
	c.JSON(http.StatusOK, history)
}
