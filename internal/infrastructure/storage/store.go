package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Store persists the tracker domain. Mutations of user-owned rows take the
// owning user id and report ErrNotFound for rows the user does not own.
type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	UpsertUser(ctx context.Context, user UpsertUser) (*User, error)
	UpdateUserPreferences(ctx context.Context, userID string, prefs Preferences) (*User, error)

	CreateDevice(ctx context.Context, device NewDevice) (*Device, error)
	GetDevice(ctx context.Context, deviceID string) (*Device, error)
	ListDevicesByUser(ctx context.Context, userID string) ([]Device, error)
	UpdateDeviceStatus(ctx context.Context, deviceID string, isOnline bool, batteryLevel *int) error

	AddLocation(ctx context.Context, location NewLocation) (*Location, error)
	LatestLocation(ctx context.Context, deviceID string) (*Location, error)
	LocationHistory(ctx context.Context, deviceID string, limit int) ([]Location, error)

	AddWeatherData(ctx context.Context, weather NewWeatherData) (*WeatherData, error)
	LatestWeather(ctx context.Context, deviceID string) (*WeatherData, error)
	WeatherHistory(ctx context.Context, deviceID string, limit int) ([]WeatherData, error)

	CreateActivity(ctx context.Context, activity NewActivity) (*Activity, error)
	ListActivitiesByUser(ctx context.Context, userID string) ([]Activity, error)
	UpdateActivity(ctx context.Context, userID, activityID string, patch ActivityPatch) (*Activity, error)
	ToggleActivityCompletion(ctx context.Context, userID, activityID string, completed bool) (*Activity, error)

	CreateOutfitRecommendation(ctx context.Context, outfit NewOutfitRecommendation) (*OutfitRecommendation, error)
	ListOutfitRecommendations(ctx context.Context, userID string, limit int) ([]OutfitRecommendation, error)
	RateOutfit(ctx context.Context, userID, outfitID string, liked bool) (*OutfitRecommendation, error)

	CreateEmergencyContact(ctx context.Context, contact NewEmergencyContact) (*EmergencyContact, error)
	ListEmergencyContacts(ctx context.Context, userID string) ([]EmergencyContact, error)
	UpdateEmergencyContact(ctx context.Context, userID, contactID string, patch EmergencyContactPatch) (*EmergencyContact, error)
	DeleteEmergencyContact(ctx context.Context, userID, contactID string) error

	CreateEmergencyAlert(ctx context.Context, alert NewEmergencyAlert) (*EmergencyAlert, error)
	ListActiveEmergencyAlerts(ctx context.Context, userID string) ([]EmergencyAlert, error)
	ResolveEmergencyAlert(ctx context.Context, userID, alertID string) (*EmergencyAlert, error)

	Ping(ctx context.Context) error
	Close()
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
