package storage

import "time"

// Preferences is stored as a JSON document on the user row
type Preferences struct {
	Notifications     bool `json:"notifications"`
	LocationSharing   bool `json:"locationSharing"`
	EmergencyMode     bool `json:"emergencyMode"`
	WeatherAlerts     bool `json:"weatherAlerts"`
	ActivityReminders bool `json:"activityReminders"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Notifications:     true,
		LocationSharing:   true,
		EmergencyMode:     false,
		WeatherAlerts:     true,
		ActivityReminders: true,
	}
}

type User struct {
	ID              string      `json:"id"`
	Email           *string     `json:"email"`
	FirstName       *string     `json:"firstName"`
	LastName        *string     `json:"lastName"`
	ProfileImageURL *string     `json:"profileImageUrl"`
	Phone           *string     `json:"phone"`
	Location        *string     `json:"location"`
	Preferences     Preferences `json:"preferences"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// UpsertUser carries identity claims. Nil fields leave stored values alone.
type UpsertUser struct {
	ID              string
	Email           *string
	FirstName       *string
	LastName        *string
	ProfileImageURL *string
}

type Device struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	SerialNumber string    `json:"serialNumber"`
	BatteryLevel int       `json:"batteryLevel"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
}

type NewDevice struct {
	UserID       string
	Name         string
	SerialNumber string
	BatteryLevel *int
	IsOnline     *bool
}

type Location struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *int      `json:"accuracy"`
	Speed     *float64  `json:"speed"`
	Address   *string   `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

type NewLocation struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Accuracy  *int
	Speed     *float64
	Address   *string
}

type WeatherData struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"deviceId"`
	Temperature *float64  `json:"temperature"`
	Humidity    *int      `json:"humidity"`
	Pressure    *float64  `json:"pressure"`
	WindSpeed   *float64  `json:"windSpeed"`
	Visibility  *int      `json:"visibility"`
	RainLevel   *float64  `json:"rainLevel"`
	Condition   *string   `json:"condition"`
	Timestamp   time.Time `json:"timestamp"`
}

type NewWeatherData struct {
	DeviceID    string
	Temperature *float64
	Humidity    *int
	Pressure    *float64
	WindSpeed   *float64
	Visibility  *int
	RainLevel   *float64
	Condition   *string
}

type Activity struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	ScheduledTime *string    `json:"scheduledTime"`
	Icon          string     `json:"icon"`
	Priority      string     `json:"priority"`
	IsEnabled     bool       `json:"isEnabled"`
	IsCompleted   bool       `json:"isCompleted"`
	CompletedAt   *time.Time `json:"completedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type NewActivity struct {
	UserID        string
	Title         string
	Description   *string
	ScheduledTime *string
	Icon          *string
	Priority      *string
	IsEnabled     *bool
}

// ActivityPatch applies only its non-nil fields
type ActivityPatch struct {
	Title         *string
	Description   *string
	ScheduledTime *string
	Icon          *string
	Priority      *string
	IsEnabled     *bool
}

type OutfitRecommendation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Items       []string  `json:"items"`
	Temperature int       `json:"temperature"`
	Weather     string    `json:"weather"`
	Confidence  int       `json:"confidence"`
	Liked       *bool     `json:"liked"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NewOutfitRecommendation struct {
	UserID      string
	Name        string
	Items       []string
	Temperature int
	Weather     string
	Confidence  *int
}

type EmergencyContact struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Relationship string    `json:"relationship"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type NewEmergencyContact struct {
	UserID       string
	Name         string
	Phone        string
	Relationship string
}

type EmergencyContactPatch struct {
	Name         *string
	Phone        *string
	Relationship *string
}

type EmergencyAlert struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	DeviceID   string     `json:"deviceId"`
	LocationID *string    `json:"locationId"`
	IsActive   bool       `json:"isActive"`
	ResolvedAt *time.Time `json:"resolvedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type NewEmergencyAlert struct {
	UserID     string
	DeviceID   string
	LocationID *string
}

const (
	DefaultHistoryLimit = 50
	DefaultOutfitLimit  = 10
	DefaultActivityIcon = "Bell"
	DefaultPriority     = "medium"
	DefaultConfidence   = 80
	DefaultBatteryLevel = 100
)
