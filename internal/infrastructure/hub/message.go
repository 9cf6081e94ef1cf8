package hub

import (
	"github.com/google/uuid"
)

// MessageType defines the event tags pushed to subscribers
type MessageType string

const (
	MessageTypeLocationUpdate MessageType = "location_update"
	MessageTypeWeatherUpdate  MessageType = "weather_update"
	MessageTypeEmergencyAlert MessageType = "emergency_alert"

	// SSE only; never sent over the WebSocket channel.
	MessageTypeConnected MessageType = "connected"
	MessageTypeKeepAlive MessageType = "keepalive"
)

// Message is the envelope written to subscribers. Only type and data are
// part of the wire format; ID is used for SSE event ids.
type Message struct {
	ID   string      `json:"-"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewMessage creates a message with a fresh id
func NewMessage(msgType MessageType, data interface{}) *Message {
	return &Message{
		ID:   generateMessageID(),
		Type: string(msgType),
		Data: data,
	}
}

// LocationUpdate wraps a just-persisted location
func LocationUpdate(location interface{}) *Message {
	return NewMessage(MessageTypeLocationUpdate, location)
}

// WeatherUpdate wraps a just-persisted weather reading
func WeatherUpdate(weather interface{}) *Message {
	return NewMessage(MessageTypeWeatherUpdate, weather)
}

// EmergencyAlert wraps a just-created emergency alert
func EmergencyAlert(alert interface{}) *Message {
	return NewMessage(MessageTypeEmergencyAlert, alert)
}

// IsEventType reports whether msgType is one of the persisted-entity events
func IsEventType(msgType string) bool {
	switch MessageType(msgType) {
	case MessageTypeLocationUpdate, MessageTypeWeatherUpdate, MessageTypeEmergencyAlert:
		return true
	default:
		return false
	}
}

const msgIDPrefix = "msg-"

func generateMessageID() string {
	return msgIDPrefix + uuid.NewString()
}
