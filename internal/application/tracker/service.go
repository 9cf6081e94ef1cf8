package tracker

import (
	"context"
	"errors"
	"fmt"

	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
	"smart-tracker/internal/infrastructure/storage"
)

// ErrDeviceAccessDenied covers both unknown devices and devices owned by
// someone else, so callers cannot probe for foreign device ids.
var ErrDeviceAccessDenied = errors.New("device not found or access denied")

// Dispatcher pushes an event to every live subscriber of a key
type Dispatcher interface {
	Dispatch(key hub.Key, message *hub.Message)
}

// Service owns the "persist, then notify" writes and the ownership checks
// shared by the REST API and the realtime authorizer.
type Service struct {
	store      storage.Store
	dispatcher Dispatcher
	logger     logger.Logger
}

func NewService(store storage.Store, dispatcher Dispatcher, log logger.Logger) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		logger:     log.WithField("component", "tracker"),
	}
}

func (s *Service) Store() storage.Store {
	return s.store
}

// EnsureUser creates the user row on first sight of an authenticated identity
func (s *Service) EnsureUser(ctx context.Context, identity storage.UpsertUser) (*storage.User, error) {
	user, err := s.store.GetUser(ctx, identity.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	user, err = s.store.UpsertUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.WithField("user_id", user.ID).Info("User provisioned")
	return user, nil
}

// DeviceOwnedBy returns the device when userID owns it
func (s *Service) DeviceOwnedBy(ctx context.Context, userID, deviceID string) (*storage.Device, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDeviceAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device.UserID != userID {
		return nil, ErrDeviceAccessDenied
	}
	return device, nil
}

// RecordLocation stores a GPS fix and notifies the device's subscribers
func (s *Service) RecordLocation(ctx context.Context, userID string, in storage.NewLocation) (*storage.Location, error) {
	if _, err := s.DeviceOwnedBy(ctx, userID, in.DeviceID); err != nil {
		return nil, err
	}

	location, err := s.store.AddLocation(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to add location: %w", err)
	}

	s.dispatcher.Dispatch(hub.DeviceKey(location.DeviceID), hub.LocationUpdate(location))
	return location, nil
}

// RecordWeather stores a sensor reading and notifies the device's subscribers
func (s *Service) RecordWeather(ctx context.Context, userID string, in storage.NewWeatherData) (*storage.WeatherData, error) {
	if _, err := s.DeviceOwnedBy(ctx, userID, in.DeviceID); err != nil {
		return nil, err
	}

	weather, err := s.store.AddWeatherData(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to add weather data: %w", err)
	}

	s.dispatcher.Dispatch(hub.DeviceKey(weather.DeviceID), hub.WeatherUpdate(weather))
	return weather, nil
}

// RaiseEmergencyAlert stores an SOS event and notifies every session of the
// owning user.
func (s *Service) RaiseEmergencyAlert(ctx context.Context, userID string, in storage.NewEmergencyAlert) (*storage.EmergencyAlert, error) {
	if _, err := s.DeviceOwnedBy(ctx, userID, in.DeviceID); err != nil {
		return nil, err
	}

	in.UserID = userID
	alert, err := s.store.CreateEmergencyAlert(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create emergency alert: %w", err)
	}

	s.logger.WithFields(logger.Fields{
		"alert_id":  alert.ID,
		"user_id":   userID,
		"device_id": alert.DeviceID,
	}).Warn("Emergency alert raised")

	s.dispatcher.Dispatch(hub.UserKey(userID), hub.EmergencyAlert(alert))
	return alert, nil
}

// Authorize decides whether principal may subscribe to key: users only to
// themselves, devices only when they own them.
func (s *Service) Authorize(ctx context.Context, principal string, key hub.Key) error {
	if principal == "" {
		return hub.ErrForbidden
	}

	switch key.Scope {
	case hub.ScopeUser:
		if key.ID != principal {
			return hub.ErrForbidden
		}
		return nil
	case hub.ScopeDevice:
		_, err := s.DeviceOwnedBy(ctx, principal, key.ID)
		if errors.Is(err, ErrDeviceAccessDenied) {
			return hub.ErrForbidden
		}
		return err
	default:
		return hub.ErrForbidden
	}
}
