package storage

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. Used for development and tests;
// it enforces the same ownership and uniqueness rules as the Postgres store.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[string]*User
	devices   map[string]*Device
	locations map[string][]Location    // by device, oldest first
	weather   map[string][]WeatherData // by device, oldest first
	activity  map[string]*Activity
	outfits   []OutfitRecommendation // oldest first
	contacts  map[string]*EmergencyContact
	alerts    []EmergencyAlert // oldest first

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*User),
		devices:   make(map[string]*Device),
		locations: make(map[string][]Location),
		weather:   make(map[string][]WeatherData),
		activity:  make(map[string]*Activity),
		contacts:  make(map[string]*EmergencyContact),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return uuid.NewString()
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, in UpsertUser) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Email != nil {
		for id, other := range s.users {
			if id != in.ID && other.Email != nil && *other.Email == *in.Email {
				return nil, ErrDuplicate
			}
		}
	}

	now := s.now()
	u, ok := s.users[in.ID]
	if !ok {
		u = &User{
			ID:          in.ID,
			Preferences: DefaultPreferences(),
			CreatedAt:   now,
		}
		s.users[in.ID] = u
	}
	if in.Email != nil {
		u.Email = in.Email
	}
	if in.FirstName != nil {
		u.FirstName = in.FirstName
	}
	if in.LastName != nil {
		u.LastName = in.LastName
	}
	if in.ProfileImageURL != nil {
		u.ProfileImageURL = in.ProfileImageURL
	}
	u.UpdatedAt = now

	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateUserPreferences(_ context.Context, userID string, prefs Preferences) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	u.Preferences = prefs
	u.UpdatedAt = s.now()

	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateDevice(_ context.Context, in NewDevice) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return nil, ErrNotFound
	}
	for _, d := range s.devices {
		if d.SerialNumber == in.SerialNumber {
			return nil, ErrDuplicate
		}
	}

	now := s.now()
	d := &Device{
		ID:           newID(),
		UserID:       in.UserID,
		Name:         in.Name,
		SerialNumber: in.SerialNumber,
		BatteryLevel: DefaultBatteryLevel,
		LastSeen:     now,
		CreatedAt:    now,
	}
	if in.BatteryLevel != nil {
		d.BatteryLevel = *in.BatteryLevel
	}
	if in.IsOnline != nil {
		d.IsOnline = *in.IsOnline
	}
	s.devices[d.ID] = d

	cp := *d
	return &cp, nil
}

func (s *MemoryStore) GetDevice(_ context.Context, deviceID string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListDevicesByUser(_ context.Context, userID string) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]Device, 0)
	for _, d := range s.devices {
		if d.UserID == userID {
			devices = append(devices, *d)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.Before(devices[j].CreatedAt)
	})
	return devices, nil
}

func (s *MemoryStore) UpdateDeviceStatus(_ context.Context, deviceID string, isOnline bool, batteryLevel *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.IsOnline = isOnline
	d.LastSeen = s.now()
	if batteryLevel != nil {
		d.BatteryLevel = *batteryLevel
	}
	return nil
}

func (s *MemoryStore) AddLocation(_ context.Context, in NewLocation) (*Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[in.DeviceID]; !ok {
		return nil, ErrNotFound
	}

	loc := Location{
		ID:        newID(),
		DeviceID:  in.DeviceID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Accuracy:  in.Accuracy,
		Speed:     in.Speed,
		Address:   in.Address,
		Timestamp: s.now(),
	}
	s.locations[in.DeviceID] = append(s.locations[in.DeviceID], loc)
	return &loc, nil
}

func (s *MemoryStore) LatestLocation(_ context.Context, deviceID string) (*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.locations[deviceID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	loc := history[len(history)-1]
	return &loc, nil
}

func (s *MemoryStore) LocationHistory(_ context.Context, deviceID string, limit int) ([]Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.locations[deviceID], normalizeLimit(limit, DefaultHistoryLimit)), nil
}

func (s *MemoryStore) AddWeatherData(_ context.Context, in NewWeatherData) (*WeatherData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[in.DeviceID]; !ok {
		return nil, ErrNotFound
	}

	w := WeatherData{
		ID:          newID(),
		DeviceID:    in.DeviceID,
		Temperature: in.Temperature,
		Humidity:    in.Humidity,
		Pressure:    in.Pressure,
		WindSpeed:   in.WindSpeed,
		Visibility:  in.Visibility,
		RainLevel:   in.RainLevel,
		Condition:   in.Condition,
		Timestamp:   s.now(),
	}
	s.weather[in.DeviceID] = append(s.weather[in.DeviceID], w)
	return &w, nil
}

func (s *MemoryStore) LatestWeather(_ context.Context, deviceID string) (*WeatherData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.weather[deviceID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	w := history[len(history)-1]
	return &w, nil
}

func (s *MemoryStore) WeatherHistory(_ context.Context, deviceID string, limit int) ([]WeatherData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.weather[deviceID], normalizeLimit(limit, DefaultHistoryLimit)), nil
}

func (s *MemoryStore) CreateActivity(_ context.Context, in NewActivity) (*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	a := &Activity{
		ID:            newID(),
		UserID:        in.UserID,
		Title:         in.Title,
		Description:   in.Description,
		ScheduledTime: in.ScheduledTime,
		Icon:          valueOr(in.Icon, DefaultActivityIcon),
		Priority:      valueOr(in.Priority, DefaultPriority),
		IsEnabled:     valueOr(in.IsEnabled, true),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.activity[a.ID] = a

	cp := *a
	return &cp, nil
}

// ListActivitiesByUser orders by scheduled time, unscheduled last
func (s *MemoryStore) ListActivitiesByUser(_ context.Context, userID string) ([]Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activities := make([]Activity, 0)
	for _, a := range s.activity {
		if a.UserID == userID {
			activities = append(activities, *a)
		}
	}
	sort.SliceStable(activities, func(i, j int) bool {
		a, b := activities[i].ScheduledTime, activities[j].ScheduledTime
		switch {
		case a == nil && b == nil:
			return activities[i].CreatedAt.Before(activities[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return activities, nil
}

func (s *MemoryStore) UpdateActivity(_ context.Context, userID, activityID string, patch ActivityPatch) (*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activity[activityID]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	if patch.Title != nil {
		a.Title = *patch.Title
	}
	if patch.Description != nil {
		a.Description = patch.Description
	}
	if patch.ScheduledTime != nil {
		a.ScheduledTime = patch.ScheduledTime
	}
	if patch.Icon != nil {
		a.Icon = *patch.Icon
	}
	if patch.Priority != nil {
		a.Priority = *patch.Priority
	}
	if patch.IsEnabled != nil {
		a.IsEnabled = *patch.IsEnabled
	}
	a.UpdatedAt = s.now()

	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ToggleActivityCompletion(_ context.Context, userID, activityID string, completed bool) (*Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activity[activityID]
	if !ok || a.UserID != userID {
		return nil, ErrNotFound
	}
	now := s.now()
	a.IsCompleted = completed
	a.CompletedAt = nil
	if completed {
		a.CompletedAt = &now
	}
	a.UpdatedAt = now

	cp := *a
	return &cp, nil
}

func (s *MemoryStore) CreateOutfitRecommendation(_ context.Context, in NewOutfitRecommendation) (*OutfitRecommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return nil, ErrNotFound
	}

	o := OutfitRecommendation{
		ID:          newID(),
		UserID:      in.UserID,
		Name:        in.Name,
		Items:       slices.Clone(in.Items),
		Temperature: in.Temperature,
		Weather:     in.Weather,
		Confidence:  valueOr(in.Confidence, DefaultConfidence),
		CreatedAt:   s.now(),
	}
	s.outfits = append(s.outfits, o)
	return cloneOutfit(o), nil
}

func (s *MemoryStore) ListOutfitRecommendations(_ context.Context, userID string, limit int) ([]OutfitRecommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = normalizeLimit(limit, DefaultOutfitLimit)
	outfits := make([]OutfitRecommendation, 0)
	for i := len(s.outfits) - 1; i >= 0 && len(outfits) < limit; i-- {
		if s.outfits[i].UserID == userID {
			outfits = append(outfits, *cloneOutfit(s.outfits[i]))
		}
	}
	return outfits, nil
}

func (s *MemoryStore) RateOutfit(_ context.Context, userID, outfitID string, liked bool) (*OutfitRecommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outfits {
		o := &s.outfits[i]
		if o.ID == outfitID && o.UserID == userID {
			o.Liked = &liked
			return cloneOutfit(*o), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateEmergencyContact(_ context.Context, in NewEmergencyContact) (*EmergencyContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	c := &EmergencyContact{
		ID:           newID(),
		UserID:       in.UserID,
		Name:         in.Name,
		Phone:        in.Phone,
		Relationship: in.Relationship,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.contacts[c.ID] = c

	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListEmergencyContacts(_ context.Context, userID string) ([]EmergencyContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contacts := make([]EmergencyContact, 0)
	for _, c := range s.contacts {
		if c.UserID == userID {
			contacts = append(contacts, *c)
		}
	}
	sort.Slice(contacts, func(i, j int) bool {
		return strings.Compare(contacts[i].Name, contacts[j].Name) < 0
	})
	return contacts, nil
}

func (s *MemoryStore) UpdateEmergencyContact(_ context.Context, userID, contactID string, patch EmergencyContactPatch) (*EmergencyContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[contactID]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
	}
	if patch.Relationship != nil {
		c.Relationship = *patch.Relationship
	}
	c.UpdatedAt = s.now()

	cp := *c
	return &cp, nil
}

func (s *MemoryStore) DeleteEmergencyContact(_ context.Context, userID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[contactID]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(s.contacts, contactID)
	return nil
}

func (s *MemoryStore) CreateEmergencyAlert(_ context.Context, in NewEmergencyAlert) (*EmergencyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return nil, ErrNotFound
	}
	if _, ok := s.devices[in.DeviceID]; !ok {
		return nil, ErrNotFound
	}
	if in.LocationID != nil && !s.hasLocation(*in.LocationID) {
		return nil, ErrNotFound
	}

	a := EmergencyAlert{
		ID:         newID(),
		UserID:     in.UserID,
		DeviceID:   in.DeviceID,
		LocationID: in.LocationID,
		IsActive:   true,
		CreatedAt:  s.now(),
	}
	s.alerts = append(s.alerts, a)
	return &a, nil
}

func (s *MemoryStore) ListActiveEmergencyAlerts(_ context.Context, userID string) ([]EmergencyAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]EmergencyAlert, 0)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if a := s.alerts[i]; a.UserID == userID && a.IsActive {
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

func (s *MemoryStore) ResolveEmergencyAlert(_ context.Context, userID, alertID string) (*EmergencyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		a := &s.alerts[i]
		if a.ID == alertID && a.UserID == userID {
			now := s.now()
			a.IsActive = false
			a.ResolvedAt = &now
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() {}

// caller holds s.mu
func (s *MemoryStore) hasLocation(id string) bool {
	for _, history := range s.locations {
		for _, loc := range history {
			if loc.ID == id {
				return true
			}
		}
	}
	return false
}

func newestFirst[T any](history []T, limit int) []T {
	out := make([]T, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out
}

func cloneOutfit(o OutfitRecommendation) *OutfitRecommendation {
	o.Items = slices.Clone(o.Items)
	return &o
}

func valueOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
