package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
	"smart-tracker/internal/infrastructure/storage"
)

type dispatched struct {
	key     hub.Key
	message *hub.Message
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatched
}

func (d *recordingDispatcher) Dispatch(key hub.Key, message *hub.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, dispatched{key: key, message: message})
}

func (d *recordingDispatcher) all() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched(nil), d.events...)
}

type fixture struct {
	svc        *Service
	store      *storage.MemoryStore
	dispatcher *recordingDispatcher
	owner      *storage.User
	stranger   *storage.User
	device     *storage.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	d := &recordingDispatcher{}
	svc := NewService(store, d, logger.NewNop())

	owner, err := svc.EnsureUser(ctx, storage.UpsertUser{ID: "owner"})
	require.NoError(t, err)
	stranger, err := svc.EnsureUser(ctx, storage.UpsertUser{ID: "stranger"})
	require.NoError(t, err)
	device, err := store.CreateDevice(ctx, storage.NewDevice{UserID: owner.ID, Name: "Tracker", SerialNumber: "SN-1"})
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, dispatcher: d, owner: owner, stranger: stranger, device: device}
}

func TestRecordLocation_PersistsThenDispatchesToDevice(t *testing.T) {
	f := newFixture(t)

	loc, err := f.svc.RecordLocation(context.Background(), f.owner.ID, storage.NewLocation{
		DeviceID: f.device.ID, Latitude: 37.7749, Longitude: -122.4194,
	})
	require.NoError(t, err)

	latest, err := f.store.LatestLocation(context.Background(), f.device.ID)
	require.NoError(t, err)
	assert.Equal(t, loc.ID, latest.ID)

	events := f.dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, hub.DeviceKey(f.device.ID), events[0].key)
	assert.Equal(t, string(hub.MessageTypeLocationUpdate), events[0].message.Type)
	assert.Same(t, loc, events[0].message.Data)
}

func TestRecordWeather_DispatchesToDevice(t *testing.T) {
	f := newFixture(t)
	temp := 21.5

	w, err := f.svc.RecordWeather(context.Background(), f.owner.ID, storage.NewWeatherData{DeviceID: f.device.ID, Temperature: &temp})
	require.NoError(t, err)

	events := f.dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, hub.DeviceKey(f.device.ID), events[0].key)
	assert.Equal(t, string(hub.MessageTypeWeatherUpdate), events[0].message.Type)
	assert.Same(t, w, events[0].message.Data)
}

func TestRaiseEmergencyAlert_DispatchesToUser(t *testing.T) {
	f := newFixture(t)

	alert, err := f.svc.RaiseEmergencyAlert(context.Background(), f.owner.ID, storage.NewEmergencyAlert{DeviceID: f.device.ID})
	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, alert.UserID)
	assert.True(t, alert.IsActive)

	events := f.dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, hub.UserKey(f.owner.ID), events[0].key)
	assert.Equal(t, string(hub.MessageTypeEmergencyAlert), events[0].message.Type)
}

func TestWrites_RejectForeignDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordLocation(ctx, f.stranger.ID, storage.NewLocation{DeviceID: f.device.ID})
	assert.ErrorIs(t, err, ErrDeviceAccessDenied)

	_, err = f.svc.RecordWeather(ctx, f.owner.ID, storage.NewWeatherData{DeviceID: "missing"})
	assert.ErrorIs(t, err, ErrDeviceAccessDenied)

	_, err = f.svc.RaiseEmergencyAlert(ctx, f.stranger.ID, storage.NewEmergencyAlert{DeviceID: f.device.ID})
	assert.ErrorIs(t, err, ErrDeviceAccessDenied)

	assert.Empty(t, f.dispatcher.all(), "nothing is dispatched when the write is refused")

	history, err := f.store.LocationHistory(ctx, f.device.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		principal string
		key       hub.Key
		allowed   bool
	}{
		{"own user key", f.owner.ID, hub.UserKey(f.owner.ID), true},
		{"other user key", f.owner.ID, hub.UserKey(f.stranger.ID), false},
		{"own device", f.owner.ID, hub.DeviceKey(f.device.ID), true},
		{"foreign device", f.stranger.ID, hub.DeviceKey(f.device.ID), false},
		{"unknown device", f.owner.ID, hub.DeviceKey("nope"), false},
		{"anonymous", "", hub.UserKey(""), false},
		{"unknown scope", f.owner.ID, hub.Key{Scope: "group", ID: f.owner.ID}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Authorize(ctx, tt.principal, tt.key)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, hub.ErrForbidden)
			}
		})
	}
}

func TestEnsureUser_DoesNotOverwriteExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prefs := storage.DefaultPreferences()
	prefs.EmergencyMode = true
	_, err := f.store.UpdateUserPreferences(ctx, f.owner.ID, prefs)
	require.NoError(t, err)

	user, err := f.svc.EnsureUser(ctx, storage.UpsertUser{ID: f.owner.ID})
	require.NoError(t, err)
	assert.True(t, user.Preferences.EmergencyMode)
}
