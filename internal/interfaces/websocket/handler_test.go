package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-tracker/internal/application/tracker"
	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
	"smart-tracker/internal/infrastructure/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	hub      *hub.Hub
	svc      *tracker.Service
	store    *storage.MemoryStore
	verifier *auth.TokenVerifier
	server   *httptest.Server
}

func newTestEnv(t *testing.T, allowedOrigins ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	store := storage.NewMemoryStore()

	var svc *tracker.Service
	h := hub.New(log, hub.WithAuthorizer(hub.AuthorizerFunc(func(ctx context.Context, principal string, key hub.Key) error {
		return svc.Authorize(ctx, principal, key)
	})))
	svc = tracker.NewService(store, h, log)

	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })

	verifier, err := auth.NewTokenVerifier(testSecret, "smart-tracker", time.Hour)
	require.NoError(t, err)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	router := gin.New()
	secured := router.Group("", auth.RequireUser(verifier, "tracker_session"))
	InitWebSocketRouter(log, h, Options{AllowedOrigins: allowedOrigins}, "/ws", secured)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{hub: h, svc: svc, store: store, verifier: verifier, server: server}
}

func (e *testEnv) user(t *testing.T, id string) string {
	t.Helper()
	_, err := e.svc.EnsureUser(context.Background(), storage.UpsertUser{ID: id})
	require.NoError(t, err)
	token, err := e.verifier.Issue(id, auth.Claims{})
	require.NoError(t, err)
	return token
}

func (e *testEnv) dial(t *testing.T, token string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func declare(t *testing.T, conn *gorilla.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(frame)))
}

func readFrame(t *testing.T, conn *gorilla.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func assertNoFrame(t *testing.T, conn *gorilla.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no frame")
}

func TestConnect_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnect_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, "https://app.example")
	token := env.user(t, "u1")

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=" + token
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := gorilla.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example")
	conn, resp, err := gorilla.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

// A device declaration followed by a recorded location delivers exactly one
// location_update frame carrying the stored row.
func TestEndToEnd_DeviceSubscriptionReceivesLocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.user(t, "u1")

	device, err := env.store.CreateDevice(ctx, storage.NewDevice{UserID: "u1", Name: "Tracker", SerialNumber: "SN-1"})
	require.NoError(t, err)

	conn := env.dial(t, token)
	declare(t, conn, `{"type":"register_device","deviceId":"`+device.ID+`"}`)
	require.Eventually(t, func() bool { return env.hub.SubscriptionCount() == 1 }, time.Second, 10*time.Millisecond)

	loc, err := env.svc.RecordLocation(ctx, "u1", storage.NewLocation{DeviceID: device.ID, Latitude: 1, Longitude: 2})
	require.NoError(t, err)

	frame := readFrame(t, conn)
	assert.Contains(t, frame, `"type":"location_update"`)
	assert.Contains(t, frame, `"id":"`+loc.ID+`"`)
	assert.Contains(t, frame, `"latitude":1`)
	assertNoFrame(t, conn)
}

// Two sessions of one user receive an alert; a session that went away is
// dropped from the registry and no longer counted.
func TestEndToEnd_ClosedSessionIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.user(t, "u1")

	device, err := env.store.CreateDevice(ctx, storage.NewDevice{UserID: "u1", Name: "Tracker", SerialNumber: "SN-1"})
	require.NoError(t, err)

	c1 := env.dial(t, token)
	c2 := env.dial(t, token)
	declare(t, c1, `{"type":"register_user","userId":"u1"}`)
	declare(t, c2, `{"type":"register_user","userId":"u1"}`)
	require.Eventually(t, func() bool { return len(env.hub.MembersOf(hub.UserKey("u1"))) == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c1.Close())
	require.Eventually(t, func() bool { return len(env.hub.MembersOf(hub.UserKey("u1"))) == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = env.svc.RaiseEmergencyAlert(ctx, "u1", storage.NewEmergencyAlert{DeviceID: device.ID})
	require.NoError(t, err)

	assert.Contains(t, readFrame(t, c2), `"type":"emergency_alert"`)
	assert.Eventually(t, func() bool { return env.hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEndToEnd_ForeignDeclarationIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	intruder := env.user(t, "intruder")
	env.user(t, "victim")

	conn := env.dial(t, intruder)
	declare(t, conn, `{"type":"register_user","userId":"victim"}`)
	declare(t, conn, `not json`)
	declare(t, conn, `{"type":"register_user","userId":"intruder"}`)
	require.Eventually(t, func() bool { return env.hub.SubscriptionCount() == 1 }, time.Second, 10*time.Millisecond)

	// Frames arrive in order, so the first one read proves the victim's
	// alert was never queued. The connection survived the rejected and
	// malformed frames.
	env.hub.Dispatch(hub.UserKey("victim"), hub.EmergencyAlert(map[string]any{"id": "a1"}))
	env.hub.Dispatch(hub.UserKey("intruder"), hub.EmergencyAlert(map[string]any{"id": "a2"}))
	assert.JSONEq(t, `{"type":"emergency_alert","data":{"id":"a2"}}`, readFrame(t, conn))
}
