package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newStreamServer(t *testing.T, authorizer hub.Authorizer) (*hub.Hub, *auth.TokenVerifier, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	h := hub.New(log, hub.WithAuthorizer(authorizer))
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })

	verifier, err := auth.NewTokenVerifier(testSecret, "", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	InitSSERouter(log, h, hub.ConnectionOptions{KeepAlive: time.Hour}, router.Group("", auth.RequireUser(verifier, "")))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return h, verifier, server
}

// readEvent collects "field: value" lines up to the blank line ending an event
func readEvent(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	event := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(event) > 0 {
				return event
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		event[field] = strings.TrimSpace(value)
	}
}

func TestConnect_StreamsDeclaredKeys(t *testing.T) {
	ownOnly := hub.AuthorizerFunc(func(_ context.Context, principal string, key hub.Key) error {
		if key.Scope == hub.ScopeUser && key.ID != principal {
			return hub.ErrForbidden
		}
		return nil
	})
	h, verifier, server := newStreamServer(t, ownOnly)

	token, err := verifier.Issue("u1", auth.Claims{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sse?userId=u1&deviceId=d1&token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	connected := readEvent(t, reader)
	assert.Equal(t, "connected", connected["event"])
	assert.Contains(t, connected["data"], "user:u1")
	assert.Contains(t, connected["data"], "device:d1")

	h.Dispatch(hub.DeviceKey("d1"), hub.WeatherUpdate(map[string]any{"temperature": 20}))

	event := readEvent(t, reader)
	assert.Equal(t, "weather_update", event["event"])
	assert.NotEmpty(t, event["id"])
	assert.JSONEq(t, `{"type":"weather_update","data":{"temperature":20}}`, event["data"])

	cancel()
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 && h.SubscriptionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnect_RejectedQueryKeyIsNotSubscribed(t *testing.T) {
	h, verifier, server := newStreamServer(t, hub.AuthorizerFunc(func(_ context.Context, principal string, key hub.Key) error {
		if key.ID != principal {
			return hub.ErrForbidden
		}
		return nil
	}))

	token, err := verifier.Issue("u1", auth.Claims{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sse?userId=someone-else&token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	connected := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "connected", connected["event"])
	assert.Contains(t, connected["data"], `"subscriptions":[]`)
	assert.Equal(t, 0, h.SubscriptionCount())
}

func TestConnect_RequiresToken(t *testing.T) {
	_, _, server := newStreamServer(t, hub.AllowAll)

	resp, err := http.Get(server.URL + "/sse?userId=u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
