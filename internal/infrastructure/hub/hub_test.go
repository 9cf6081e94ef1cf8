package hub

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-tracker/internal/infrastructure/logger"
)

func TestHub_StartStop(t *testing.T) {
	hub := New(&mockLogger{})

	ctx := context.Background()

	require.NoError(t, hub.Start(ctx))
	assert.True(t, hub.IsRunning(), "hub should be running after start")
	assert.Error(t, hub.Start(ctx), "second start must fail")

	require.NoError(t, hub.Stop(ctx))
	assert.False(t, hub.IsRunning(), "hub should not be running after stop")
	assert.NoError(t, hub.Stop(ctx), "stopping a stopped hub is a no-op")
}

func TestHub_SubscribeThenUnsubscribeAll(t *testing.T) {
	hub := New(&mockLogger{})
	conn := newMockConnection("c1")

	keys := []Key{UserKey("u1"), DeviceKey("d1"), DeviceKey("d2")}
	for _, k := range keys {
		require.True(t, hub.Subscribe(k, conn))
		assert.Contains(t, hub.MembersOf(k), Connection(conn))
	}
	assert.ElementsMatch(t, keys, hub.KeysOf(conn))

	hub.UnsubscribeAll(conn)

	for _, k := range keys {
		assert.Empty(t, hub.MembersOf(k), "%s should have no members", k)
	}
	assert.Empty(t, hub.KeysOf(conn))
	assert.Zero(t, hub.SubscriptionCount(), "empty keys must be pruned")
}

func TestHub_SubscribeIsIdempotent(t *testing.T) {
	hub := New(&mockLogger{})
	conn := newMockConnection("c1")

	hub.Subscribe(UserKey("u1"), conn)
	hub.Subscribe(UserKey("u1"), conn)

	assert.Len(t, hub.MembersOf(UserKey("u1")), 1)
	assert.Equal(t, 1, hub.SubscriptionCount())
}

func TestHub_UnsubscribeAllKeepsOtherMembers(t *testing.T) {
	hub := New(&mockLogger{})
	c1 := newMockConnection("c1")
	c2 := newMockConnection("c2")

	hub.Subscribe(UserKey("u1"), c1)
	hub.Subscribe(UserKey("u1"), c2)
	hub.Subscribe(DeviceKey("d1"), c1)

	hub.UnsubscribeAll(c1)

	assert.Equal(t, []Connection{c2}, hub.MembersOf(UserKey("u1")))
	assert.Empty(t, hub.MembersOf(DeviceKey("d1")))
	assert.Equal(t, 1, hub.SubscriptionCount())
}

func TestHub_UnsubscribeAllTwiceIsNoop(t *testing.T) {
	hub := New(&mockLogger{})
	conn := newMockConnection("c1")
	hub.Subscribe(DeviceKey("d1"), conn)

	assert.NotPanics(t, func() {
		hub.UnsubscribeAll(conn)
		hub.UnsubscribeAll(conn)
	})
	assert.Empty(t, hub.MembersOf(DeviceKey("d1")))

	never := newMockConnection("never-subscribed")
	assert.NotPanics(t, func() { hub.UnsubscribeAll(never) })
}

func TestHub_SubscribeRejectsClosedConnection(t *testing.T) {
	hub := New(&mockLogger{})
	conn := newMockConnection("c1")
	require.NoError(t, conn.Close())

	assert.False(t, hub.Subscribe(UserKey("u1"), conn))
	assert.Empty(t, hub.MembersOf(UserKey("u1")))
	assert.Zero(t, hub.SubscriptionCount())
}

func TestHub_ConnectionManagement(t *testing.T) {
	hub := New(&mockLogger{})

	ctx := context.Background()
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(ctx)

	assert.Equal(t, 0, hub.ConnectionCount())

	conn := newMockConnection("test-conn-1")
	require.NoError(t, hub.RegisterConnection(conn))
	assert.Equal(t, 1, hub.ConnectionCount())

	retrieved, exists := hub.GetConnection("test-conn-1")
	require.True(t, exists)
	assert.Equal(t, "test-conn-1", retrieved.ID())

	hub.Subscribe(UserKey("u1"), conn)
	hub.UnregisterConnection("test-conn-1")

	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Empty(t, hub.MembersOf(UserKey("u1")))
	assert.False(t, conn.IsOpen(), "unregister closes the connection")
}

func TestHub_RegisterRequiresRunningHub(t *testing.T) {
	hub := New(&mockLogger{})
	assert.Error(t, hub.RegisterConnection(newMockConnection("c1")))
}

func TestHub_TransportCloseRemovesMemberships(t *testing.T) {
	hub := New(&mockLogger{})

	ctx := context.Background()
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(ctx)

	conn := newMockConnection("c1")
	require.NoError(t, hub.RegisterConnection(conn))
	hub.Subscribe(DeviceKey("d1"), conn)
	hub.Subscribe(UserKey("u1"), conn)

	// Simulates the read pump observing a socket reset.
	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 0 && hub.SubscriptionCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_CleanupSweepsClosedConnections(t *testing.T) {
	hub := New(&mockLogger{}, WithCleanupInterval(10*time.Millisecond))

	ctx := context.Background()
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(ctx)

	// A connection whose context is never cancelled still gets swept once
	// it reports closed.
	conn := newMockConnection("c1")
	conn.detached = true
	require.NoError(t, hub.RegisterConnection(conn))
	hub.Subscribe(UserKey("u1"), conn)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 0 && len(hub.MembersOf(UserKey("u1"))) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_StopClosesEveryConnection(t *testing.T) {
	hub := New(&mockLogger{})

	ctx := context.Background()
	require.NoError(t, hub.Start(ctx))

	c1 := newMockConnection("c1")
	c2 := newMockConnection("c2")
	require.NoError(t, hub.RegisterConnection(c1))
	require.NoError(t, hub.RegisterConnection(c2))
	hub.Subscribe(UserKey("u1"), c1)

	require.NoError(t, hub.Stop(ctx))

	assert.False(t, c1.IsOpen())
	assert.False(t, c2.IsOpen())
	assert.Zero(t, hub.ConnectionCount())
	assert.Zero(t, hub.SubscriptionCount())
}

func TestHub_ConcurrentSubscribeAndTeardown(t *testing.T) {
	hub := New(&mockLogger{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		conn := newMockConnection(fmt.Sprintf("c-%d", i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Subscribe(UserKey("shared"), conn)
			hub.Subscribe(DeviceKey("shared"), conn)
		}()
		go func() {
			defer wg.Done()
			conn.Close()
			hub.UnsubscribeAll(conn)
		}()
	}
	wg.Wait()

	// Whatever the interleaving, no closed connection may remain a member
	// once its teardown has run.
	for _, k := range []Key{UserKey("shared"), DeviceKey("shared")} {
		for _, c := range hub.MembersOf(k) {
			assert.True(t, c.IsOpen())
		}
	}
}

// Mock implementations for testing

// orderedCloseConnection records how many keys the hub still held for it
// at the moment it was first closed.
type orderedCloseConnection struct {
	*mockConnection
	hub         *Hub
	once        sync.Once
	keysAtClose int
}

func (c *orderedCloseConnection) Close() error {
	c.once.Do(func() { c.keysAtClose = len(c.hub.KeysOf(c)) })
	return c.mockConnection.Close()
}

func TestHub_TeardownClosesBeforeDroppingMemberships(t *testing.T) {
	hub := New(&mockLogger{})

	ctx := context.Background()
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(ctx)

	conn := &orderedCloseConnection{mockConnection: newMockConnection("c1"), hub: hub}
	require.NoError(t, hub.RegisterConnection(conn))
	require.True(t, hub.Subscribe(UserKey("u1"), conn))

	hub.UnregisterConnection("c1")

	assert.Equal(t, 1, conn.keysAtClose, "Close must run while memberships are still in place")
	assert.Empty(t, hub.MembersOf(UserKey("u1")))
}

func TestHub_DeclareRacingRequestCancellation(t *testing.T) {
	reqCtx, cancelRequest := context.WithCancel(context.Background())

	var hub *Hub
	hub = New(&mockLogger{}, WithAuthorizer(AuthorizerFunc(func(ctx context.Context, principal string, key Key) error {
		// The client disconnects while ownership is being checked, and the
		// watcher finishes tearing the connection down first.
		cancelRequest()
		deadline := time.Now().Add(time.Second)
		for hub.ConnectionCount() > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		return nil
	})))

	ctx := context.Background()
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(ctx)

	conn := NewSSEConnection(reqCtx, "sse-1", "u1", httptest.NewRecorder(), DefaultConnectionOptions(), &mockLogger{})
	require.NoError(t, hub.RegisterConnection(conn))

	assert.False(t, hub.Declare(ctx, conn, UserKey("u1")))
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.Empty(t, hub.MembersOf(UserKey("u1")), "a torn-down connection must not be left subscribed")
	assert.Equal(t, 0, hub.SubscriptionCount())
}

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}
func (m *mockLogger) Writer() io.Writer                             { return io.Discard }

type mockConnection struct {
	id        string
	principal string
	ctx       context.Context
	cancel    context.CancelFunc

	// detached connections never cancel their context on Close
	detached bool
	sendErr  error

	mu               sync.Mutex
	closed           bool
	receivedMessages []*Message
}

func newMockConnection(id string) *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConnection{id: id, ctx: ctx, cancel: cancel}
}

func (m *mockConnection) ID() string        { return m.id }
func (m *mockConnection) Type() string      { return "mock" }
func (m *mockConnection) Principal() string { return m.principal }

func (m *mockConnection) Send(ctx context.Context, message *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnectionClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.receivedMessages = append(m.receivedMessages, message)
	return nil
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if !m.detached {
		m.cancel()
	}
	return nil
}

func (m *mockConnection) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *mockConnection) Context() context.Context { return m.ctx }

func (m *mockConnection) received() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, len(m.receivedMessages))
	copy(out, m.receivedMessages)
	return out
}
