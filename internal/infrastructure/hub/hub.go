package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smart-tracker/internal/infrastructure/logger"
)

const defaultCleanupInterval = 30 * time.Second

// Hub is the connection registry. It tracks every live connection and the
// membership set of each subscription key.
//
// Invariant: a connection appears under a key iff it subscribed to that key
// and has not been torn down since. Keys with no members are deleted.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]Connection
	members     map[Key]map[string]Connection
	keysByConn  map[string]map[Key]struct{}

	running   bool
	runningMu sync.RWMutex

	authorizer      Authorizer
	metrics         *Metrics
	logger          logger.Logger
	cleanupInterval time.Duration

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Hub
type Option func(*Hub)

// WithAuthorizer sets the check applied to every subscription declaration.
// Without it every declaration is accepted.
func WithAuthorizer(a Authorizer) Option {
	return func(h *Hub) {
		if a != nil {
			h.authorizer = a
		}
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithCleanupInterval sets how often closed connections are swept
func WithCleanupInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.cleanupInterval = d
		}
	}
}

// New creates a new Hub instance
func New(log logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		connections:     make(map[string]Connection),
		members:         make(map[Key]map[string]Connection),
		keysByConn:      make(map[string]map[Key]struct{}),
		authorizer:      AllowAll,
		logger:          log.WithField("component", "hub"),
		cleanupInterval: defaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start starts the hub and its background sweeper
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	h.running = true

	go h.run()

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop closes every connection and clears all memberships
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()

	h.mu.Lock()
	conns := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.connections = make(map[string]Connection)
	h.members = make(map[Key]map[string]Connection)
	h.keysByConn = make(map[string]map[Key]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
	h.metrics.reset()

	select {
	case <-h.done:
	case <-ctx.Done():
		h.logger.Warn("Hub stop timed out waiting for sweeper")
	}

	h.running = false
	h.logger.Infof("Hub stopped successfully, closed %d connections", len(conns))
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// RegisterConnection starts tracking a live connection. The connection is
// torn down automatically once its context is cancelled.
func (h *Hub) RegisterConnection(conn Connection) error {
	h.runningMu.RLock()
	running, hubCtx := h.running, h.ctx
	h.runningMu.RUnlock()

	if !running {
		return fmt.Errorf("hub is not running")
	}
	if !conn.IsOpen() {
		return ErrConnectionClosed
	}

	h.mu.Lock()
	h.connections[conn.ID()] = conn
	count := len(h.connections)
	h.mu.Unlock()

	h.metrics.setConnections(count)
	h.logger.Infof("Connection %s registered (type: %s)", conn.ID(), conn.Type())

	go func() {
		select {
		case <-conn.Context().Done():
			h.unregister(conn)
		case <-hubCtx.Done():
		}
	}()

	return nil
}

// UnregisterConnection removes a connection from the hub and from every
// membership set, then closes it. Unknown ids are ignored.
func (h *Hub) UnregisterConnection(connID string) {
	conn, exists := h.GetConnection(connID)
	if !exists {
		return
	}
	h.unregister(conn)
}

// unregister closes conn before dropping its memberships so a concurrent
// Subscribe either lands before UnsubscribeAll or sees the closed state.
func (h *Hub) unregister(conn Connection) {
	if err := conn.Close(); err != nil {
		h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
	}
	h.UnsubscribeAll(conn)

	h.mu.Lock()
	current, exists := h.connections[conn.ID()]
	if exists && current == conn {
		delete(h.connections, conn.ID())
	}
	count := len(h.connections)
	h.mu.Unlock()

	if exists && current == conn {
		h.metrics.setConnections(count)
		h.logger.Infof("Connection %s unregistered", conn.ID())
	}
}

// Subscribe adds conn to the membership set of key. Subscribing twice is
// the same as subscribing once. A closed connection is never added; the
// return value reports whether conn is a member afterwards.
func (h *Hub) Subscribe(key Key, conn Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !conn.IsOpen() {
		return false
	}

	set, ok := h.members[key]
	if !ok {
		set = make(map[string]Connection)
		h.members[key] = set
	}
	if _, already := set[conn.ID()]; already {
		return true
	}
	set[conn.ID()] = conn

	keys, ok := h.keysByConn[conn.ID()]
	if !ok {
		keys = make(map[Key]struct{})
		h.keysByConn[conn.ID()] = keys
	}
	keys[key] = struct{}{}

	h.metrics.subscriptionAdded(key.Scope)
	h.logger.Debugf("Connection %s subscribed to %s", conn.ID(), key)
	return true
}

// UnsubscribeAll removes conn from every key it belongs to and prunes keys
// left empty. Calling it again for the same connection is a no-op.
func (h *Hub) UnsubscribeAll(conn Connection) {
	h.mu.Lock()
	keys, ok := h.keysByConn[conn.ID()]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.keysByConn, conn.ID())

	for key := range keys {
		set, exists := h.members[key]
		if !exists {
			continue
		}
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(h.members, key)
		}
	}
	h.mu.Unlock()

	for key := range keys {
		h.metrics.subscriptionRemoved(key.Scope)
	}
	h.logger.Debugf("Connection %s removed from %d subscriptions", conn.ID(), len(keys))
}

// MembersOf returns a snapshot of the connections currently subscribed to key
func (h *Hub) MembersOf(key Key) []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.members[key]
	members := make([]Connection, 0, len(set))
	for _, conn := range set {
		members = append(members, conn)
	}
	return members
}

// KeysOf returns the keys conn is currently subscribed to
func (h *Hub) KeysOf(conn Connection) []Key {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]Key, 0, len(h.keysByConn[conn.ID()]))
	for key := range h.keysByConn[conn.ID()] {
		keys = append(keys, key)
	}
	return keys
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, exists := h.connections[connID]
	return conn, exists
}

// GetConnections returns all tracked connections
func (h *Hub) GetConnections() []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	return connections
}

// ConnectionCount returns the number of tracked connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SubscriptionCount returns the number of keys with at least one member
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// run sweeps connections that closed without their watcher firing
func (h *Hub) run() {
	defer close(h.done)

	ticker := time.NewTicker(h.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-h.ctx.Done():
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

// cleanupClosedConnections removes connections that have been closed
func (h *Hub) cleanupClosedConnections() {
	h.mu.RLock()
	closed := make([]Connection, 0)
	for _, conn := range h.connections {
		if !conn.IsOpen() {
			closed = append(closed, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range closed {
		h.unregister(conn)
		h.logger.Infof("Cleaned up closed connection %s", conn.ID())
	}
}
