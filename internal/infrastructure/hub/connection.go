package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"smart-tracker/internal/infrastructure/logger"
)

// maxInboundSize bounds a single client frame; declarations are tiny.
const maxInboundSize = 4096

// ConnectionOptions tunes the transport side of a connection
type ConnectionOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
	KeepAlive    time.Duration
}

// DefaultConnectionOptions returns the settings used when none are configured
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PongTimeout:  60 * time.Second,
		PingInterval: 54 * time.Second,
		KeepAlive:    30 * time.Second,
	}
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	d := DefaultConnectionOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = d.PongTimeout
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongTimeout {
		o.PingInterval = o.PongTimeout * 9 / 10
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = d.KeepAlive
	}
	return o
}

// InboundFunc receives every text frame read from a WebSocket peer
type InboundFunc func(ctx context.Context, conn Connection, data []byte)

// WebSocketConnection implements the Connection interface for WebSocket connections
type WebSocketConnection struct {
	id        string
	principal string
	conn      *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger

	// Outbound queue drained by writePump
	send chan *Message

	onInbound InboundFunc
	opts      ConnectionOptions
}

// NewWebSocketConnection wraps an upgraded socket and starts its pumps
func NewWebSocketConnection(
	id string,
	principal string,
	conn *websocket.Conn,
	opts ConnectionOptions,
	onInbound InboundFunc,
	logger logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())
	opts = opts.withDefaults()

	wsConn := &WebSocketConnection{
		id:        id,
		principal: principal,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.WithField("connection_id", id),
		send:      make(chan *Message, opts.SendBuffer),
		onInbound: onInbound,
		opts:      opts,
	}

	wsConn.setupWebSocket()

	go wsConn.writePump()
	go wsConn.readPump()

	return wsConn
}

// ID returns unique connection identifier
func (c *WebSocketConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *WebSocketConnection) Type() string {
	return "websocket"
}

// Principal returns the authenticated user id of the handshake
func (c *WebSocketConnection) Principal() string {
	return c.principal
}

// Send queues a message without blocking. A full queue drops the message
// for this peer only.
func (c *WebSocketConnection) Send(ctx context.Context, message *Message) error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down once; later calls are no-ops
func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	c.closedMu.Unlock()

	c.cancel()

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout),
	)
	err := c.conn.Close()

	c.logger.Info("WebSocket connection closed")
	return err
}

// IsOpen reports whether the connection still accepts messages
func (c *WebSocketConnection) IsOpen() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return !c.closed
}

// Context is cancelled when the connection closes
func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

// setupWebSocket configures read limits and the pong deadline
func (c *WebSocketConnection) setupWebSocket() {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})
}

// writePump is the only writer of data frames
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			payload, err := json.Marshal(message)
			if err != nil {
				c.logger.Errorf("Failed to marshal message: %v", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("Failed to send ping: %v", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump feeds client frames to the inbound handler until the peer goes away
func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warnf("WebSocket error: %v", err)
			}
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))

		switch messageType {
		case websocket.TextMessage:
			if c.onInbound != nil {
				c.onInbound(c.ctx, c, data)
			}
		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary message of length: %d", len(data))
		}
	}
}

// SSEConnection implements the Connection interface for Server-Sent Events.
// The request goroutine owns the writer and runs Serve.
type SSEConnection struct {
	id        string
	principal string
	writer    http.ResponseWriter

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger

	send chan *Message
	opts ConnectionOptions
}

// NewSSEConnection creates a new SSE connection bound to the request context
func NewSSEConnection(
	ctx context.Context,
	id string,
	principal string,
	w http.ResponseWriter,
	opts ConnectionOptions,
	logger logger.Logger,
) *SSEConnection {
	rctx, cancel := context.WithCancel(ctx)
	opts = opts.withDefaults()

	conn := &SSEConnection{
		id:        id,
		principal: principal,
		writer:    w,
		ctx:       rctx,
		cancel:    cancel,
		logger:    logger.WithField("connection_id", id),
		send:      make(chan *Message, opts.SendBuffer),
		opts:      opts,
	}

	conn.setupSSEHeaders()
	return conn
}

// ID returns unique connection identifier
func (c *SSEConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *SSEConnection) Type() string {
	return "sse"
}

// Principal returns the authenticated user id of the request
func (c *SSEConnection) Principal() string {
	return c.principal
}

// Send queues a message for Serve without blocking
func (c *SSEConnection) Send(ctx context.Context, message *Message) error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendBufferFull
	}
}

// Close marks the stream closed and releases Serve
func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	c.logger.Info("SSE connection closed")
	return nil
}

// IsOpen reports whether the stream still accepts messages. A cancelled
// request context counts as closed even before Close runs.
func (c *SSEConnection) IsOpen() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return !c.closed && c.ctx.Err() == nil
}

// Context returns the connection's context (for cancellation)
func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// Serve writes queued messages and keep-alives until the connection closes
func (c *SSEConnection) Serve() {
	defer c.Close()

	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			keepAlive := NewMessage(MessageTypeKeepAlive, map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})
			if err := c.write(keepAlive); err != nil {
				c.logger.Debugf("Failed to send keep-alive: %v", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// write encodes a message as one SSE event whose data is the JSON envelope
func (c *SSEConnection) write(message *Message) error {
	if err := encodeSSE(c.writer, message); err != nil {
		return err
	}
	if flusher, ok := c.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func encodeSSE(w io.Writer, message *Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return sse.Encode(w, sse.Event{
		Id:    message.ID,
		Event: message.Type,
		Data:  string(payload),
	})
}

// setupSSEHeaders sets up the proper headers for SSE connection
func (c *SSEConnection) setupSSEHeaders() {
	c.writer.Header().Set("Content-Type", "text/event-stream")
	c.writer.Header().Set("Cache-Control", "no-cache")
	c.writer.Header().Set("Connection", "keep-alive")
	c.writer.Header().Set("X-Accel-Buffering", "no") // For nginx
}
