package hub

import (
	"context"
	"errors"
)

var (
	// ErrConnectionClosed is returned by Send once a connection reached its
	// terminal state.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrSendBufferFull is returned when a peer is not draining its queue.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrForbidden is returned by an Authorizer that rejects a declaration.
	ErrForbidden = errors.New("subscription not permitted")
)

// Connection represents any type of live client session (WebSocket, SSE).
//
// Send must never block on the network and must not panic when the
// connection is no longer open; it reports ErrConnectionClosed instead.
type Connection interface {
	ID() string
	Type() string
	Send(ctx context.Context, message *Message) error
	Close() error
	IsOpen() bool
	Context() context.Context
}

// Authorizer decides whether the authenticated principal behind a
// connection may subscribe to key.
type Authorizer interface {
	Authorize(ctx context.Context, principal string, key Key) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, principal string, key Key) error

func (f AuthorizerFunc) Authorize(ctx context.Context, principal string, key Key) error {
	return f(ctx, principal, key)
}

// AllowAll accepts every declaration.
var AllowAll = AuthorizerFunc(func(context.Context, string, Key) error { return nil })

// Principal is implemented by connections that carry the authenticated
// user id established during the handshake.
type Principal interface {
	Principal() string
}
