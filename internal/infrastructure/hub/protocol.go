package hub

import (
	"context"

	"github.com/goccy/go-json"
)

// Declaration types a client may send after the handshake
const (
	DeclarationRegisterUser   = "register_user"
	DeclarationRegisterDevice = "register_device"
)

// Declaration is the subscription message a client sends
type Declaration struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
}

// ParseDeclaration decodes a raw frame into the key it declares interest
// in. Unparsable JSON, an unknown type, or a missing or empty id yields false.
func ParseDeclaration(raw []byte) (Key, bool) {
	var decl Declaration
	if err := json.Unmarshal(raw, &decl); err != nil {
		return Key{}, false
	}
	return decl.Key()
}

// Key maps the declaration to its subscription key
func (d Declaration) Key() (Key, bool) {
	switch d.Type {
	case DeclarationRegisterUser:
		if d.UserID == "" {
			return Key{}, false
		}
		return UserKey(d.UserID), true
	case DeclarationRegisterDevice:
		if d.DeviceID == "" {
			return Key{}, false
		}
		return DeviceKey(d.DeviceID), true
	default:
		return Key{}, false
	}
}

// HandleInbound applies one client frame to the registry. Malformed or
// unauthorized declarations are ignored and the connection stays open.
// Each accepted declaration adds a membership; earlier ones are kept.
func (h *Hub) HandleInbound(ctx context.Context, conn Connection, raw []byte) bool {
	key, ok := ParseDeclaration(raw)
	if !ok {
		h.metrics.declaration(declarationIgnored)
		h.logger.Debugf("Ignoring malformed declaration from %s", conn.ID())
		return false
	}
	return h.Declare(ctx, conn, key)
}

// Declare authorizes and subscribes conn to key
func (h *Hub) Declare(ctx context.Context, conn Connection, key Key) bool {
	var principal string
	if p, ok := conn.(Principal); ok {
		principal = p.Principal()
	}

	if err := h.authorizer.Authorize(ctx, principal, key); err != nil {
		h.metrics.declaration(declarationRejected)
		h.logger.Warnf("Rejected subscription of %s to %s: %v", conn.ID(), key, err)
		return false
	}

	if !h.Subscribe(key, conn) {
		h.metrics.declaration(declarationIgnored)
		return false
	}

	h.metrics.declaration(declarationAccepted)
	h.logger.Infof("Connection %s registered for %s updates", conn.ID(), key)
	return true
}
