package hub

import "fmt"

// Scope tags the audience a Key addresses.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeDevice Scope = "device"
)

// Key identifies an audience of connections. The scope is part of the
// identity, so UserKey("abc") and DeviceKey("abc") never share members.
type Key struct {
	Scope Scope
	ID    string
}

func UserKey(userID string) Key {
	return Key{Scope: ScopeUser, ID: userID}
}

func DeviceKey(deviceID string) Key {
	return Key{Scope: ScopeDevice, ID: deviceID}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Scope, k.ID)
}
