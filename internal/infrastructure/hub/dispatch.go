package hub

import (
	"context"
	"errors"
)

// Dispatch delivers message to every open member of key, best effort.
//
// Members are snapshotted under the read lock and the lock is released
// before any Send. Closed members are skipped, not removed; removal is
// UnsubscribeAll's job. A key without members is a silent no-op.
func (h *Hub) Dispatch(key Key, message *Message) {
	h.metrics.dispatched(message.Type)

	members := h.MembersOf(key)
	if len(members) == 0 {
		h.logger.Debugf("No subscribers for %s, dropping %s", key, message.Type)
		return
	}

	sent := 0
	for _, conn := range members {
		if !conn.IsOpen() {
			h.metrics.delivery(deliverySkipped)
			continue
		}

		if err := conn.Send(context.Background(), message); err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				h.metrics.delivery(deliverySkipped)
			} else {
				h.metrics.delivery(deliveryDropped)
				h.logger.Warnf("Dropped %s for connection %s: %v", message.Type, conn.ID(), err)
			}
			continue
		}

		h.metrics.delivery(deliverySent)
		sent++
	}

	h.logger.Debugf("Dispatched %s to %d/%d connections of %s", message.Type, sent, len(members), key)
}
