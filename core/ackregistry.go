package core

import "sync"

// ackRegistry correlates in-flight QoS-1 packet identifiers with the
// completion callback the caller supplied to Publish/Subscribe/Unsubscribe.
// Entries are removed on first delivery, and the whole map is purged on
// hard disconnect.
type ackRegistry struct {
	mu      sync.Mutex
	pending map[uint16]func()
}

func newAckRegistry() *ackRegistry {
	return &ackRegistry{pending: make(map[uint16]func())}
}

// Bind associates a packet identifier with a completion callback. A nil
// callback is a no-op bind — the caller didn't ask to be notified.
func (a *ackRegistry) Bind(packetID uint16, cb func()) {
	if cb == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[packetID] = cb
}

// Resolve removes and returns the callback bound to packetID, if any. The
// second return value is false if no callback was bound (either the
// operation had no ack callback, or it already fired/was purged).
func (a *ackRegistry) Resolve(packetID uint16) (func(), bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cb, ok := a.pending[packetID]
	if ok {
		delete(a.pending, packetID)
	}
	return cb, ok
}

// Purge drops every pending ack without invoking its callback — used on
// hard disconnect, where an in-flight QoS-1 operation's ack can never
// arrive. A bound callback must never fire after a subsequent disconnect.
func (a *ackRegistry) Purge() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = make(map[uint16]func())
}

// Len reports the number of pending acks (used by tests).
func (a *ackRegistry) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
