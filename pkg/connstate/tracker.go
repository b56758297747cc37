// Package connstate tracks the per-group-chat connection state machine:
// Disconnected -> Connecting -> Subscribed, driven purely by boundary status
// pushes. The state is ephemeral presentation state; it is never persisted
// and is discarded when no view observes the chat.
package connstate

import (
	"sync"

	"peerchat/pkg/events"
	"peerchat/pkg/logger"
	"peerchat/pkg/models"
)

// Tracker holds the current connection state per chat. It owns no timers
// and performs no I/O; transitions happen only when Apply is called with a
// boundary push, in receipt order.
type Tracker struct {
	mu  sync.Mutex
	m   map[string]models.ConnState
	bus *events.Bus
}

// New builds an empty Tracker publishing to bus.
func New(bus *events.Bus) *Tracker {
	return &Tracker{m: make(map[string]models.ConnState), bus: bus}
}

// Apply records the pushed state and notifies observers. Entering
// Subscribed is the conventional moment for the observer to refresh the
// member list; the tracker only surfaces the transition.
func (t *Tracker) Apply(chatID string, st models.ConnState) {
	t.mu.Lock()
	prev, known := t.m[chatID]
	t.m[chatID] = st
	t.mu.Unlock()
	if known && prev == st {
		return
	}
	logger.Debug("connection_state", "chat", chatID, "from", prev.String(), "to", st.String())
	t.bus.Publish(events.Event{Kind: events.ConnectionChanged, Chat: chatID, ConnState: st.String()})
}

// State returns the tracked state, Disconnected when the chat is unknown.
func (t *Tracker) State(chatID string) models.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[chatID]
}

// Forget drops the tracked state when the observing view closes.
func (t *Tracker) Forget(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, chatID)
}
