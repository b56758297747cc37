package events

import (
	"sync"
	"sync/atomic"

	"peerchat/pkg/logger"
	"peerchat/pkg/models"
)

// Kind enumerates the notifications the engine raises toward the
// presentation layer. Each carries enough identity for an incremental UI
// update; none require a full re-fetch.
type Kind int

const (
	MessageInserted Kind = iota
	MessageStateChanged
	MessageDeleted
	MembershipChanged
	ConnectionChanged
)

func (k Kind) String() string {
	switch k {
	case MessageInserted:
		return "message_inserted"
	case MessageStateChanged:
		return "message_state_changed"
	case MessageDeleted:
		return "message_deleted"
	case MembershipChanged:
		return "membership_changed"
	case ConnectionChanged:
		return "connection_changed"
	}
	return "unknown"
}

// Event is one notification. GUID/LocalID are set for message events,
// ConnState for connection events.
type Event struct {
	Kind      Kind
	Chat      string
	GUID      uint64
	LocalID   int64
	State     models.DeliveryState
	ConnState string
}

// Bus is an explicit subscribe/unsubscribe fanout. Subscriptions are owned
// by the observing view and must be cancelled when the view closes; there is
// no ambient global registry.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	dropped uint64
}

// Subscription receives events on C until Cancel is called. C is never
// closed by the bus while the subscription is live.
type Subscription struct {
	C   chan Event
	id  uint64
	bus *Bus
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{C: make(chan Event, buffer), id: b.nextID, bus: b}
	b.subs[s.id] = s
	return s
}

// Cancel removes the subscription from the bus. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	s.bus = nil
}

// Publish delivers ev to every live subscriber without blocking. A
// subscriber that cannot keep up loses the event; the ledger remains the
// source of truth so a slow view can always re-read.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.C <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
			logger.Debug("bus_subscriber_lagging", "kind", ev.Kind.String(), "chat", ev.Chat)
		}
	}
}

// Dropped returns the number of events lost to lagging subscribers.
func (b *Bus) Dropped() uint64 { return atomic.LoadUint64(&b.dropped) }

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
