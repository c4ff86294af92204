package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription is a live in-process listener on the bus. Events arrive on
// the channel returned by Events; the channel is closed on Unsubscribe.
type Subscription struct {
	id    uuid.UUID
	names map[string]struct{} // empty means all events
	ch    chan *Event
}

// Events returns the receive channel for this subscription.
func (s *Subscription) Events() <-chan *Event {
	return s.ch
}

// matches reports whether the subscription wants the given event name.
func (s *Subscription) matches(name string) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Bus is the in-process event bus. Publish fans out synchronously to
// subscribed listeners (never blocking on a slow one) and appends the
// event to a bounded delivery queue consumed by the webhook dispatcher.
// The two paths fail independently: a full delivery queue never affects
// live listeners and vice versa.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	buffer int

	delivery chan *Event
	closed   bool

	logger *slog.Logger
}

// BusConfig holds configuration for the event bus.
type BusConfig struct {
	// DeliveryQueueSize bounds the webhook delivery queue.
	DeliveryQueueSize int

	// SubscriberBuffer is the per-listener channel buffer. A listener
	// that falls this far behind starts dropping events.
	SubscriberBuffer int
}

// DefaultBusConfig returns a BusConfig with reasonable defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		DeliveryQueueSize: 256,
		SubscriberBuffer:  64,
	}
}

// NewBus creates a new event bus.
func NewBus(cfg BusConfig, logger *slog.Logger) *Bus {
	if cfg.DeliveryQueueSize <= 0 {
		cfg.DeliveryQueueSize = DefaultBusConfig().DeliveryQueueSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultBusConfig().SubscriberBuffer
	}

	return &Bus{
		subs:     make(map[uuid.UUID]*Subscription),
		buffer:   cfg.SubscriberBuffer,
		delivery: make(chan *Event, cfg.DeliveryQueueSize),
		logger:   logger.With("component", "event_bus"),
	}
}

// Subscribe registers an in-process listener for the given event names.
// An empty name list subscribes to all events.
func (b *Bus) Subscribe(names ...string) *Subscription {
	sub := &Subscription{
		id:    uuid.New(),
		names: make(map[string]struct{}, len(names)),
		ch:    make(chan *Event, b.buffer),
	}
	for _, n := range names {
		sub.names[n] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub.id] = sub
	b.logger.Debug("listener subscribed",
		"subscription_id", sub.id,
		"listener_count", len(b.subs))
	return sub
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	b.logger.Debug("listener unsubscribed",
		"subscription_id", sub.id,
		"listener_count", len(b.subs))
}

// Publish delivers the event to all matching in-process listeners and
// appends it to the webhook delivery queue. Neither path blocks: a
// listener whose buffer is full and a full delivery queue both drop the
// event with a log line.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	closed := b.closed
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.matches(event.Name) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropping event for slow listener",
				"event", event.Name,
				"subscription_id", sub.id)
		}
	}

	if closed {
		return
	}

	select {
	case b.delivery <- event:
	default:
		b.logger.Error("webhook delivery queue full, dropping event",
			"event", event.Name)
	}
}

// DeliveryQueue returns the channel consumed by the webhook dispatcher.
func (b *Bus) DeliveryQueue() <-chan *Event {
	return b.delivery
}

// Close stops accepting events for webhook delivery and closes the
// delivery queue so the dispatcher loop can drain and exit. In-process
// subscriptions remain usable until individually unsubscribed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.delivery)
	b.logger.Info("event bus closed")
}
