// Package stream provides in-process fan-out of alert events to subscribers.
package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockpilot/internal/models"
)

// HubConfig holds configuration for the broadcast hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerLogThreshold is the number of drops on a single
	// subscription after which a warning is logged.
	SlowConsumerLogThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize:     64,
		SlowConsumerLogThreshold: 10,
	}
}

// Hub fans out alert events from a single publisher to every currently
// registered subscriber. Each subscriber receives events on its own buffered
// channel, so a slow consumer never stalls the publisher or its peers.
//
// The hub is owned by the process composition root and injected into
// whichever component needs to publish or subscribe; it is not a package
// singleton. Events published while a client is absent are dropped, not
// queued: the feed is advisory, not an audit trail.
//
// Overflow policy: sends are non-blocking, so when a subscriber's buffer is
// full the incoming event is dropped for that subscriber (drop-newest).
// Per-subscriber delivery order is the publish order.
type Hub struct {
	config HubConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	// Metrics
	metricsMu       sync.Mutex
	eventsPublished uint64
	eventsDelivered uint64
	eventsDropped   uint64
}

// Subscription is one subscriber's handle on the hub. Events arrive on C in
// publish order. C is closed when the subscription is cancelled or the hub
// shuts down.
type Subscription struct {
	C <-chan models.AlertEvent

	ch        chan models.AlertEvent
	createdAt time.Time
	dropped   int
}

// NewHub creates a hub with default configuration.
func NewHub(logger zerolog.Logger) *Hub {
	return NewHubWithConfig(DefaultHubConfig(), logger)
}

// NewHubWithConfig creates a hub with custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config: config,
		logger: logger,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber. Safe to call concurrently with
// Publish. Returns a handle whose channel receives every event published
// while the handle is registered.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan models.AlertEvent, h.config.SubscriberBufferSize)
	sub := &Subscription{
		C:         ch,
		ch:        ch,
		createdAt: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe deregisters a subscriber and closes its channel. Safe to call
// while a publish is in flight: the write lock excludes in-progress sends,
// so the channel is never closed under a sender. Calling it twice, or with a
// handle the hub never issued, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Publish delivers event to every subscriber registered at the moment of the
// call. It never blocks on a slow subscriber: a full buffer drops the event
// for that subscriber only. Publishing with zero subscribers is a no-op.
func (h *Hub) Publish(event models.AlertEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.metricsMu.Lock()
	h.eventsPublished++
	h.metricsMu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- event:
			h.metricsMu.Lock()
			h.eventsDelivered++
			h.metricsMu.Unlock()
		default:
			// Buffer full: drop the newest event for this subscriber.
			h.metricsMu.Lock()
			sub.dropped++
			dropped := sub.dropped
			h.eventsDropped++
			h.metricsMu.Unlock()
			if dropped == h.config.SlowConsumerLogThreshold {
				h.logger.Warn().
					Int("dropped", dropped).
					Msg("Slow alert subscriber, dropping events")
			}
		}
	}
}

// Close shuts the hub down and closes every subscriber channel. Publishes
// after Close deliver to nobody.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// HubMetrics contains hub delivery counters.
type HubMetrics struct {
	EventsPublished uint64
	EventsDelivered uint64
	EventsDropped   uint64
	Subscribers     int
}

// Metrics returns a snapshot of the hub's delivery counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	m := HubMetrics{
		EventsPublished: h.eventsPublished,
		EventsDelivered: h.eventsDelivered,
		EventsDropped:   h.eventsDropped,
	}
	h.metricsMu.Unlock()
	m.Subscribers = h.SubscriberCount()
	return m
}
