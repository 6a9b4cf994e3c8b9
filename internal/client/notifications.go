package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockpilot/internal/models"
)

// StoreConfig holds configuration for the notification store.
type StoreConfig struct {
	// MaxNotifications bounds the retained entries; the oldest is evicted
	// on overflow.
	MaxNotifications int
	// TTL is how long each notification lives before it expires on its own.
	TTL time.Duration
}

// DefaultStoreConfig returns the default notification store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxNotifications: 10,
		TTL:              10 * time.Second,
	}
}

type storeEntry struct {
	notification models.Notification
	timer        *time.Timer
}

// NotificationStore holds the client's bounded, self-expiring notification
// list, newest first. Event arrival, per-entry expiry, and user dismissal
// are all serialized through one mutex, so an expiry firing concurrently
// with a dismiss resolves to whichever runs first and the other becomes a
// no-op.
type NotificationStore struct {
	config StoreConfig
	logger zerolog.Logger

	mu       sync.Mutex
	entries  []*storeEntry // newest first
	lastID   int64
	onChange func()
}

// NewNotificationStore creates a notification store.
func NewNotificationStore(config StoreConfig, logger zerolog.Logger) *NotificationStore {
	if config.MaxNotifications <= 0 {
		config.MaxNotifications = DefaultStoreConfig().MaxNotifications
	}
	if config.TTL <= 0 {
		config.TTL = DefaultStoreConfig().TTL
	}
	return &NotificationStore{
		config: config,
		logger: logger,
	}
}

// OnChange sets a callback invoked after every visible mutation, for the
// rendering layer. Must be set before events start arriving.
func (s *NotificationStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// OnEvent appends a notification derived from event at the front of the
// list, evicting the oldest entries past the configured bound. Events with
// no product id are malformed and dropped.
func (s *NotificationStore) OnEvent(event models.AlertEvent) {
	if event.ProductID == 0 {
		s.logger.Warn().Msg("Dropping alert event without product id")
		return
	}

	s.mu.Lock()

	id := s.nextID()
	n := models.Notification{
		ID:         id,
		Severity:   event.Kind,
		Title:      titleFor(event),
		Message:    messageFor(event),
		ProductID:  event.ProductID,
		ReceivedAt: time.Now(),
	}

	entry := &storeEntry{notification: n}
	entry.timer = time.AfterFunc(s.config.TTL, func() {
		s.expire(id)
	})

	s.entries = append([]*storeEntry{entry}, s.entries...)

	// Evict from the back: always the chronologically oldest.
	for len(s.entries) > s.config.MaxNotifications {
		oldest := s.entries[len(s.entries)-1]
		oldest.timer.Stop()
		s.entries = s.entries[:len(s.entries)-1]
	}

	changed := s.onChange
	s.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// Dismiss removes the notification with the given id and cancels its expiry
// timer. Dismissing an id that already expired or was already dismissed is a
// no-op.
func (s *NotificationStore) Dismiss(id int64) {
	s.removeByID(id)
}

// Clear empties the list unconditionally and cancels all expiry timers.
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	for _, e := range s.entries {
		e.timer.Stop()
	}
	s.entries = nil
	changed := s.onChange
	s.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// Notifications returns a snapshot of the current entries, newest first.
func (s *NotificationStore) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Notification, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.notification
	}
	return out
}

// Len returns the number of retained notifications.
func (s *NotificationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *NotificationStore) expire(id int64) {
	s.removeByID(id)
}

func (s *NotificationStore) removeByID(id int64) {
	s.mu.Lock()
	removed := false
	for i, e := range s.entries {
		if e.notification.ID == id {
			e.timer.Stop()
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			removed = true
			break
		}
	}
	changed := s.onChange
	s.mu.Unlock()

	if removed && changed != nil {
		changed()
	}
}

// nextID returns a locally unique, monotonically increasing id. Ids are
// millisecond timestamps bumped past the previous id on collision, so an id
// is never reused and a stale timer can never remove a newer entry.
// Caller must hold s.mu.
func (s *NotificationStore) nextID() int64 {
	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func titleFor(event models.AlertEvent) string {
	switch event.Kind {
	case models.SeverityOutOfStock:
		return "Out of stock"
	case models.SeverityCritical:
		return "Critical stock level"
	default:
		return "Low stock"
	}
}

func messageFor(event models.AlertEvent) string {
	switch event.Kind {
	case models.SeverityOutOfStock:
		return fmt.Sprintf("%s is out of stock", event.ProductName)
	case models.SeverityCritical:
		return fmt.Sprintf("%s has about %d day(s) of stock left (%d on hand)",
			event.ProductName, event.DaysRemaining, event.Quantity)
	default:
		return fmt.Sprintf("%s is at or below its reorder level (%d of %d)",
			event.ProductName, event.Quantity, event.ReorderLevel)
	}
}
