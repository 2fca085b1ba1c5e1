// Package history keeps the capped list of accepted scan payloads.
package history

import (
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/feed"
	"github.com/narvanalabs/qrscan/internal/models"
)

// DefaultCapacity is the default maximum number of retained scans.
const DefaultCapacity = 50

// EventKind distinguishes history feed events.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventCleared EventKind = "cleared"
)

// Event is published to subscribers on every change.
type Event struct {
	Kind  EventKind         `json:"kind"`
	Entry *models.ScanEntry `json:"entry,omitempty"`
}

// ScanHistory is an append-only, capped, time-ordered record of accepted
// decoded payloads.
type ScanHistory struct {
	mu       sync.RWMutex
	entries  []models.ScanEntry // oldest first
	capacity int
	clock    clock.Clock
	broker   *feed.Broker[Event]
}

// New creates a scan history holding at most capacity entries.
func New(capacity int, clk clock.Clock, logger *slog.Logger) *ScanHistory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &ScanHistory{
		entries:  make([]models.ScanEntry, 0, capacity),
		capacity: capacity,
		clock:    clk,
		broker:   feed.NewBroker[Event]("scan-history", logger),
	}
}

// Add records content as the newest entry, evicting the oldest on overflow.
func (h *ScanHistory) Add(content string) models.ScanEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := models.ScanEntry{
		ID:        uuid.NewString(),
		Timestamp: h.clock.Now(),
		Content:   content,
		IsLink:    IsLink(content),
		FirstSeen: !h.containsLocked(content),
	}

	if len(h.entries) >= h.capacity {
		drop := len(h.entries) - h.capacity + 1
		h.entries = append(h.entries[:0], h.entries[drop:]...)
	}
	h.entries = append(h.entries, entry)

	published := entry
	h.broker.Publish(Event{Kind: EventAdded, Entry: &published})
	return entry
}

// Entries returns the retained scans, most recent first.
func (h *ScanHistory) Entries() []models.ScanEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entriesLocked()
}

// Snapshot returns the retained scans and a subscription to changes made
// after them.
func (h *ScanHistory) Snapshot() ([]models.ScanEntry, *feed.Subscription[Event]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entriesLocked(), h.broker.Subscribe()
}

func (h *ScanHistory) entriesLocked() []models.ScanEntry {
	result := make([]models.ScanEntry, len(h.entries))
	for i, e := range h.entries {
		result[len(h.entries)-1-i] = e
	}
	return result
}

// Head returns the most recent scan.
func (h *ScanHistory) Head() (models.ScanEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return models.ScanEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Clear removes all scans.
func (h *ScanHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
	h.broker.Publish(Event{Kind: EventCleared})
}

// Len returns the number of retained scans.
func (h *ScanHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Subscribe returns a feed of changes made after the call.
func (h *ScanHistory) Subscribe() *feed.Subscription[Event] {
	return h.broker.Subscribe()
}

// Unsubscribe removes a subscription created by Subscribe.
func (h *ScanHistory) Unsubscribe(sub *feed.Subscription[Event]) {
	h.broker.Unsubscribe(sub)
}

func (h *ScanHistory) containsLocked(content string) bool {
	for _, e := range h.entries {
		if e.Content == content {
			return true
		}
	}
	return false
}

// IsLink reports whether content is an absolute http or https URL.
func IsLink(content string) bool {
	content = strings.TrimSpace(content)
	u, err := url.Parse(content)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
