// Package logs provides the in-memory event log shown by the log viewer.
package logs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/feed"
	"github.com/narvanalabs/qrscan/internal/models"
)

// DefaultCapacity is the default maximum number of retained entries.
const DefaultCapacity = 100

// EventKind distinguishes feed events.
type EventKind string

const (
	// EventAppended carries a newly recorded entry.
	EventAppended EventKind = "appended"
	// EventCleared signals that all entries were removed.
	EventCleared EventKind = "cleared"
)

// Event is published to subscribers on every change.
type Event struct {
	Kind  EventKind        `json:"kind"`
	Entry *models.LogEntry `json:"entry,omitempty"`
}

// EventLog is an append-only, capped, time-ordered record of diagnostic
// events. When the capacity is reached the oldest entry is evicted.
// Entries are mirrored to the process logger.
type EventLog struct {
	mu       sync.RWMutex
	entries  []models.LogEntry // oldest first
	capacity int
	clock    clock.Clock
	broker   *feed.Broker[Event]
	logger   *slog.Logger
}

// NewEventLog creates an event log holding at most capacity entries.
func NewEventLog(capacity int, clk clock.Clock, logger *slog.Logger) *EventLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{
		entries:  make([]models.LogEntry, 0, capacity),
		capacity: capacity,
		clock:    clk,
		broker:   feed.NewBroker[Event]("event-log", logger),
		logger:   logger,
	}
}

// Debug records a DEBUG entry.
func (l *EventLog) Debug(message string, data ...any) models.LogEntry {
	return l.Log(models.LogLevelDebug, message, payload(data))
}

// Info records an INFO entry.
func (l *EventLog) Info(message string, data ...any) models.LogEntry {
	return l.Log(models.LogLevelInfo, message, payload(data))
}

// Warn records a WARN entry.
func (l *EventLog) Warn(message string, data ...any) models.LogEntry {
	return l.Log(models.LogLevelWarn, message, payload(data))
}

// Error records an ERROR entry.
func (l *EventLog) Error(message string, data ...any) models.LogEntry {
	return l.Log(models.LogLevelError, message, payload(data))
}

// Log records an entry at the given level and publishes it.
func (l *EventLog) Log(level models.LogLevel, message string, data any) models.LogEntry {
	entry := models.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: l.clock.Now(),
		Level:     level,
		Message:   message,
		Data:      data,
	}

	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		drop := len(l.entries) - l.capacity + 1
		l.entries = append(l.entries[:0], l.entries[drop:]...)
	}
	l.entries = append(l.entries, entry)
	published := entry
	l.broker.Publish(Event{Kind: EventAppended, Entry: &published})
	l.mu.Unlock()

	l.mirror(entry)
	return entry
}

// Entries returns the retained entries, most recent first.
func (l *EventLog) Entries() []models.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entriesLocked()
}

// Snapshot returns the retained entries together with a subscription to
// every change made after them. Appends are published under the same lock,
// so no entry is both in the snapshot and on the feed.
func (l *EventLog) Snapshot() ([]models.LogEntry, *feed.Subscription[Event]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entriesLocked(), l.broker.Subscribe()
}

func (l *EventLog) entriesLocked() []models.LogEntry {
	result := make([]models.LogEntry, len(l.entries))
	for i, e := range l.entries {
		result[len(l.entries)-1-i] = e
	}
	return result
}

// Clear removes all entries.
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
	l.broker.Publish(Event{Kind: EventCleared})
}

// Len returns the number of retained entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Capacity returns the maximum number of retained entries.
func (l *EventLog) Capacity() int {
	return l.capacity
}

// Subscribe returns a feed of changes made after the call.
func (l *EventLog) Subscribe() *feed.Subscription[Event] {
	return l.broker.Subscribe()
}

// Unsubscribe removes a subscription created by Subscribe.
func (l *EventLog) Unsubscribe(sub *feed.Subscription[Event]) {
	l.broker.Unsubscribe(sub)
}

func (l *EventLog) mirror(entry models.LogEntry) {
	level := slog.LevelInfo
	switch entry.Level {
	case models.LogLevelDebug:
		level = slog.LevelDebug
	case models.LogLevelWarn:
		level = slog.LevelWarn
	case models.LogLevelError:
		level = slog.LevelError
	}
	attrs := []any{"event_id", entry.ID}
	if entry.Data != nil {
		attrs = append(attrs, "data", entry.Data)
	}
	l.logger.Log(context.Background(), level, entry.Message, attrs...)
}

func payload(data []any) any {
	switch len(data) {
	case 0:
		return nil
	case 1:
		return data[0]
	default:
		return data
	}
}
