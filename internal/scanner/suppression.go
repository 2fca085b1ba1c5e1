package scanner

import (
	"strings"
	"time"
)

// Default policy windows.
const (
	DefaultDuplicateWindow   = 60 * time.Second
	DefaultSuppressionWindow = 300 * time.Second
)

// SuppressibleMessages are the per-frame error classes that only mean no
// code was visible in the frame. Matching is a case-insensitive substring
// test.
var SuppressibleMessages = []string{
	"no qr code found",
	"no barcode or qr code detected",
	"qr code parse error",
	"no multiformat readers were able to detect the code.",
	"no barcode found",
}

// RecentScanTable maps payloads to the time they were last accepted.
// Entries older than the window are purged on every lookup.
type RecentScanTable struct {
	window  time.Duration
	entries map[string]time.Time
}

// NewRecentScanTable creates a table with the given duplicate window.
func NewRecentScanTable(window time.Duration) *RecentScanTable {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &RecentScanTable{window: window, entries: make(map[string]time.Time)}
}

// IsDuplicate purges expired entries and reports whether payload has a
// live entry at now.
func (t *RecentScanTable) IsDuplicate(payload string, now time.Time) bool {
	for p, seen := range t.entries {
		if now.Sub(seen) >= t.window {
			delete(t.entries, p)
		}
	}
	_, ok := t.entries[payload]
	return ok
}

// Record stores now as the last accepted time of payload.
func (t *RecentScanTable) Record(payload string, now time.Time) {
	t.entries[payload] = now
}

// Reset forgets every accepted payload.
func (t *RecentScanTable) Reset() {
	clear(t.entries)
}

// Len returns the number of entries, including expired ones not yet purged.
func (t *RecentScanTable) Len() int {
	return len(t.entries)
}

// ErrorSuppressor drops repeated suppressible errors within a window.
type ErrorSuppressor struct {
	window   time.Duration
	patterns []string
	last     time.Time
	seen     bool
}

// NewErrorSuppressor creates a suppressor over the given patterns.
func NewErrorSuppressor(window time.Duration, patterns []string) *ErrorSuppressor {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &ErrorSuppressor{window: window, patterns: lowered}
}

// Suppressible reports whether message belongs to a suppressible class.
func (s *ErrorSuppressor) Suppressible(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range s.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Allow reports whether message should be surfaced at now. The timer is
// only reset when a suppressible message is surfaced.
func (s *ErrorSuppressor) Allow(message string, now time.Time) bool {
	if !s.Suppressible(message) {
		return true
	}
	if s.seen && now.Sub(s.last) < s.window {
		return false
	}
	s.seen = true
	s.last = now
	return true
}
