package models

import "time"

// ScanEntry is an accepted decoded payload.
type ScanEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	// IsLink is true when Content is an http or https URL.
	IsLink bool `json:"is_link"`
	// FirstSeen is true when no older retained entry has the same content.
	FirstSeen bool `json:"first_seen"`
}
