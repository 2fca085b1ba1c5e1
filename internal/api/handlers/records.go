package handlers

import (
	"net/http"
	"strings"

	apierrors "github.com/narvanalabs/qrscan/internal/api/errors"
	"github.com/narvanalabs/qrscan/internal/history"
	"github.com/narvanalabs/qrscan/internal/logs"
	"github.com/narvanalabs/qrscan/internal/models"
)

// LogsResponse is the body of GET /api/logs.
type LogsResponse struct {
	Entries  []models.LogEntry `json:"entries"`
	Capacity int               `json:"capacity"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Entries []models.ScanEntry `json:"entries"`
}

// RecentResetter forgets the payloads used for duplicate suppression.
type RecentResetter interface {
	ResetRecent()
}

// RecordsHandler serves the event log and scan history.
type RecordsHandler struct {
	events  *logs.EventLog
	history *history.ScanHistory
	recent  RecentResetter
}

// NewRecordsHandler creates a new records handler. recent may be nil.
func NewRecordsHandler(events *logs.EventLog, history *history.ScanHistory, recent RecentResetter) *RecordsHandler {
	return &RecordsHandler{events: events, history: history, recent: recent}
}

// ListLogs handles GET /api/logs. An optional level query parameter filters
// entries.
func (h *RecordsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	entries := h.events.Entries()

	if raw := r.URL.Query().Get("level"); raw != "" {
		level := models.LogLevel(strings.ToUpper(raw))
		if !level.IsValid() {
			writeError(w, r, apierrors.NewValidationError("invalid level").WithDetails(map[string]any{"level": raw}))
			return
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	apierrors.WriteJSON(w, http.StatusOK, LogsResponse{Entries: entries, Capacity: h.events.Capacity()})
}

// ClearLogs handles DELETE /api/logs.
func (h *RecordsHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	h.events.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ListHistory handles GET /api/history.
func (h *RecordsHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, HistoryResponse{Entries: h.history.Entries()})
}

// ClearHistory handles DELETE /api/history. A cleared payload counts as new
// the next time it is scanned.
func (h *RecordsHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.history.Clear()
	if h.recent != nil {
		h.recent.ResetRecent()
	}
	w.WriteHeader(http.StatusNoContent)
}
