package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/narvanalabs/qrscan/internal/feed"
	"github.com/narvanalabs/qrscan/internal/history"
	"github.com/narvanalabs/qrscan/internal/logs"
	"github.com/narvanalabs/qrscan/internal/models"
)

// Feed message types.
const (
	FeedSnapshot = "snapshot"
	FeedLog      = "log"
	FeedScan     = "scan"
	FeedStatus   = "status"
	FeedCameras  = "cameras"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
)

// FeedMessage is one WebSocket message.
type FeedMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Snapshot is the first message sent to a feed client.
type Snapshot struct {
	Status  models.ScannerStatus      `json:"status"`
	Logs    []models.LogEntry         `json:"logs"`
	History []models.ScanEntry        `json:"history"`
	Cameras []models.CameraDescriptor `json:"cameras"`
}

// StatusFeed is the observable scanner state.
type StatusFeed interface {
	Status() models.ScannerStatus
	Subscribe() *feed.Subscription[models.ScannerStatus]
	Unsubscribe(sub *feed.Subscription[models.ScannerStatus])
	Stop(ctx context.Context) error
}

// CameraFeed publishes the current video-input list.
type CameraFeed interface {
	Current() []models.CameraDescriptor
	Subscribe() *feed.Subscription[[]models.CameraDescriptor]
	Unsubscribe(sub *feed.Subscription[[]models.CameraDescriptor])
}

// MountRegistry tracks connected scan surfaces.
type MountRegistry interface {
	Acquire(id string) (release func())
	Exists(id string) bool
}

// FeedHandler streams scanner state, log and history changes over a
// WebSocket. Every connected client is a scan-target surface; when the last
// one disconnects the scanner is stopped.
type FeedHandler struct {
	scanner  StatusFeed
	events   *logs.EventLog
	history  *history.ScanHistory
	cameras  CameraFeed
	mounts   MountRegistry
	mountID  string
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(scanner StatusFeed, events *logs.EventLog, history *history.ScanHistory, cameras CameraFeed, mounts MountRegistry, mountID string, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		scanner: scanner,
		events:  events,
		history: history,
		cameras: cameras,
		mounts:  mounts,
		mountID: mountID,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /api/feed.
func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	release := h.mounts.Acquire(h.mountID)
	defer h.detachSurface(release)
	h.logger.Debug("feed client connected", "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Log and history entries are snapshotted atomically with their
	// subscription. Status and camera updates replace the whole value, so
	// subscribing before reading them can only repeat the latest one.
	statusSub := h.scanner.Subscribe()
	defer h.scanner.Unsubscribe(statusSub)
	cameraSub := h.cameras.Subscribe()
	defer h.cameras.Unsubscribe(cameraSub)
	logEntries, logSub := h.events.Snapshot()
	defer h.events.Unsubscribe(logSub)
	historyEntries, historySub := h.history.Snapshot()
	defer h.history.Unsubscribe(historySub)

	out := make(chan FeedMessage)
	go forward(ctx, statusSub, FeedStatus, out)
	go forward(ctx, logSub, FeedLog, out)
	go forward(ctx, historySub, FeedScan, out)
	go forward(ctx, cameraSub, FeedCameras, out)

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := Snapshot{
		Status:  h.scanner.Status(),
		Logs:    logEntries,
		History: historyEntries,
		Cameras: h.cameras.Current(),
	}
	if err := h.write(conn, FeedMessage{Type: FeedSnapshot, Data: snapshot}); err != nil {
		return
	}

	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-out:
			if err := h.write(conn, msg); err != nil {
				h.logger.Debug("feed write failed", "error", err)
				return
			}
		}
	}
}

func (h *FeedHandler) write(conn *websocket.Conn, msg FeedMessage) error {
	conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return conn.WriteJSON(msg)
}

// detachSurface releases the client's mount reference and stops the
// scanner once no surface remains.
func (h *FeedHandler) detachSurface(release func()) {
	release()
	if h.mounts.Exists(h.mountID) {
		return
	}
	if h.scanner.Status().State == models.ScannerStateIdle {
		return
	}
	h.logger.Info("last scan surface disconnected, stopping scanner")
	if err := h.scanner.Stop(context.Background()); err != nil {
		h.logger.Warn("failed to stop scanner", "error", err)
	}
}

func forward[T any](ctx context.Context, sub *feed.Subscription[T], kind string, out chan<- FeedMessage) {
	for {
		v, err := sub.Next(ctx)
		if err != nil {
			return
		}
		select {
		case out <- FeedMessage{Type: kind, Data: v}:
		case <-ctx.Done():
			return
		}
	}
}
