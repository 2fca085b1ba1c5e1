package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/feed"
	"github.com/narvanalabs/qrscan/internal/models"
)

// DefaultPollInterval is the default device enumeration interval.
const DefaultPollInterval = 5 * time.Second

// ChangeRecorder receives a note for every detected device change.
type ChangeRecorder interface {
	Info(message string, data ...any) models.LogEntry
}

// Watcher polls device enumeration and publishes the video-input list
// whenever it changes.
type Watcher struct {
	capture  MediaCapture
	interval time.Duration
	clock    clock.Clock
	recorder ChangeRecorder
	logger   *slog.Logger
	broker   *feed.Broker[[]models.CameraDescriptor]

	mu      sync.Mutex
	current []models.CameraDescriptor
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a device watcher. recorder may be nil.
func NewWatcher(capture MediaCapture, interval time.Duration, clk clock.Clock, recorder ChangeRecorder, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		capture:  capture,
		interval: interval,
		clock:    clk,
		recorder: recorder,
		logger:   logger,
		broker:   feed.NewBroker[[]models.CameraDescriptor]("devices", logger),
	}
}

// Start begins polling in the background. It takes an initial snapshot
// synchronously so Current is populated on return.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	w.Poll(ctx)

	ticker := w.clock.NewTicker(w.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				w.Poll(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Poll enumerates once and publishes if the video-input set changed.
// It reports whether a change was detected.
func (w *Watcher) Poll(ctx context.Context) bool {
	devices, err := w.capture.EnumerateDevices(ctx)
	if err != nil {
		w.logger.Warn("device enumeration failed", "error", err)
		return false
	}
	cameras := VideoInputs(devices)

	w.mu.Lock()
	previous := w.current
	initial := previous == nil
	changed := initial || !sameDevices(previous, cameras)
	if changed {
		w.current = cameras
	}
	w.mu.Unlock()

	if !changed {
		return false
	}
	if !initial {
		w.logger.Info("device change detected", "cameras", len(cameras))
		if w.recorder != nil {
			w.recorder.Info("Device change detected", map[string]any{"cameras": len(cameras)})
		}
	}
	w.broker.Publish(cameras)
	return true
}

// Current returns the last observed video-input list.
func (w *Watcher) Current() []models.CameraDescriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	result := make([]models.CameraDescriptor, len(w.current))
	copy(result, w.current)
	return result
}

// Subscribe returns a feed of video-input lists.
func (w *Watcher) Subscribe() *feed.Subscription[[]models.CameraDescriptor] {
	return w.broker.Subscribe()
}

// Unsubscribe removes a subscription created by Subscribe.
func (w *Watcher) Unsubscribe(sub *feed.Subscription[[]models.CameraDescriptor]) {
	w.broker.Unsubscribe(sub)
}

func sameDevices(a, b []models.CameraDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Label != b[i].Label {
			return false
		}
	}
	return true
}
