package scanner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/camera/cameratest"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/decoder"
	"github.com/narvanalabs/qrscan/internal/history"
	"github.com/narvanalabs/qrscan/internal/logs"
	"github.com/narvanalabs/qrscan/internal/models"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeDecoder struct {
	mu          sync.Mutex
	attachErr   error
	detachErr   error
	cameras     []models.CameraDescriptor
	attached    bool
	config      decoder.Config
	mountID     string
	onSuccess   decoder.SuccessFunc
	onError     decoder.ErrorFunc
	attachCount int
	detachCount int
}

func (d *fakeDecoder) EnumerateCameras(ctx context.Context) ([]models.CameraDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cameras, nil
}

func (d *fakeDecoder) Attach(ctx context.Context, mountID string, stream camera.StreamHandle, cfg decoder.Config, onSuccess decoder.SuccessFunc, onError decoder.ErrorFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attachCount++
	if d.attachErr != nil {
		return d.attachErr
	}
	d.attached = true
	d.config = cfg
	d.mountID = mountID
	d.onSuccess = onSuccess
	d.onError = onError
	return nil
}

func (d *fakeDecoder) Detach(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detachCount++
	d.attached = false
	return d.detachErr
}

func (d *fakeDecoder) counts() (attaches, detaches int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attachCount, d.detachCount
}

// scan simulates a decoded frame.
func (d *fakeDecoder) scan(payload string) {
	d.mu.Lock()
	f := d.onSuccess
	d.mu.Unlock()
	f(payload)
}

// fail simulates a per-frame error.
func (d *fakeDecoder) fail(message string) {
	d.mu.Lock()
	f := d.onError
	d.mu.Unlock()
	f(message)
}

type fakeMounts struct {
	present bool
}

func (m *fakeMounts) Exists(string) bool { return m.present }

type harness struct {
	clock      *clock.FakeClock
	capture    *cameratest.Capture
	decoder    *fakeDecoder
	mounts     *fakeMounts
	events     *logs.EventLog
	history    *history.ScanHistory
	controller *Controller
}

func newHarness(t *testing.T, labels ...string) *harness {
	t.Helper()
	return newHarnessWithOptions(t, Options{}, labels...)
}

func newHarnessWithOptions(t *testing.T, opts Options, labels ...string) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		clock:   clock.Fake(epoch),
		capture: &cameratest.Capture{Devices: cameratest.Cameras(labels...)},
		decoder: &fakeDecoder{},
		mounts:  &fakeMounts{present: true},
	}
	h.events = logs.NewEventLog(logs.DefaultCapacity, h.clock, logger)
	h.history = history.New(history.DefaultCapacity, h.clock, logger)

	if opts.Profile.ScanFPS == 0 {
		opts.Profile = camera.DefaultProfiles().Lookup(camera.DeviceClassPhone)
	}
	opts.Clock = h.clock
	opts.Logger = logger
	h.controller = New(camera.NewNegotiator(h.capture, logger), h.decoder, h.mounts, h.events, h.history, opts)
	return h
}

func (h *harness) mustStart(t *testing.T) {
	t.Helper()
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.controller.State(); got != models.ScannerStateRunning {
		t.Fatalf("State() = %s, want running", got)
	}
}

// countEvents returns the number of log entries with the given message.
func (h *harness) countEvents(message string) int {
	n := 0
	for _, e := range h.events.Entries() {
		if e.Message == message {
			n++
		}
	}
	return n
}

// permissionRequests counts stream requests without a device id.
func (h *harness) permissionRequests() int {
	n := 0
	for _, r := range h.capture.Requests() {
		if r.DeviceID == "" {
			n++
		}
	}
	return n
}
