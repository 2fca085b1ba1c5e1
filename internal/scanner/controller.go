// Package scanner implements the camera/scanner lifecycle controller.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/decoder"
	"github.com/narvanalabs/qrscan/internal/feed"
	"github.com/narvanalabs/qrscan/internal/models"
)

// Default status display durations.
const (
	DefaultStatusDuration    = 3 * time.Second
	DefaultDuplicateDuration = 1500 * time.Millisecond
)

// CameraNegotiator resolves cameras and capture sessions.
type CameraNegotiator interface {
	RequestPermission(ctx context.Context, facing camera.Facing) error
	ListCameras(ctx context.Context) ([]models.CameraDescriptor, error)
	OpenStream(ctx context.Context, deviceID string, profile camera.DeviceProfile, zoomed bool) (*camera.Session, error)
	ApplyModeChange(ctx context.Context, session *camera.Session, profile camera.DeviceProfile, zoomed bool) error
}

// Decoder decodes payloads from an attached stream.
type Decoder interface {
	EnumerateCameras(ctx context.Context) ([]models.CameraDescriptor, error)
	Attach(ctx context.Context, mountID string, stream camera.StreamHandle, cfg decoder.Config, onSuccess decoder.SuccessFunc, onError decoder.ErrorFunc) error
	Detach(ctx context.Context) error
}

// MountLocator reports whether the scan-target surface is present.
type MountLocator interface {
	Exists(mountID string) bool
}

// EventRecorder receives diagnostic events.
type EventRecorder interface {
	Debug(message string, data ...any) models.LogEntry
	Info(message string, data ...any) models.LogEntry
	Warn(message string, data ...any) models.LogEntry
	Error(message string, data ...any) models.LogEntry
}

// HistoryRecorder receives accepted payloads.
type HistoryRecorder interface {
	Add(content string) models.ScanEntry
}

// Options configures a Controller.
type Options struct {
	MountID           string
	Profile           camera.DeviceProfile
	Formats           []decoder.Format
	DuplicateWindow   time.Duration
	SuppressionWindow time.Duration
	// CachePermission skips the permission request after the first grant.
	CachePermission   bool
	StatusDuration    time.Duration
	DuplicateDuration time.Duration
	Clock             clock.Clock
	Logger            *slog.Logger
}

// Controller owns the scanner lifecycle. Start, Stop and SetScanMode are
// serialized; decoder callbacks are accepted only while running.
type Controller struct {
	negotiator CameraNegotiator
	decoder    Decoder
	mounts     MountLocator
	events     EventRecorder
	history    HistoryRecorder
	opts       Options
	clock      clock.Clock
	logger     *slog.Logger
	broker     *feed.Broker[models.ScannerStatus]

	// op serializes lifecycle operations.
	op sync.Mutex

	mu                sync.Mutex
	state             models.ScannerState
	status            models.ScannerStatus
	session           *camera.Session
	attached          bool
	zoomed            bool
	generation        uint64
	permissionGranted bool
	recent            *RecentScanTable
	suppressor        *ErrorSuppressor
}

// New creates a controller in the Idle state.
func New(negotiator CameraNegotiator, dec Decoder, mounts MountLocator, events EventRecorder, history HistoryRecorder, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MountID == "" {
		opts.MountID = "qr-reader"
	}
	if len(opts.Formats) == 0 {
		opts.Formats = decoder.DefaultConfig().Formats
	}
	if opts.StatusDuration <= 0 {
		opts.StatusDuration = DefaultStatusDuration
	}
	if opts.DuplicateDuration <= 0 {
		opts.DuplicateDuration = DefaultDuplicateDuration
	}

	c := &Controller{
		negotiator: negotiator,
		decoder:    dec,
		mounts:     mounts,
		events:     events,
		history:    history,
		opts:       opts,
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "scanner"),
		broker:     feed.NewBroker[models.ScannerStatus]("scanner-status", opts.Logger),
		state:      models.ScannerStateIdle,
		recent:     NewRecentScanTable(opts.DuplicateWindow),
		suppressor: NewErrorSuppressor(opts.SuppressionWindow, SuppressibleMessages),
	}
	c.status = c.snapshotLocked()
	return c
}

// Start starts scanning with the camera chosen by the device profile.
func (c *Controller) Start(ctx context.Context) error {
	return c.StartWithCamera(ctx, "")
}

// StartWithCamera starts scanning with deviceID, or with the preferred
// camera when deviceID is empty. It is valid only from Idle. Failures are
// logged, surfaced as status and returned; the controller is back in Idle
// when it returns.
func (c *Controller) StartWithCamera(ctx context.Context, deviceID string) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.state != models.ScannerStateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, state)
	}
	c.transitionLocked(models.ScannerStateStarting)
	zoomed := c.zoomed
	skipPermission := c.opts.CachePermission && c.permissionGranted
	c.publishLocked("", false, 0)
	c.mu.Unlock()

	c.events.Info("Starting camera...")

	if !c.mounts.Exists(c.opts.MountID) {
		return c.failStart(ctx, fmt.Errorf("%w: %s", ErrMountNotFound, c.opts.MountID))
	}

	if !skipPermission {
		if err := c.negotiator.RequestPermission(ctx, c.opts.Profile.Facing); err != nil {
			return c.failStart(ctx, err)
		}
		c.mu.Lock()
		c.permissionGranted = true
		c.mu.Unlock()
		c.events.Info("Camera permission granted")
	}

	cameras, err := c.negotiator.ListCameras(ctx)
	if err != nil {
		return c.failStart(ctx, err)
	}
	c.events.Info("Found cameras", map[string]any{"count": len(cameras)})

	selected, err := c.selectCamera(cameras, deviceID)
	if err != nil {
		return c.failStart(ctx, err)
	}
	c.events.Debug("Selected camera", map[string]any{"id": selected.ID, "label": selected.DisplayName()})

	session, err := c.negotiator.OpenStream(ctx, selected.ID, c.opts.Profile, zoomed)
	if err != nil {
		return c.failStart(ctx, err)
	}
	if session.Fallback {
		c.events.Warn("Using fallback camera constraints", map[string]any{"id": selected.ID})
	}

	c.mu.Lock()
	c.session = session
	generation := c.generation
	c.mu.Unlock()

	cfg := decoder.Config{FPS: c.opts.Profile.ScanFPS, QRBox: c.opts.Profile.QRBox, Formats: c.opts.Formats}
	err = c.decoder.Attach(ctx, c.opts.MountID, session.Stream, cfg,
		func(payload string) { c.handleSuccess(generation, payload) },
		func(message string) { c.handleError(generation, message) },
	)
	if err != nil {
		return c.failStart(ctx, err)
	}

	c.mu.Lock()
	c.attached = true
	c.transitionLocked(models.ScannerStateRunning)
	c.publishLocked(StatusReady, false, c.opts.StatusDuration)
	c.mu.Unlock()

	c.events.Info("Camera started successfully", map[string]any{"id": selected.ID})
	return nil
}

func (c *Controller) selectCamera(cameras []models.CameraDescriptor, deviceID string) (models.CameraDescriptor, error) {
	if deviceID == "" {
		return camera.SelectPreferred(cameras, c.opts.Profile)
	}
	for _, cam := range cameras {
		if cam.ID == deviceID {
			return cam, nil
		}
	}
	return models.CameraDescriptor{}, fmt.Errorf("%w: %s", camera.ErrDeviceNotFound, deviceID)
}

// failStart moves to Errored, releases partial resources, surfaces the
// classified failure and returns to Idle.
func (c *Controller) failStart(ctx context.Context, cause error) error {
	c.mu.Lock()
	c.transitionLocked(models.ScannerStateErrored)
	session, attached := c.detachLocked()
	message := StartFailureStatus(cause)
	c.publishLocked(message, true, c.opts.StatusDuration)
	c.mu.Unlock()

	c.release(ctx, session, attached)

	c.logger.Error("failed to start scanner", "error", cause, "status", message)
	c.events.Error("Error starting scanner", map[string]any{"error": cause.Error(), "status": message})

	c.mu.Lock()
	c.transitionLocked(models.ScannerStateIdle)
	c.publishLocked(message, true, c.opts.StatusDuration)
	c.mu.Unlock()
	return cause
}

// Stop releases the capture session and detaches the decoder. It always
// ends in Idle; calling it while Idle is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.state == models.ScannerStateIdle {
		c.mu.Unlock()
		return nil
	}
	c.transitionLocked(models.ScannerStateStopping)
	session, attached := c.detachLocked()
	c.publishLocked("", false, 0)
	c.mu.Unlock()

	c.release(ctx, session, attached)

	c.mu.Lock()
	c.transitionLocked(models.ScannerStateIdle)
	c.publishLocked(StatusStopped, false, c.opts.StatusDuration)
	c.mu.Unlock()

	c.events.Info("Scanner stopped")
	return nil
}

// detachLocked hands the session to the caller for release and invalidates
// callbacks from the current decoder loop.
func (c *Controller) detachLocked() (*camera.Session, bool) {
	session, attached := c.session, c.attached
	c.session = nil
	c.attached = false
	c.generation++
	return session, attached
}

// release detaches the decoder and stops all tracks. Failures are logged.
// It must be called without c.mu held since decoder callbacks take it.
func (c *Controller) release(ctx context.Context, session *camera.Session, attached bool) {
	if attached {
		if err := c.decoder.Detach(ctx); err != nil {
			c.logReleaseFailure("detach decoder", err)
		}
	}
	if err := session.Release(); err != nil {
		c.logReleaseFailure("stop tracks", err)
	}
}

func (c *Controller) logReleaseFailure(step string, err error) {
	err = fmt.Errorf("%w: %s: %w", ErrReleaseFailure, step, err)
	c.logger.Warn("release failed", "error", err)
	c.events.Warn("Cleanup error (can be ignored)", map[string]any{"error": err.Error()})
}

// SetScanMode switches between the close-range and distance profiles. The
// mode is remembered for the next start; an active session is updated in
// place.
func (c *Controller) SetScanMode(ctx context.Context, zoomed bool) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	previous := c.zoomed
	c.zoomed = zoomed
	session := c.session
	if session == nil || session.Zoomed == zoomed {
		if previous != zoomed {
			c.publishLocked(c.status.StatusMessage, c.status.IsErrorStatus, c.status.DisplayFor)
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.negotiator.ApplyModeChange(ctx, session, c.opts.Profile, zoomed); err != nil {
		c.mu.Lock()
		c.zoomed = previous
		c.mu.Unlock()
		c.logger.Warn("scan mode change failed", "zoomed", zoomed, "error", err)
		c.events.Error("Failed to switch scan mode", map[string]any{"zoomed": zoomed, "error": err.Error()})
		return err
	}

	c.mu.Lock()
	c.publishLocked(c.status.StatusMessage, c.status.IsErrorStatus, c.status.DisplayFor)
	c.mu.Unlock()
	c.events.Info("Scan mode changed", map[string]any{"zoomed": zoomed})
	return nil
}

// Cameras requests permission and lists video inputs for camera selection.
func (c *Controller) Cameras(ctx context.Context) ([]models.CameraDescriptor, error) {
	c.mu.Lock()
	skipPermission := c.opts.CachePermission && c.permissionGranted
	c.mu.Unlock()

	if !skipPermission {
		if err := c.negotiator.RequestPermission(ctx, c.opts.Profile.Facing); err != nil {
			c.events.Error("Error accessing cameras", map[string]any{"error": err.Error()})
			return nil, err
		}
		c.mu.Lock()
		c.permissionGranted = true
		c.mu.Unlock()
	}

	cameras, err := c.decoder.EnumerateCameras(ctx)
	if err != nil {
		c.events.Error("Error accessing cameras", map[string]any{"error": err.Error()})
		return nil, err
	}
	if len(cameras) == 0 {
		c.events.Warn("No cameras found")
		return nil, ErrNoCameraFound
	}
	c.events.Info("Found cameras", map[string]any{"count": len(cameras)})
	return cameras, nil
}

func (c *Controller) handleSuccess(generation uint64, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != models.ScannerStateRunning || generation != c.generation {
		return
	}

	now := c.clock.Now()
	if c.recent.IsDuplicate(payload, now) {
		c.publishLocked(statusDuplicatePrefix+payload, false, c.opts.DuplicateDuration)
		c.events.Info("Already scanned", map[string]any{"content": payload})
		return
	}

	entry := c.history.Add(payload)
	c.recent.Record(payload, now)
	c.publishLocked(statusScannedPrefix+payload, false, c.opts.StatusDuration)
	c.events.Info("QR Code scanned", map[string]any{"content": payload, "id": entry.ID})
}

func (c *Controller) handleError(generation uint64, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != models.ScannerStateRunning || generation != c.generation {
		return
	}
	if message == decoder.MsgTrackEnded {
		// the decoder loop is exiting; tear down off its goroutine
		go c.endSession(generation, message)
		return
	}

	if !c.suppressor.Allow(message, c.clock.Now()) {
		return
	}

	class := ErrDecodeError
	if c.suppressor.Suppressible(message) {
		class = ErrDecodeTransient
	}
	c.logger.Error("scanning error", "error", fmt.Errorf("%w: %s", class, message))
	c.events.Error("Scanning error", map[string]any{"error": message})
	c.publishLocked(statusScanErrorPrefix+message, true, c.opts.StatusDuration)
}

// endSession releases a session whose capture ended underneath the decoder
// and returns the controller to Idle with an error status.
func (c *Controller) endSession(generation uint64, message string) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.state != models.ScannerStateRunning || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(models.ScannerStateErrored)
	session, attached := c.detachLocked()
	status := statusScanErrorPrefix + message
	c.publishLocked(status, true, c.opts.StatusDuration)
	c.mu.Unlock()

	c.logger.Error("capture ended", "error", fmt.Errorf("%w: %s", ErrDecodeError, message))
	c.events.Error("Scanning error", map[string]any{"error": message})

	c.release(context.Background(), session, attached)

	c.mu.Lock()
	c.transitionLocked(models.ScannerStateIdle)
	c.publishLocked(status, true, c.opts.StatusDuration)
	c.mu.Unlock()
	c.events.Info("Scanner stopped")
}

func (c *Controller) transitionLocked(next models.ScannerState) {
	if !c.state.CanTransition(next) {
		c.logger.Error("unexpected state transition", "from", c.state, "to", next)
	}
	c.logger.Debug("state transition", "from", c.state, "to", next)
	c.state = next
}

func (c *Controller) snapshotLocked() models.ScannerStatus {
	s := c.status
	s.State = c.state
	s.IsRunning = c.state == models.ScannerStateRunning
	s.Zoomed = c.zoomed
	s.Actions = c.state.AvailableActions()
	s.CameraID = ""
	if c.session != nil {
		s.CameraID = c.session.DeviceID
	}
	s.UpdatedAt = c.clock.Now()
	return s
}

func (c *Controller) publishLocked(message string, isError bool, displayFor time.Duration) {
	c.status.StatusMessage = message
	c.status.IsErrorStatus = isError
	c.status.DisplayFor = displayFor
	c.status = c.snapshotLocked()
	c.broker.Publish(c.status)
}

// ResetRecent forgets recently accepted payloads so the next scan of any
// code is recorded again.
func (c *Controller) ResetRecent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent.Reset()
}

// Status returns the current observable state.
func (c *Controller) Status() models.ScannerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.Actions = append([]models.ScannerAction(nil), s.Actions...)
	return s
}

// State returns the current lifecycle state.
func (c *Controller) State() models.ScannerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a feed of status changes.
func (c *Controller) Subscribe() *feed.Subscription[models.ScannerStatus] {
	return c.broker.Subscribe()
}

// Unsubscribe removes a subscription created by Subscribe.
func (c *Controller) Unsubscribe(sub *feed.Subscription[models.ScannerStatus]) {
	c.broker.Unsubscribe(sub)
}

// Shutdown stops the scanner for process shutdown.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Stop(ctx)
}
