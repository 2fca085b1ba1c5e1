package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/narvanalabs/qrscan/internal/models"
)

// Session is an active capture session. It is owned by a single controller.
type Session struct {
	Stream      StreamHandle
	DeviceID    string
	Constraints Constraints
	Zoomed      bool
	// Fallback is true when the stream was opened with minimal constraints.
	Fallback bool

	mu       sync.Mutex
	released bool
}

// Release stops all tracks. Calling it more than once is a no-op.
func (s *Session) Release() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	return s.Stream.StopAllTracks()
}

// Released reports whether Release was called.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Negotiator resolves cameras and opens capture sessions.
type Negotiator struct {
	capture MediaCapture
	logger  *slog.Logger
}

// NewNegotiator creates a negotiator over the given capture backend.
func NewNegotiator(capture MediaCapture, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{capture: capture, logger: logger}
}

// RequestPermission requests camera access and immediately releases the
// permission stream.
func (n *Negotiator) RequestPermission(ctx context.Context, facing Facing) error {
	grant, err := n.capture.RequestStream(ctx, Constraints{FacingMode: facing})
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("requesting permission: %w", err)
	}
	if err := grant.StopAllTracks(); err != nil {
		n.logger.Warn("failed to release permission stream", "error", err)
	}
	return nil
}

// ListCameras enumerates video inputs in enumeration order.
func (n *Negotiator) ListCameras(ctx context.Context) ([]models.CameraDescriptor, error) {
	devices, err := n.capture.EnumerateDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	cameras := VideoInputs(devices)
	if len(cameras) == 0 {
		return nil, ErrNoCameraFound
	}
	return cameras, nil
}

// VideoInputs filters devices down to video inputs.
func VideoInputs(devices []models.CameraDescriptor) []models.CameraDescriptor {
	cameras := make([]models.CameraDescriptor, 0, len(devices))
	for _, d := range devices {
		if d.Kind == models.DeviceKindVideoInput {
			cameras = append(cameras, d)
		}
	}
	return cameras
}

// SelectPreferred picks the first camera whose label contains one of the
// profile's preferred labels, or the first camera when none match.
func SelectPreferred(cameras []models.CameraDescriptor, profile DeviceProfile) (models.CameraDescriptor, error) {
	if len(cameras) == 0 {
		return models.CameraDescriptor{}, ErrNoCameraFound
	}
	for _, c := range cameras {
		label := strings.ToLower(c.Label)
		for _, want := range profile.PreferredLabels {
			if want != "" && strings.Contains(label, strings.ToLower(want)) {
				return c, nil
			}
		}
	}
	return cameras[0], nil
}

// OpenStream opens deviceID with the profile's constraints. When the full
// set fails it retries once with device id and facing mode only.
func (n *Negotiator) OpenStream(ctx context.Context, deviceID string, profile DeviceProfile, zoomed bool) (*Session, error) {
	full := profile.Constraints(deviceID, zoomed)
	stream, err := n.capture.RequestStream(ctx, full)
	if err == nil {
		return &Session{Stream: stream, DeviceID: deviceID, Constraints: full, Zoomed: zoomed}, nil
	}
	if errors.Is(err, ErrPermissionDenied) || ctx.Err() != nil {
		return nil, err
	}

	n.logger.Warn("full constraints failed, retrying with minimal set",
		"device_id", deviceID,
		"error", err,
	)

	minimal := Constraints{DeviceID: deviceID, FacingMode: profile.Facing}
	stream, fallbackErr := n.capture.RequestStream(ctx, minimal)
	if fallbackErr != nil {
		if errors.Is(fallbackErr, ErrPermissionDenied) {
			return nil, fallbackErr
		}
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, errors.Join(err, fallbackErr))
	}
	return &Session{Stream: stream, DeviceID: deviceID, Constraints: minimal, Zoomed: zoomed, Fallback: true}, nil
}

// ApplyModeChange re-applies the profile's targets to the existing track.
// It is a no-op without a session. On failure the session is unchanged.
func (n *Negotiator) ApplyModeChange(ctx context.Context, session *Session, profile DeviceProfile, zoomed bool) error {
	if session == nil || session.Released() {
		return nil
	}
	next := profile.Constraints(session.DeviceID, zoomed)
	if err := session.Stream.ApplyConstraints(ctx, next); err != nil {
		return fmt.Errorf("applying mode change: %w", err)
	}
	session.Constraints = next
	session.Zoomed = zoomed
	return nil
}
