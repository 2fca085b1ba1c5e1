// Package cameratest provides an in-memory MediaCapture for tests.
package cameratest

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/models"
)

// Cameras returns video-input descriptors with the given labels and ids
// "cam-0", "cam-1", ...
func Cameras(labels ...string) []models.CameraDescriptor {
	devices := make([]models.CameraDescriptor, len(labels))
	for i, label := range labels {
		devices[i] = models.CameraDescriptor{
			ID:    fmt.Sprintf("cam-%d", i),
			Label: label,
			Kind:  models.DeviceKindVideoInput,
		}
	}
	return devices
}

// Microphone returns an audio-input descriptor.
func Microphone() models.CameraDescriptor {
	return models.CameraDescriptor{ID: "mic-0", Label: "Microphone", Kind: models.DeviceKindAudioInput}
}

// Capture is a scriptable MediaCapture.
type Capture struct {
	mu sync.Mutex

	Devices      []models.CameraDescriptor
	EnumerateErr error
	// PermissionErr is returned for every stream request when set.
	PermissionErr error
	// Reject is consulted for every device-specific request; a non-nil result
	// fails the request.
	Reject func(camera.Constraints) error
	// Frame is served by every opened stream.
	Frame image.Image

	requests []camera.Constraints
	streams  []*Stream
}

// EnumerateDevices implements camera.MediaCapture.
func (c *Capture) EnumerateDevices(ctx context.Context) ([]models.CameraDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EnumerateErr != nil {
		return nil, c.EnumerateErr
	}
	devices := make([]models.CameraDescriptor, len(c.Devices))
	copy(devices, c.Devices)
	return devices, nil
}

// SetDevices replaces the device list.
func (c *Capture) SetDevices(devices []models.CameraDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Devices = devices
}

// RequestStream implements camera.MediaCapture.
func (c *Capture) RequestStream(ctx context.Context, cons camera.Constraints) (camera.StreamHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, cons)
	if c.PermissionErr != nil {
		return nil, c.PermissionErr
	}
	if cons.DeviceID != "" && c.Reject != nil {
		if err := c.Reject(cons); err != nil {
			return nil, err
		}
	}
	s := &Stream{constraints: cons, frame: c.Frame}
	c.streams = append(c.streams, s)
	return s, nil
}

// Requests returns every constraint set requested so far.
func (c *Capture) Requests() []camera.Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]camera.Constraints, len(c.requests))
	copy(out, c.requests)
	return out
}

// Streams returns every stream opened so far.
func (c *Capture) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Stream, len(c.streams))
	copy(out, c.streams)
	return out
}

// OpenStreams returns the number of streams whose tracks are still live.
func (c *Capture) OpenStreams() int {
	n := 0
	for _, s := range c.Streams() {
		if !s.Stopped() {
			n++
		}
	}
	return n
}

// RejectFull rejects any request carrying resolution or frame-rate bounds.
func RejectFull(cons camera.Constraints) error {
	if cons.Minimal() {
		return nil
	}
	return camera.ErrOverconstrained
}

// RejectAll rejects every device request.
func RejectAll(camera.Constraints) error {
	return camera.ErrOverconstrained
}

// Stream is a StreamHandle created by Capture.
type Stream struct {
	mu          sync.Mutex
	constraints camera.Constraints
	frame       image.Image
	stopped     bool
	applied     []camera.Constraints

	// StopErr and ApplyErr are returned by the matching calls when set.
	StopErr  error
	ApplyErr error
}

// StopAllTracks implements camera.StreamHandle.
func (s *Stream) StopAllTracks() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.StopErr
}

// ApplyConstraints implements camera.StreamHandle.
func (s *Stream) ApplyConstraints(ctx context.Context, cons camera.Constraints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ApplyErr != nil {
		return s.ApplyErr
	}
	s.applied = append(s.applied, cons)
	s.constraints = cons
	return nil
}

// Settings implements camera.StreamHandle.
func (s *Stream) Settings() camera.TrackSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := camera.TrackSettings{DeviceID: s.constraints.DeviceID, FacingMode: s.constraints.FacingMode}
	if s.constraints.Width != nil {
		settings.Width, _ = s.constraints.Width.Resolve(s.constraints.Width.Ideal)
	}
	if s.constraints.Height != nil {
		settings.Height, _ = s.constraints.Height.Resolve(s.constraints.Height.Ideal)
	}
	if s.constraints.FrameRate != nil {
		settings.FrameRate, _ = s.constraints.FrameRate.Resolve(s.constraints.FrameRate.Ideal)
	}
	return settings
}

// NextFrame implements camera.StreamHandle.
func (s *Stream) NextFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, camera.ErrTrackEnded
	}
	if s.frame == nil {
		return image.NewGray(image.Rect(0, 0, 64, 64)), nil
	}
	return s.frame, nil
}

// Stopped reports whether StopAllTracks was called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Applied returns the constraint sets passed to ApplyConstraints.
func (s *Stream) Applied() []camera.Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]camera.Constraints, len(s.applied))
	copy(out, s.applied)
	return out
}

// SetApplyErr sets the error returned by ApplyConstraints.
func (s *Stream) SetApplyErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ApplyErr = err
}
