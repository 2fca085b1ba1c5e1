// Package camera negotiates camera permission, device selection and capture
// streams against an injected MediaCapture backend.
package camera

import (
	"context"
	"image"

	"github.com/narvanalabs/qrscan/internal/models"
)

// Facing is the requested camera facing mode.
type Facing string

const (
	FacingAny         Facing = ""
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Range is an ideal/min/max constraint triple. Zero fields are unset.
type Range struct {
	Ideal int `yaml:"ideal" json:"ideal,omitempty"`
	Min   int `yaml:"min" json:"min,omitempty"`
	Max   int `yaml:"max" json:"max,omitempty"`
}

// IsZero reports whether no bound is set.
func (r Range) IsZero() bool {
	return r.Ideal == 0 && r.Min == 0 && r.Max == 0
}

// Resolve picks the value closest to Ideal that fits within [Min, Max] and
// the device limit. ok is false when Min cannot be met.
func (r Range) Resolve(limit int) (value int, ok bool) {
	if r.IsZero() {
		return limit, true
	}
	if r.Min > 0 && r.Min > limit {
		return 0, false
	}
	value = r.Ideal
	if value == 0 {
		value = limit
	}
	if r.Max > 0 && value > r.Max {
		value = r.Max
	}
	if value > limit {
		value = limit
	}
	if value < r.Min {
		value = r.Min
	}
	return value, true
}

// Constraints is a capture stream request. Nil ranges are unconstrained.
type Constraints struct {
	DeviceID   string `json:"device_id,omitempty"`
	FacingMode Facing `json:"facing_mode,omitempty"`
	Width      *Range `json:"width,omitempty"`
	Height     *Range `json:"height,omitempty"`
	FrameRate  *Range `json:"frame_rate,omitempty"`
}

// Minimal reports whether no resolution or frame-rate bound is present.
func (c Constraints) Minimal() bool {
	return c.Width == nil && c.Height == nil && c.FrameRate == nil
}

// TrackSettings are the values a stream actually applied.
type TrackSettings struct {
	DeviceID   string `json:"device_id"`
	FacingMode Facing `json:"facing_mode,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameRate  int    `json:"frame_rate"`
}

// MediaCapture is the host capture capability.
type MediaCapture interface {
	// EnumerateDevices lists media devices of every kind.
	EnumerateDevices(ctx context.Context) ([]models.CameraDescriptor, error)
	// RequestStream opens a capture stream satisfying c.
	RequestStream(ctx context.Context, c Constraints) (StreamHandle, error)
}

// StreamHandle is an open capture stream with a single video track.
type StreamHandle interface {
	StopAllTracks() error
	ApplyConstraints(ctx context.Context, c Constraints) error
	Settings() TrackSettings
	// NextFrame returns the current frame of the video track.
	NextFrame(ctx context.Context) (image.Image, error)
}
