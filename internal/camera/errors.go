package camera

import "errors"

var (
	// ErrPermissionDenied is returned when camera access is refused.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoCameraFound is returned when no video input is enumerated.
	ErrNoCameraFound = errors.New("no cameras found")
	// ErrCameraUnavailable is returned when both the full and the minimal
	// constraint sets fail.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrOverconstrained is returned by backends when a request cannot be met.
	ErrOverconstrained = errors.New("constraints cannot be satisfied")
	// ErrDeviceNotFound is returned when a requested device id does not exist.
	ErrDeviceNotFound = errors.New("camera device not found")
	// ErrTrackEnded is returned by a stream after StopAllTracks.
	ErrTrackEnded = errors.New("track ended")
)
