package scanner

import (
	"errors"
	"strings"

	"github.com/narvanalabs/qrscan/internal/camera"
)

// Controller error taxonomy.
var (
	ErrPermissionDenied  = camera.ErrPermissionDenied
	ErrNoCameraFound     = camera.ErrNoCameraFound
	ErrCameraUnavailable = camera.ErrCameraUnavailable
	ErrMountNotFound     = errors.New("scan target mount not found")
	ErrDecodeTransient   = errors.New("transient decode error")
	ErrDecodeError       = errors.New("decode error")
	ErrReleaseFailure    = errors.New("release failure")
	ErrInvalidTransition = errors.New("invalid scanner state transition")
)

// User-facing status messages.
const (
	StatusReady            = "ready"
	StatusStopped          = "stopped"
	StatusPermissionDenied = "permission denied"
	StatusNoCamera         = "no camera found"
	StatusFailedToStart    = "failed to start"
	statusScannedPrefix    = "scanned: "
	statusDuplicatePrefix  = "already scanned: "
	statusScanErrorPrefix  = "scan error: "
)

// StartFailureStatus maps a start failure to its status message.
func StartFailureStatus(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return StatusPermissionDenied
	case errors.Is(err, ErrNoCameraFound):
		return StatusNoCamera
	default:
		return StatusFailedToStart
	}
}

// IsDuplicateStatus reports whether msg is an "already scanned" notice.
func IsDuplicateStatus(msg string) bool {
	return strings.HasPrefix(msg, statusDuplicatePrefix)
}
