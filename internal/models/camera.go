package models

// DeviceKind is the media device kind reported by enumeration.
type DeviceKind string

const (
	DeviceKindVideoInput  DeviceKind = "videoinput"
	DeviceKindAudioInput  DeviceKind = "audioinput"
	DeviceKindAudioOutput DeviceKind = "audiooutput"
)

// CameraDescriptor describes an enumerated media device. Descriptors are
// transient and re-queried on every negotiation.
type CameraDescriptor struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}

// DisplayName returns the label, or a shortened id when the label is empty
// (labels are unreadable before permission is granted).
func (c CameraDescriptor) DisplayName() string {
	if c.Label != "" {
		return c.Label
	}
	id := c.ID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	return "Camera (" + id + ")"
}
