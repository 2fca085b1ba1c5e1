package models

import "time"

// ScannerState is the lifecycle state of the scan controller.
type ScannerState string

const (
	// ScannerStateIdle indicates no capture session is held.
	ScannerStateIdle ScannerState = "idle"
	// ScannerStateStarting indicates permission and stream negotiation is in flight.
	ScannerStateStarting ScannerState = "starting"
	// ScannerStateRunning indicates the decoder is attached and scanning frames.
	ScannerStateRunning ScannerState = "running"
	// ScannerStateStopping indicates resources are being released.
	ScannerStateStopping ScannerState = "stopping"
	// ScannerStateErrored indicates a start failure is being cleaned up.
	ScannerStateErrored ScannerState = "errored"
)

// ScannerAction is a user-facing action on the scanner.
type ScannerAction string

const (
	ScannerActionStart ScannerAction = "start"
	ScannerActionStop  ScannerAction = "stop"
	ScannerActionMode  ScannerAction = "mode"
)

// AvailableActions returns the actions a presentation surface should offer.
// Mode switches are accepted in every state but only take effect while a
// capture session is active, so they are offered only while running.
func (s ScannerState) AvailableActions() []ScannerAction {
	switch s {
	case ScannerStateIdle:
		return []ScannerAction{ScannerActionStart}
	case ScannerStateStarting, ScannerStateErrored:
		return []ScannerAction{ScannerActionStop}
	case ScannerStateRunning:
		return []ScannerAction{ScannerActionStop, ScannerActionMode}
	default:
		return []ScannerAction{}
	}
}

// HasAction returns true if the given action is available for this state.
func (s ScannerState) HasAction(action ScannerAction) bool {
	for _, a := range s.AvailableActions() {
		if a == action {
			return true
		}
	}
	return false
}

// CanTransition reports whether the controller may move from s to next.
func (s ScannerState) CanTransition(next ScannerState) bool {
	switch s {
	case ScannerStateIdle:
		return next == ScannerStateStarting
	case ScannerStateStarting:
		return next == ScannerStateRunning || next == ScannerStateErrored || next == ScannerStateStopping
	case ScannerStateRunning:
		return next == ScannerStateStopping || next == ScannerStateErrored
	case ScannerStateStopping, ScannerStateErrored:
		return next == ScannerStateIdle
	default:
		return false
	}
}

// String returns the string representation of the scanner state.
func (s ScannerState) String() string {
	return string(s)
}

// IsValid returns true if the scanner state is a valid state.
func (s ScannerState) IsValid() bool {
	switch s {
	case ScannerStateIdle, ScannerStateStarting, ScannerStateRunning, ScannerStateStopping, ScannerStateErrored:
		return true
	default:
		return false
	}
}

// ValidScannerStates returns all valid scanner states.
func ValidScannerStates() []ScannerState {
	return []ScannerState{
		ScannerStateIdle,
		ScannerStateStarting,
		ScannerStateRunning,
		ScannerStateStopping,
		ScannerStateErrored,
	}
}

// ScannerStatus is the observable controller state consumed by the
// presentation surface.
type ScannerStatus struct {
	State         ScannerState `json:"state"`
	IsRunning     bool         `json:"is_running"`
	StatusMessage string       `json:"status_message"`
	IsErrorStatus bool         `json:"is_error_status"`
	// DisplayFor is how long the surface should keep the message visible.
	DisplayFor time.Duration   `json:"display_for"`
	CameraID   string          `json:"camera_id,omitempty"`
	Zoomed     bool            `json:"zoomed"`
	Actions    []ScannerAction `json:"actions"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
