// Package health provides health check functionality for the scanner service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/models"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// StatusReporter exposes the scanner's observable state.
type StatusReporter interface {
	Status() models.ScannerStatus
}

// Checker performs health checks for the capture backend and the scanner.
type Checker struct {
	capture   camera.MediaCapture
	scanner   StatusReporter
	startTime time.Time
	version   string
	timeout   time.Duration
	mu        sync.RWMutex
}

// NewChecker creates a new health checker.
func NewChecker(capture camera.MediaCapture, scanner StatusReporter, version string) *Checker {
	return &Checker{
		capture:   capture,
		scanner:   scanner,
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check performs all health checks and returns the aggregated response.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := map[string]ComponentStatus{
		"capture": c.checkCapture(checkCtx),
		"scanner": c.checkScanner(),
	}

	overallStatus := StatusHealthy
	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
		if comp.Status == StatusDegraded {
			overallStatus = StatusDegraded
		}
	}

	return &Response{
		Status:     overallStatus,
		Components: components,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

func (c *Checker) checkCapture(ctx context.Context) ComponentStatus {
	if c.capture == nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: "capture backend not configured"}
	}

	devices, err := c.capture.EnumerateDevices(ctx)
	if err != nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: "enumeration failed: " + err.Error()}
	}
	if len(camera.VideoInputs(devices)) == 0 {
		return ComponentStatus{Status: StatusDegraded, Message: "no camera found"}
	}
	return ComponentStatus{Status: StatusHealthy, Message: "cameras available"}
}

func (c *Checker) checkScanner() ComponentStatus {
	if c.scanner == nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: "scanner not configured"}
	}

	status := c.scanner.Status()
	if status.State == models.ScannerStateErrored ||
		status.State == models.ScannerStateIdle && status.IsErrorStatus {
		return ComponentStatus{Status: StatusDegraded, Message: status.StatusMessage}
	}
	return ComponentStatus{Status: StatusHealthy, Message: string(status.State)}
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		case StatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}
