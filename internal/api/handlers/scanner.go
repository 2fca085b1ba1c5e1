// Package handlers provides HTTP handlers for the scanner API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/narvanalabs/qrscan/internal/api/errors"
	"github.com/narvanalabs/qrscan/internal/models"
)

// ScannerService is the scan controller as seen by the API.
type ScannerService interface {
	Status() models.ScannerStatus
	StartWithCamera(ctx context.Context, deviceID string) error
	Stop(ctx context.Context) error
	SetScanMode(ctx context.Context, zoomed bool) error
	Cameras(ctx context.Context) ([]models.CameraDescriptor, error)
}

// StartRequest is the optional body of POST /api/scanner/start.
type StartRequest struct {
	DeviceID string `json:"device_id,omitempty"`
}

// ModeRequest is the body of POST /api/scanner/mode.
type ModeRequest struct {
	Zoomed *bool `json:"zoomed"`
}

// CamerasResponse lists cameras for the selection prompt.
type CamerasResponse struct {
	Cameras []models.CameraDescriptor `json:"cameras"`
	// Prompt is true when the user should choose between cameras.
	Prompt bool `json:"prompt"`
}

// ScannerHandler handles scanner lifecycle endpoints.
type ScannerHandler struct {
	scanner ScannerService
	logger  *slog.Logger
}

// NewScannerHandler creates a new scanner handler.
func NewScannerHandler(scanner ScannerService, logger *slog.Logger) *ScannerHandler {
	return &ScannerHandler{scanner: scanner, logger: logger}
}

// Get handles GET /api/scanner.
func (h *ScannerHandler) Get(w http.ResponseWriter, r *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, h.scanner.Status())
}

// Start handles POST /api/scanner/start.
func (h *ScannerHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, r, apierrors.NewValidationError("invalid request body"))
		return
	}

	if err := h.scanner.StartWithCamera(r.Context(), req.DeviceID); err != nil {
		h.logger.Warn("scanner start failed", "error", err, "device_id", req.DeviceID)
		writeError(w, r, apierrors.FromScannerError(err).WithDetails(map[string]any{
			"error":  err.Error(),
			"status": h.scanner.Status(),
		}))
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, h.scanner.Status())
}

// Stop handles POST /api/scanner/stop.
func (h *ScannerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.scanner.Stop(r.Context()); err != nil {
		writeError(w, r, apierrors.NewInternalError(err.Error()))
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, h.scanner.Status())
}

// Mode handles POST /api/scanner/mode.
func (h *ScannerHandler) Mode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Zoomed == nil {
		writeError(w, r, apierrors.NewValidationError("zoomed is required").WithDetails(map[string]any{"field": "zoomed"}))
		return
	}

	if err := h.scanner.SetScanMode(r.Context(), *req.Zoomed); err != nil {
		writeError(w, r, apierrors.New(apierrors.CodeUnavailable, "scan mode change failed").WithDetails(map[string]any{
			"error": err.Error(),
		}))
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, h.scanner.Status())
}

// Cameras handles GET /api/cameras.
func (h *ScannerHandler) Cameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := h.scanner.Cameras(r.Context())
	if err != nil {
		writeError(w, r, apierrors.FromScannerError(err).WithDetails(map[string]any{"error": err.Error()}))
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, CamerasResponse{Cameras: cameras, Prompt: len(cameras) > 1})
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	apierrors.WriteErrorWithRequestID(w, err, middleware.GetReqID(r.Context()))
}
