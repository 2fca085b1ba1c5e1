package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/qrscan/internal/camera"
	"github.com/narvanalabs/qrscan/internal/scanner"
)

// Every error response body carries string code, message and request_id
// fields, and the status code matches the error code.
func TestPropertyStructuredErrorResponseFormat(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genErrorCode := gen.OneConstOf(
		CodeValidationError,
		CodeNotFound,
		CodeForbidden,
		CodeConflict,
		CodeUnavailable,
		CodeStartFailed,
		CodeInternalError,
		CodeMountUnavailable,
	)
	genNonEmptyString := gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 })
	genRequestID := gen.RegexMatch("[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}")

	properties.Property("error response contains required fields", prop.ForAll(
		func(code, message, requestID string) bool {
			err := New(code, message).WithRequestID(requestID)

			rr := httptest.NewRecorder()
			WriteError(rr, err)

			if rr.Code != err.HTTPStatusCode() {
				return false
			}
			if rr.Header().Get("Content-Type") != "application/json" {
				return false
			}

			var response map[string]any
			if jsonErr := json.NewDecoder(rr.Body).Decode(&response); jsonErr != nil {
				return false
			}
			for _, field := range []string{"code", "message", "request_id"} {
				if _, ok := response[field].(string); !ok {
					t.Logf("field %q missing or not a string", field)
					return false
				}
			}
			return response["code"] == code && response["message"] == message && response["request_id"] == requestID
		},
		genErrorCode,
		genNonEmptyString,
		genRequestID,
	))

	properties.TestingRun(t)
}

func TestFromScannerError(t *testing.T) {
	tests := []struct {
		err        error
		wantCode   string
		wantStatus int
	}{
		{fmt.Errorf("%w: start from running", scanner.ErrInvalidTransition), CodeConflict, http.StatusConflict},
		{scanner.ErrMountNotFound, CodeMountUnavailable, http.StatusConflict},
		{scanner.ErrPermissionDenied, CodeForbidden, http.StatusForbidden},
		{scanner.ErrNoCameraFound, CodeNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: cam-9", camera.ErrDeviceNotFound), CodeNotFound, http.StatusNotFound},
		{scanner.ErrCameraUnavailable, CodeUnavailable, http.StatusServiceUnavailable},
		{errors.New("surface detached"), CodeStartFailed, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		got := FromScannerError(tt.err)
		if got.Code != tt.wantCode || got.HTTPStatusCode() != tt.wantStatus {
			t.Errorf("FromScannerError(%v) = %s/%d, want %s/%d", tt.err, got.Code, got.HTTPStatusCode(), tt.wantCode, tt.wantStatus)
		}
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := NewValidationError("bad body")
	detailed := base.WithDetails(map[string]any{"field": "zoomed"}).WithRequestID("req-1")

	if base.Details != nil || base.RequestID != "" {
		t.Fatalf("original error mutated: %+v", base)
	}
	if detailed.Details["field"] != "zoomed" || detailed.RequestID != "req-1" {
		t.Fatalf("copy = %+v", detailed)
	}
}

func TestErrorLogEntryAttrs(t *testing.T) {
	entry := NewErrorLogEntry("req-1", CodeInternalError, "panic recovered")
	attrs := entry.ToSlogAttrs()
	if len(attrs) != 8 || attrs[1] != "req-1" || entry.StackTrace == "" {
		t.Fatalf("attrs = %v", attrs)
	}
}
