package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/narvanalabs/qrscan/internal/api/errors"
	"github.com/narvanalabs/qrscan/internal/models"
)

// PanicRecorder receives a note for every recovered panic so it shows up
// in the event log viewer.
type PanicRecorder interface {
	Error(message string, data ...any) models.LogEntry
}

// Recovery returns a middleware that recovers from panics, logs a
// structured error entry and writes an INTERNAL_ERROR response. recorder
// may be nil.
func Recovery(logger *slog.Logger, recorder PanicRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := middleware.GetReqID(r.Context())
				entry := apierrors.NewErrorLogEntry(requestID, apierrors.CodeInternalError, fmt.Sprint(rec))
				attrs := append(entry.ToSlogAttrs(), "method", r.Method, "path", r.URL.Path)
				logger.Error("panic recovered", attrs...)

				if recorder != nil {
					recorder.Error("Unexpected server error", map[string]any{"path": r.URL.Path, "request_id": requestID})
				}

				apierrors.WriteErrorWithRequestID(w, apierrors.NewInternalError("An unexpected error occurred"), requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
