package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/mclink/internal/api/apierr"
	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/middleware"
)

// Recovery creates panic recovery middleware for the API.
// Panics become a generic INTERNAL_ERROR body and are counted as 500s.
func Recovery(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, apiPanicHandler, func(r *http.Request, status int, elapsed time.Duration) {
		m.HTTPRequest(r.Method, status, elapsed)
	})
}

func apiPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}
