package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/mclink/internal/metrics"
	"github.com/mcoot/mclink/internal/middleware"
)

// Logging creates request logging middleware that also records HTTP metrics
func Logging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return middleware.Logging(logger, func(r *http.Request, status int, elapsed time.Duration) {
		m.HTTPRequest(r.Method, status, elapsed)
	})
}
