package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// PanicHandler writes the response for a request whose handler panicked
type PanicHandler func(w http.ResponseWriter, r *http.Request, err any)

// Recovery creates panic recovery middleware. A recovered request is reported
// to the observers as a 500 since the logging middleware never sees it complete.
func Recovery(logger *slog.Logger, handler PanicHandler, observers ...RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				handler(w, r, err)
				for _, observe := range observers {
					observe(r, http.StatusInternalServerError, time.Since(start))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
