package middleware

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WriteDeadline replaces the server-wide write timeout for routes that do
// long synchronous work before replying. A zero d leaves the server's
// deadline in place.
func WriteDeadline(d time.Duration, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := http.NewResponseController(w)
			if err := rc.SetWriteDeadline(time.Now().Add(d)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				logger.Warn("Failed to extend write deadline",
					zap.String("path", r.URL.Path),
					zap.Duration("deadline", d),
					zap.Error(err),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}
