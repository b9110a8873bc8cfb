package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kubilitics/kubilitics-topoview/internal/pkg/logger"
)

// Recovery turns handler panics into 500 responses.
func Recovery(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered", "error", err, "request_id", logger.FromContext(r.Context()), "stack", string(debug.Stack()))
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
