package middleware

import (
	"net/http"
	"strings"
)

const (
	// DefaultStandardMaxBodyBytes limits layout and other small request bodies (512KB).
	DefaultStandardMaxBodyBytes = 512 * 1024
	// DefaultDatasetMaxBodyBytes limits PUT /api/v1/dataset (16MB).
	DefaultDatasetMaxBodyBytes = 16 * 1024 * 1024
)

// MaxBodySize returns middleware that limits request body size: datasetMax for
// PUT .../dataset, standardMax otherwise. GET/HEAD/DELETE bodies are not limited.
func MaxBodySize(standardMax, datasetMax int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			limit := standardMax
			if r.Method == http.MethodPut && strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/dataset") {
				limit = datasetMax
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
