package middleware

import "net/http"

// MaxBody returns a middleware that limits request body size to maxBytes.
// Handlers that read the full body get an error once the limit is exceeded and
// respond accordingly. Use 0 or negative to disable (no limit).
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
