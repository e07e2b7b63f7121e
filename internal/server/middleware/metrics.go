package middleware

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/metrics"
)

// Metrics records request counts and latency per matched route pattern.
// Unmatched requests are grouped under "unmatched" to bound label cardinality.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequest(r.Method, route, rw.statusCode, time.Since(start).Seconds())
		})
	}
}
