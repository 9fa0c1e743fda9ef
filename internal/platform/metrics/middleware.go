package metrics

import (
	"net/http"
)

// codeRecorder captures the status code for metrics.
type codeRecorder struct {
	http.ResponseWriter
	status int
}

func (w *codeRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware returns chi middleware that counts requests by method
// and error responses (status >= 400) by code.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &codeRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.IncRequests(r.Method)
			if rec.status >= http.StatusBadRequest {
				m.IncErrors(rec.status)
			}
		})
	}
}
