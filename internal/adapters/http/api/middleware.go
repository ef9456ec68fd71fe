package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/scorenft/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class for
// endpoint. The endpoint label is fixed per route so identities in the path
// never reach label values.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Milliseconds()))
		if class := errorClass(rec.status); class != "" {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, class)
		}
	}
}

// errorClass labels an error status, or returns "" for success.
func errorClass(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return ""
	case status >= http.StatusInternalServerError:
		return "server_error"
	}
	switch status {
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	default:
		return "client_error"
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
