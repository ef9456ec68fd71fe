package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/scorenft/pkg/metrics"
)

// HealthHandler serves liveness and metrics.
type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler creates a health handler over the custom registry.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz. A 200 with the Prometheus exposition
// doubles as the liveness signal.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
