package api

import (
	"net/http"
	"time"
)

// StatsProvider reports service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves /stats.
type StatsHandler struct {
	provider StatsProvider
	started  time.Time
}

// NewStatsHandler creates a stats handler. Uptime counts from here.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider, started: time.Now()}
}

// HandleStats answers GET with the provider's stats plus process uptime.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	out := map[string]any{"uptime_seconds": int64(time.Since(h.started).Seconds())}
	if h.provider != nil {
		for k, v := range h.provider.GetStats() {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}
