package httpx

import (
	"net/http"
	"time"
)

// HealthHandlers reports service liveness.
type HealthHandlers struct {
	Environment string
	StartedAt   time.Time
}

type healthResponse struct {
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	Uptime      string    `json:"uptime"`
	Environment string    `json:"environment"`
}

// Health handles GET /health for readiness/liveness checks.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthResponse{
		Message:     "citypulse weather pipeline",
		Timestamp:   time.Now().UTC(),
		Status:      "OK",
		Uptime:      time.Since(h.StartedAt).Round(time.Second).String(),
		Environment: h.Environment,
	})
}
