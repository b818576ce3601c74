package handlers

import (
	"net/http"
	"time"
)

// HealthHandler responds with service liveness information.
type HealthHandler struct {
	NowFunc func() time.Time
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Handle implements GET /health.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	now := time.Now
	if h.NowFunc != nil {
		now = h.NowFunc
	}

	respondJSON(r.Context(), w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: now().Unix(),
	})
}
