package handlers

import (
	"net/http"

	"github.com/kozaktomas/faceid/internal/engine"
)

// HealthHandler reports engine health.
type HealthHandler struct {
	engine Engine
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(e Engine) *HealthHandler {
	return &HealthHandler{engine: e}
}

type healthResponse struct {
	Status                   string `json:"status"`
	GallerySize              int    `json:"gallery_size"`
	EmbeddingCount           int    `json:"embedding_count"`
	ModelVersion             string `json:"model_version"`
	Dim                      int    `json:"dim"`
	ConsecutiveModelFailures int    `json:"consecutive_model_failures"`
}

// Get handles the health check endpoint. A degraded engine answers 503.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	health := h.engine.Health()
	code := http.StatusOK
	if health.Status == engine.StatusDegraded {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, healthResponse{
		Status:                   health.Status,
		GallerySize:              health.GallerySize,
		EmbeddingCount:           health.EmbeddingCount,
		ModelVersion:             health.ModelVersion,
		Dim:                      health.Dim,
		ConsecutiveModelFailures: health.ConsecutiveModelFailures,
	})
}
