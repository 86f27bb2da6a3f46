package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/face"
)

// IdentitiesHandler handles registration, lookup and deletion of identities.
type IdentitiesHandler struct {
	engine        Engine
	maxUploadSize int64
	logger        *zap.Logger
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(e Engine, maxUploadSize int64, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{engine: e, maxUploadSize: maxUploadSize, logger: logger}
}

type identityResponse struct {
	Status           string     `json:"status"`
	IdentityKey      string     `json:"identity_key"`
	Registered       bool       `json:"registered"`
	EmbeddingCount   int        `json:"embedding_count"`
	RegisteredAt     *time.Time `json:"registered_at,omitempty"`
	LastRegisteredAt *time.Time `json:"last_registered_at,omitempty"`
}

func newIdentityResponse(s engine.IdentityStatus) identityResponse {
	resp := identityResponse{
		Status:         "ok",
		IdentityKey:    s.IdentityKey,
		Registered:     s.Registered,
		EmbeddingCount: s.EmbeddingCount,
	}
	if s.Registered {
		resp.RegisteredAt = &s.RegisteredAt
		resp.LastRegisteredAt = &s.LastRegisteredAt
	}
	return resp
}

type embeddingRequest struct {
	Embedding []float32 `json:"embedding"`
	Threshold *float64  `json:"threshold,omitempty"`
}

// RegisterFace registers the face in the uploaded image under {key}.
func (h *IdentitiesHandler) RegisterFace(w http.ResponseWriter, r *http.Request) {
	key, err := identityKeyParam(r)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	image, err := readImage(w, r, h.maxUploadSize)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	status, err := h.engine.Register(r.Context(), key, image)
	if err != nil {
		h.logger.Info("registration rejected", zap.String("identity", sanitizeForLog(key)), zap.Error(err))
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newIdentityResponse(status))
}

// RegisterEmbedding registers a precomputed embedding under {key}.
func (h *IdentitiesHandler) RegisterEmbedding(w http.ResponseWriter, r *http.Request) {
	key, err := identityKeyParam(r)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	var req embeddingRequest
	if err := decodeJSON(w, r, h.maxUploadSize, &req); err != nil {
		respondEngineError(w, err)
		return
	}
	if req.Threshold != nil {
		respondError(w, http.StatusBadRequest, face.KindInvalidInput, "threshold is only accepted by recognize")
		return
	}

	status, err := h.engine.RegisterEmbedding(r.Context(), key, face.Embedding(req.Embedding))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newIdentityResponse(status))
}

// Get reports the status of {key}. Unknown identities are 404.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := identityKeyParam(r)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	status, err := h.engine.Status(key)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if !status.Registered {
		respondJSON(w, http.StatusNotFound, newIdentityResponse(status))
		return
	}
	respondJSON(w, http.StatusOK, newIdentityResponse(status))
}

// Delete removes {key}. A second delete of the same key is 404 not_found.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, err := identityKeyParam(r)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if err := h.engine.Delete(r.Context(), key); err != nil {
		if errors.Is(err, face.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
			return
		}
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// List returns every identity in registration order.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses := h.engine.List()
	out := make([]identityResponse, len(statuses))
	for i, s := range statuses {
		out[i] = newIdentityResponse(s)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": out,
		"count":      len(out),
	})
}
