package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/matcher"
)

// RecognizeHandler answers "who is this" queries.
type RecognizeHandler struct {
	engine        Engine
	maxUploadSize int64
	logger        *zap.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(e Engine, maxUploadSize int64, logger *zap.Logger) *RecognizeHandler {
	return &RecognizeHandler{engine: e, maxUploadSize: maxUploadSize, logger: logger}
}

type recognizeResponse struct {
	IdentityKey *string    `json:"identity_key"`
	Score       float64    `json:"score"`
	Label       face.Label `json:"label"`
}

func newRecognizeResponse(res matcher.Result) recognizeResponse {
	resp := recognizeResponse{Score: res.Score, Label: res.Label}
	if res.Matched() {
		key := res.IdentityKey
		resp.IdentityKey = &key
	}
	return resp
}

// Recognize matches the largest face in the uploaded image. The optional
// threshold query parameter overrides the configured match threshold.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var opts engine.RecognizeOptions
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, face.KindInvalidInput, "threshold must be a number")
			return
		}
		opts.Threshold = &t
	}

	image, err := readImage(w, r, h.maxUploadSize)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	res, err := h.engine.Recognize(r.Context(), image, opts)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	h.logger.Debug("recognized",
		zap.String("label", string(res.Label)),
		zap.String("identity", sanitizeForLog(res.IdentityKey)),
		zap.Float64("score", res.Score))
	respondJSON(w, http.StatusOK, newRecognizeResponse(res))
}

// RecognizeEmbedding matches a precomputed embedding.
func (h *RecognizeHandler) RecognizeEmbedding(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if err := decodeJSON(w, r, h.maxUploadSize, &req); err != nil {
		respondEngineError(w, err)
		return
	}

	res, err := h.engine.RecognizeEmbedding(r.Context(), face.Embedding(req.Embedding), engine.RecognizeOptions{Threshold: req.Threshold})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newRecognizeResponse(res))
}
