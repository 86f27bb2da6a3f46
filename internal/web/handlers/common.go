package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/face"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

type errorResponse struct {
	Status string    `json:"status"`
	Kind   face.Kind `json:"kind"`
	Error  string    `json:"error"`
}

// respondError sends an error response of the given kind.
func respondError(w http.ResponseWriter, status int, kind face.Kind, message string) {
	respondJSON(w, status, errorResponse{Status: "error", Kind: kind, Error: message})
}

// statusForKind maps an error kind to its HTTP status code.
func statusForKind(kind face.Kind) int {
	switch kind {
	case face.KindDecode, face.KindInvalidInput, face.KindDimensionMismatch:
		return http.StatusBadRequest
	case face.KindMultipleFaces:
		return http.StatusUnprocessableEntity
	case face.KindNotFound:
		return http.StatusNotFound
	case face.KindModel, face.KindEncodingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondEngineError reports err with the status code of its kind.
func respondEngineError(w http.ResponseWriter, err error) {
	kind := face.KindOf(err)
	if kind == face.KindNone {
		kind = face.KindInternal
	}
	respondError(w, statusForKind(kind), kind, err.Error())
}

// identityKeyParam returns the {key} URL parameter decoded exactly once.
// chi routes on r.URL.RawPath when it is set, in which case the parameter is
// still escaped; otherwise it already comes from the decoded r.URL.Path.
func identityKeyParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return raw, nil
	}
	key, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("malformed identity key: %w", face.ErrInvalidInput)
	}
	return key, nil
}

// readImage returns the uploaded image from a multipart "file" field or, for
// any other content type, the raw request body.
func readImage(w http.ResponseWriter, r *http.Request, maxSize int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, uploadError(err, "failed to parse multipart form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("multipart field \"file\" is required: %w", face.ErrInvalidInput)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, uploadError(err, "failed to read uploaded file")
		}
		return data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, uploadError(err, "failed to read request body")
	}
	return data, nil
}

func uploadError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("image larger than %d bytes: %w", tooLarge.Limit, face.ErrInvalidInput)
	}
	return fmt.Errorf("%s: %v: %w", message, err, face.ErrInvalidInput)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxSize int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s: %v: %w", errInvalidRequestBody, err, face.ErrInvalidInput)
	}
	return nil
}
