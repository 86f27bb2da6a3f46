package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/matcher"
)

// fakeEngine records the arguments it receives and returns canned results.
type fakeEngine struct {
	status    engine.IdentityStatus
	result    matcher.Result
	list      []engine.IdentityStatus
	health    engine.Health
	err       error
	deleteErr error

	gotKey       string
	gotImage     []byte
	gotEmbedding face.Embedding
	gotOpts      engine.RecognizeOptions
}

func (f *fakeEngine) Register(_ context.Context, key string, image []byte) (engine.IdentityStatus, error) {
	f.gotKey, f.gotImage = key, image
	return f.status, f.err
}

func (f *fakeEngine) RegisterEmbedding(_ context.Context, key string, emb face.Embedding) (engine.IdentityStatus, error) {
	f.gotKey, f.gotEmbedding = key, emb
	return f.status, f.err
}

func (f *fakeEngine) Recognize(_ context.Context, image []byte, opts engine.RecognizeOptions) (matcher.Result, error) {
	f.gotImage, f.gotOpts = image, opts
	return f.result, f.err
}

func (f *fakeEngine) RecognizeEmbedding(_ context.Context, emb face.Embedding, opts engine.RecognizeOptions) (matcher.Result, error) {
	f.gotEmbedding, f.gotOpts = emb, opts
	return f.result, f.err
}

func (f *fakeEngine) Delete(_ context.Context, key string) error {
	f.gotKey = key
	return f.deleteErr
}

func (f *fakeEngine) Status(key string) (engine.IdentityStatus, error) {
	f.gotKey = key
	return f.status, f.err
}

func (f *fakeEngine) List() []engine.IdentityStatus { return f.list }

func (f *fakeEngine) Health() engine.Health { return f.health }

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartRequest builds a multipart request carrying data in the given field.
func multipartRequest(t *testing.T, method, path, field string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "face.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertErrorKind checks that the response is an error body of the given kind
func assertErrorKind(t *testing.T, recorder *httptest.ResponseRecorder, expected face.Kind) {
	t.Helper()
	var result errorResponse
	parseJSONResponse(t, recorder, &result)
	if result.Status != "error" {
		t.Errorf("expected status 'error', got '%s'", result.Status)
	}
	if result.Kind != expected {
		t.Errorf("expected kind '%s', got '%s'", expected, result.Kind)
	}
}
