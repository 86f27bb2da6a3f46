package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/matcher"
)

func TestRecognizeHandler_Recognize(t *testing.T) {
	alice := "alice"
	tests := []struct {
		name     string
		result   matcher.Result
		identity *string
	}{
		{"match", matcher.Result{IdentityKey: "alice", Score: 0.12, Label: face.LabelMatch}, &alice},
		{"no match", matcher.Result{Score: 0.8, Label: face.LabelNoMatch}, nil},
		{"no face", matcher.Result{Label: face.LabelNoFace}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeEngine{result: tc.result}
			handler := NewRecognizeHandler(fake, 1<<20, zap.NewNop())
			recorder := httptest.NewRecorder()

			handler.Recognize(recorder, multipartRequest(t, "POST", "/api/v1/recognize", "file", []byte("img")))

			assertStatusCode(t, recorder, http.StatusOK)
			var result recognizeResponse
			parseJSONResponse(t, recorder, &result)
			if result.Label != tc.result.Label || result.Score != tc.result.Score {
				t.Errorf("unexpected response: %+v", result)
			}
			switch {
			case tc.identity == nil && result.IdentityKey != nil:
				t.Errorf("expected null identity_key, got %q", *result.IdentityKey)
			case tc.identity != nil && (result.IdentityKey == nil || *result.IdentityKey != *tc.identity):
				t.Errorf("expected identity_key %q, got %v", *tc.identity, result.IdentityKey)
			}
		})
	}
}

func TestRecognizeHandler_NullIdentityInJSON(t *testing.T) {
	fake := &fakeEngine{result: matcher.Result{Label: face.LabelNoFace}}
	handler := NewRecognizeHandler(fake, 1<<20, zap.NewNop())
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, httptest.NewRequest("POST", "/api/v1/recognize", strings.NewReader("img")))

	if !strings.Contains(recorder.Body.String(), `"identity_key":null`) {
		t.Errorf("expected null identity_key, got %s", recorder.Body.String())
	}
}

func TestRecognizeHandler_ThresholdParam(t *testing.T) {
	fake := &fakeEngine{result: matcher.Result{Label: face.LabelNoMatch}}
	handler := NewRecognizeHandler(fake, 1<<20, zap.NewNop())
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, httptest.NewRequest("POST", "/api/v1/recognize?threshold=0.35", strings.NewReader("img")))

	assertStatusCode(t, recorder, http.StatusOK)
	if fake.gotOpts.Threshold == nil || *fake.gotOpts.Threshold != 0.35 {
		t.Errorf("expected threshold 0.35, got %v", fake.gotOpts.Threshold)
	}
}

func TestRecognizeHandler_BadThresholdParam(t *testing.T) {
	handler := NewRecognizeHandler(&fakeEngine{}, 1<<20, zap.NewNop())
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, httptest.NewRequest("POST", "/api/v1/recognize?threshold=close", strings.NewReader("img")))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorKind(t, recorder, face.KindInvalidInput)
}

func TestRecognizeHandler_EngineError(t *testing.T) {
	fake := &fakeEngine{err: face.WrapError("recognize", face.ErrDecode)}
	handler := NewRecognizeHandler(fake, 1<<20, zap.NewNop())
	recorder := httptest.NewRecorder()

	handler.Recognize(recorder, httptest.NewRequest("POST", "/api/v1/recognize", strings.NewReader("junk")))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertErrorKind(t, recorder, face.KindDecode)
}

func TestRecognizeHandler_RecognizeEmbedding(t *testing.T) {
	fake := &fakeEngine{result: matcher.Result{IdentityKey: "bob", Score: 0.2, Label: face.LabelMatch}}
	handler := NewRecognizeHandler(fake, 1<<20, zap.NewNop())
	recorder := httptest.NewRecorder()

	body := strings.NewReader(`{"embedding":[1,0],"threshold":0.3}`)
	handler.RecognizeEmbedding(recorder, httptest.NewRequest("POST", "/api/v1/recognize/embedding", body))

	assertStatusCode(t, recorder, http.StatusOK)
	if fake.gotOpts.Threshold == nil || *fake.gotOpts.Threshold != 0.3 {
		t.Errorf("expected threshold 0.3, got %v", fake.gotOpts.Threshold)
	}
	var result recognizeResponse
	parseJSONResponse(t, recorder, &result)
	if result.IdentityKey == nil || *result.IdentityKey != "bob" {
		t.Errorf("unexpected response: %+v", result)
	}
}

func TestHealthHandler_Get(t *testing.T) {
	tests := []struct {
		status     string
		statusCode int
	}{
		{engine.StatusOK, http.StatusOK},
		{engine.StatusDegraded, http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			fake := &fakeEngine{health: engine.Health{Status: tc.status, GallerySize: 4, EmbeddingCount: 9, ModelVersion: "gray16-v1", Dim: 256}}
			recorder := httptest.NewRecorder()

			NewHealthHandler(fake).Get(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

			assertStatusCode(t, recorder, tc.statusCode)
			assertContentType(t, recorder, "application/json")
			var result healthResponse
			parseJSONResponse(t, recorder, &result)
			if result.Status != tc.status || result.GallerySize != 4 || result.EmbeddingCount != 9 || result.Dim != 256 {
				t.Errorf("unexpected health: %+v", result)
			}
		})
	}
}
