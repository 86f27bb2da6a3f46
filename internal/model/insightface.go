package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/faceid/internal/constants"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/facematch"
)

const (
	// InsightFaceVersion is the buffalo_l pack served by the embedding service.
	InsightFaceVersion = "insightface-buffalo_l"
	insightFaceDim     = 512

	defaultEmbeddingURL = "http://localhost:8000"
)

// InsightFace detects and encodes faces through the embedding server's
// /embed/face endpoint. It implements both Detector and Encoder.
type InsightFace struct {
	baseURL string
	client  *http.Client
}

// NewInsightFace creates a client for the embedding server at baseURL.
func NewInsightFace(baseURL string, timeout time.Duration) *InsightFace {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if timeout <= 0 {
		timeout = constants.DefaultModelTimeout
	}
	return &InsightFace{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

func (c *InsightFace) Dim() int {
	return insightFaceDim
}

// Detect returns the faces found by the server, most confident first.
func (c *InsightFace) Detect(ctx context.Context, img *face.Image) ([]face.Region, error) {
	resp, err := c.computeFaces(ctx, img)
	if err != nil {
		return nil, err
	}

	regions := make([]face.Region, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		rect := facematch.BBoxToRect(f.BBox).Intersect(img.Bounds())
		if rect.Empty() {
			continue
		}
		regions = append(regions, face.Region{Rectangle: rect, Confidence: f.DetScore})
	}
	facematch.SortByConfidence(regions)
	return regions, nil
}

// Encode returns the embedding of the server-detected face that best overlaps
// region. The server recomputes detection, so region must come from Detect on
// the same image.
func (c *InsightFace) Encode(ctx context.Context, img *face.Image, region face.Region) (face.Embedding, error) {
	if !facematch.ValidRegion(region, img.Bounds()) {
		return nil, fmt.Errorf("region %v is degenerate or outside %v: %w", region.Rectangle, img.Bounds(), face.ErrEncodingFailed)
	}

	resp, err := c.computeFaces(ctx, img)
	if err != nil {
		return nil, err
	}

	want := facematch.RectToBBox(region.Rectangle)
	best, bestIoU := -1, 0.0
	for i, f := range resp.Faces {
		if iou := facematch.ComputeIoU(want, f.BBox); iou > bestIoU {
			best, bestIoU = i, iou
		}
	}
	if best == -1 || bestIoU < constants.IoUThreshold {
		return nil, fmt.Errorf("no face overlaps region %v (best IoU %.2f): %w", region.Rectangle, bestIoU, face.ErrEncodingFailed)
	}

	emb := face.Embedding(resp.Faces[best].Embedding)
	if emb.Dim() != insightFaceDim {
		return nil, fmt.Errorf("server returned %d-dim embedding, want %d: %w", emb.Dim(), insightFaceDim, face.ErrEncodingFailed)
	}
	if err := emb.Validate(); err != nil {
		return nil, fmt.Errorf("server returned unusable embedding: %v: %w", err, face.ErrEncodingFailed)
	}
	return emb, nil
}

func (c *InsightFace) computeFaces(ctx context.Context, img *face.Image) (*faceResponse, error) {
	data, err := imageBytes(img)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", face.ErrModel, err)
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", face.ErrModel, err)
	}
	return &resp, nil
}

// imageBytes returns the encoded image, re-encoding as PNG when the image was
// built from pixels.
func imageBytes(img *face.Image) ([]byte, error) {
	if len(img.Data) > 0 {
		return img.Data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Pixels); err != nil {
		return nil, fmt.Errorf("re-encoding image: %v: %w", err, face.ErrDecode)
	}
	return buf.Bytes(), nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *InsightFace) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 12 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return "application/octet-stream"
}
