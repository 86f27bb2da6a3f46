package model

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/face"
)

// gradient builds a w x h image whose luminance rises along x (horizontal)
// or along y.
func gradient(w, h int, horizontal bool) *face.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := y * 255 / max(h-1, 1)
			if horizontal {
				v = x * 255 / max(w-1, 1)
			}
			img.Set(x, y, color.RGBA{uint8(v), uint8(v), uint8(v), 255})
		}
	}
	return face.FromPixels(img)
}

func flat(w, h int) *face.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{120, 120, 120, 255})
		}
	}
	return face.FromPixels(img)
}

func dot(a, b face.Embedding) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestOpen(t *testing.T) {
	tests := []struct {
		version string
		dim     int
		wantErr bool
	}{
		{"gray16-v1", 256, false},
		{"gray32-v1", 1024, false},
		{InsightFaceVersion, 512, false},
		{"vggface-v9", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			m, err := Open(config.ModelConfig{Version: tt.version})
			if tt.wantErr {
				if !errors.Is(err, face.ErrModel) {
					t.Errorf("Open(%q) error = %v, want ErrModel", tt.version, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%q) error = %v", tt.version, err)
			}
			if m.Dim() != tt.dim {
				t.Errorf("Dim() = %d, want %d", m.Dim(), tt.dim)
			}
			if m.Version != tt.version {
				t.Errorf("Version = %q, want %q", m.Version, tt.version)
			}
		})
	}
}

func TestFrameDetector(t *testing.T) {
	ctx := context.Background()

	regions, err := FrameDetector{}.Detect(ctx, gradient(40, 30, true))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(regions) != 1 || regions[0].Rectangle != image.Rect(0, 0, 40, 30) {
		t.Errorf("expected the whole frame, got %v", regions)
	}

	regions, err = FrameDetector{}.Detect(ctx, flat(40, 30))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("expected no face in a flat frame, got %v", regions)
	}
}

func TestGrayEncoder_Deterministic(t *testing.T) {
	ctx := context.Background()
	enc := NewGrayEncoder(16)
	img := gradient(64, 48, true)
	region := face.Region{Rectangle: img.Bounds(), Confidence: 1}

	a, err := enc.Encode(ctx, img, region)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, err := enc.Encode(ctx, img, region)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if a.Dim() != 256 {
		t.Fatalf("Dim = %d, want 256", a.Dim())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs between runs: %v vs %v", i, a[i], b[i])
		}
	}
	if n := math.Sqrt(dot(a, a)); math.Abs(n-1) > 1e-5 {
		t.Errorf("expected unit length, got %v", n)
	}
}

func TestGrayEncoder_SeparatesPatterns(t *testing.T) {
	ctx := context.Background()
	enc := NewGrayEncoder(16)

	h := gradient(64, 64, true)
	v := gradient(64, 64, false)

	eh, err := enc.Encode(ctx, h, face.Region{Rectangle: h.Bounds()})
	if err != nil {
		t.Fatal(err)
	}
	ev, err := enc.Encode(ctx, v, face.Region{Rectangle: v.Bounds()})
	if err != nil {
		t.Fatal(err)
	}

	// Centred horizontal and vertical ramps are orthogonal.
	if d := dot(eh, ev); math.Abs(d) > 0.05 {
		t.Errorf("expected near-orthogonal embeddings, dot = %v", d)
	}
}

func TestGrayEncoder_Errors(t *testing.T) {
	ctx := context.Background()
	enc := NewGrayEncoder(16)
	img := gradient(32, 32, true)

	tests := []struct {
		name   string
		img    *face.Image
		region image.Rectangle
	}{
		{"zero area", img, image.Rect(5, 5, 5, 20)},
		{"out of bounds", img, image.Rect(20, 20, 50, 50)},
		{"no contrast", flat(32, 32), image.Rect(0, 0, 32, 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(ctx, tt.img, face.Region{Rectangle: tt.region})
			if !errors.Is(err, face.ErrEncodingFailed) {
				t.Errorf("Encode() error = %v, want ErrEncodingFailed", err)
			}
		})
	}
}

func TestWithRateLimit(t *testing.T) {
	enc := NewGrayEncoder(16)

	if got := WithRateLimit(enc, 0, 1); got != Encoder(enc) {
		t.Error("expected encoder unchanged when rate limit is disabled")
	}

	limited := WithRateLimit(enc, 1000, 2)
	if limited.Dim() != enc.Dim() {
		t.Errorf("Dim() = %d, want %d", limited.Dim(), enc.Dim())
	}
	img := gradient(32, 32, true)
	if _, err := limited.Encode(context.Background(), img, face.Region{Rectangle: img.Bounds()}); err != nil {
		t.Errorf("Encode() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := limited.Encode(ctx, img, face.Region{Rectangle: img.Bounds()})
	if face.KindOf(err) != face.KindModel {
		t.Errorf("Encode() with cancelled context error = %v, want kind %s", err, face.KindModel)
	}

	slow := WithRateLimit(enc, 0.001, 1)
	if _, err := slow.Encode(context.Background(), img, face.Region{Rectangle: img.Bounds()}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	deadline, cancelDeadline := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelDeadline()
	_, err = slow.Encode(deadline, img, face.Region{Rectangle: img.Bounds()})
	if !errors.Is(err, face.ErrModel) {
		t.Errorf("Encode() past the limiter deadline error = %v, want ErrModel", err)
	}
}

func TestGrayModel_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := gradient(32, 32, true)

	if _, err := (FrameDetector{}).Detect(ctx, img); !errors.Is(err, face.ErrModel) || !errors.Is(err, context.Canceled) {
		t.Errorf("Detect() error = %v, want ErrModel wrapping context.Canceled", err)
	}
	if _, err := NewGrayEncoder(16).Encode(ctx, img, face.Region{Rectangle: img.Bounds()}); face.KindOf(err) != face.KindModel {
		t.Errorf("Encode() error = %v, want kind %s", err, face.KindModel)
	}
}
