package face

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func TestEmbeddingValidate(t *testing.T) {
	tests := []struct {
		name    string
		emb     Embedding
		wantErr bool
	}{
		{"valid", Embedding{0.1, -0.2, 0.3}, false},
		{"empty", Embedding{}, true},
		{"nil", nil, true},
		{"all zeros", Embedding{0, 0, 0}, true},
		{"nan", Embedding{0.1, float32(math.NaN())}, true},
		{"inf", Embedding{float32(math.Inf(1)), 0.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.emb.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestEmbeddingClone(t *testing.T) {
	orig := Embedding{1, 2, 3}
	cp := orig.Clone()
	cp[0] = 42
	if orig[0] != 1 {
		t.Error("Clone shares memory with the original")
	}
	if Embedding(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestRegionArea(t *testing.T) {
	r := Region{Rectangle: image.Rect(10, 10, 30, 20)}
	if r.Area() != 200 {
		t.Errorf("Area() = %d, want 200", r.Area())
	}
	degenerate := Region{Rectangle: image.Rect(10, 10, 10, 40)}
	if degenerate.Area() != 0 {
		t.Errorf("degenerate Area() = %d, want 0", degenerate.Area())
	}
}

func TestDecodeImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	decoded, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	if decoded.Format != "png" {
		t.Errorf("Format = %q, want png", decoded.Format)
	}
	if decoded.Bounds() != image.Rect(0, 0, 8, 6) {
		t.Errorf("Bounds() = %v", decoded.Bounds())
	}
}

func TestDecodeImage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"truncated png header", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeImage(tt.data)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}
