package facematch

import (
	"image"
	"math"
	"testing"

	"github.com/kozaktomas/faceid/internal/face"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		bbox1    []float64
		bbox2    []float64
		expected float64
	}{
		{
			name:     "identical boxes",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{5, 5, 15, 15},
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
		},
		{
			name:     "one inside other",
			bbox1:    []float64{0, 0, 20, 20},
			bbox2:    []float64{5, 5, 15, 15},
			expected: 100.0 / 400.0,
		},
		{
			name:     "invalid bbox1",
			bbox1:    []float64{0, 0, 10},
			bbox2:    []float64{0, 0, 10, 10},
			expected: 0.0,
		},
		{
			name:     "empty bboxes",
			bbox1:    []float64{},
			bbox2:    []float64{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.bbox1, tt.bbox2)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.bbox1, tt.bbox2, result, tt.expected)
			}
		})
	}
}

func TestBBoxToRect(t *testing.T) {
	tests := []struct {
		name     string
		bbox     []float64
		expected image.Rectangle
	}{
		{"integral", []float64{10, 20, 30, 40}, image.Rect(10, 20, 30, 40)},
		{"rounds outwards", []float64{10.6, 20.2, 29.1, 39.9}, image.Rect(10, 20, 30, 40)},
		{"negative origin", []float64{-1.5, -0.5, 5, 5}, image.Rect(-2, -1, 5, 5)},
		{"swapped corners", []float64{30, 40, 10, 20}, image.Rect(10, 20, 30, 40)},
		{"malformed", []float64{1, 2}, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BBoxToRect(tt.bbox); got != tt.expected {
				t.Errorf("BBoxToRect(%v) = %v, want %v", tt.bbox, got, tt.expected)
			}
		})
	}
}

func TestValidRegion(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	tests := []struct {
		name     string
		rect     image.Rectangle
		expected bool
	}{
		{"inside", image.Rect(10, 10, 50, 50), true},
		{"full frame", bounds, true},
		{"zero width", image.Rect(10, 10, 10, 50), false},
		{"out of bounds", image.Rect(90, 90, 120, 120), false},
		{"empty", image.Rectangle{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidRegion(face.Region{Rectangle: tt.rect}, bounds); got != tt.expected {
				t.Errorf("ValidRegion(%v) = %v, want %v", tt.rect, got, tt.expected)
			}
		})
	}
}

func TestLargestRegion(t *testing.T) {
	small := face.Region{Rectangle: image.Rect(0, 0, 10, 10), Confidence: 0.99}
	large := face.Region{Rectangle: image.Rect(20, 20, 60, 60), Confidence: 0.7}
	sameAsLarge := face.Region{Rectangle: image.Rect(100, 100, 140, 140), Confidence: 0.6}

	got, ok := LargestRegion([]face.Region{small, large, sameAsLarge})
	if !ok {
		t.Fatal("LargestRegion() returned ok=false")
	}
	if got != large {
		t.Errorf("LargestRegion() = %v, want %v (first of equal areas)", got, large)
	}

	if _, ok := LargestRegion(nil); ok {
		t.Error("LargestRegion(nil) should return ok=false")
	}
}

func TestSortByConfidence(t *testing.T) {
	regions := []face.Region{
		{Rectangle: image.Rect(0, 0, 1, 1), Confidence: 0.5},
		{Rectangle: image.Rect(0, 0, 2, 2), Confidence: 0.9},
		{Rectangle: image.Rect(0, 0, 3, 3), Confidence: 0.5},
	}
	SortByConfidence(regions)

	if regions[0].Confidence != 0.9 {
		t.Errorf("first confidence = %v, want 0.9", regions[0].Confidence)
	}
	// Stable: equal confidences keep insertion order.
	if regions[1].Rectangle.Dx() != 1 || regions[2].Rectangle.Dx() != 3 {
		t.Errorf("equal-confidence regions reordered: %v", regions)
	}
}
