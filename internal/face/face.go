// Package face holds the types shared by the detection, encoding, gallery and
// matching layers: embeddings, detected regions, decoded images and the error
// taxonomy reported to callers.
package face

import (
	"fmt"
	"image"
	"math"
)

// Embedding is a fixed-length identity signature produced by an encoder.
// Embeddings are treated as immutable once produced; callers that need to
// modify one must Clone it first.
type Embedding []float32

// Dim returns the vector dimensionality.
func (e Embedding) Dim() int {
	return len(e)
}

// Clone returns a copy that shares no memory with e.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Validate rejects vectors that cannot be compared: empty, non-finite or all zero.
func (e Embedding) Validate() error {
	if len(e) == 0 {
		return fmt.Errorf("empty embedding: %w", ErrInvalidInput)
	}
	nonZero := false
	for i, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("embedding component %d is not finite: %w", i, ErrInvalidInput)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return fmt.Errorf("embedding is all zeros: %w", ErrInvalidInput)
	}
	return nil
}

// Region is one detected face: its bounding box in pixel coordinates and the
// detector's confidence.
type Region struct {
	Rectangle  image.Rectangle
	Confidence float64
}

// Area returns the bounding box area in pixels (0 for degenerate boxes).
func (r Region) Area() int {
	if r.Rectangle.Empty() {
		return 0
	}
	return r.Rectangle.Dx() * r.Rectangle.Dy()
}

// Label classifies the outcome of a recognition.
type Label string

const (
	LabelMatch   Label = "match"
	LabelNoMatch Label = "no-match"
	LabelNoFace  Label = "no-face"
)
