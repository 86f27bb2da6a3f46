// Package facematch provides face-region geometry and identity key handling
// shared by the models and the engine.
package facematch

import (
	"image"
	"sort"

	"github.com/kozaktomas/faceid/internal/face"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// RectToBBox converts an image.Rectangle to [x1, y1, x2, y2].
func RectToBBox(r image.Rectangle) []float64 {
	return []float64{
		float64(r.Min.X),
		float64(r.Min.Y),
		float64(r.Max.X),
		float64(r.Max.Y),
	}
}

// BBoxToRect converts a pixel bbox [x1, y1, x2, y2] to an image.Rectangle,
// rounding outwards so the face is never clipped.
// Returns the zero rectangle for malformed input.
func BBoxToRect(bbox []float64) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(floor(bbox[0]), floor(bbox[1]), ceil(bbox[2]), ceil(bbox[3])).Canon()
}

func floor(v float64) int {
	i := int(v)
	if float64(i) > v {
		i--
	}
	return i
}

func ceil(v float64) int {
	i := int(v)
	if float64(i) < v {
		i++
	}
	return i
}

// ValidRegion reports whether the region has positive area and lies fully
// inside bounds.
func ValidRegion(r face.Region, bounds image.Rectangle) bool {
	if r.Area() == 0 {
		return false
	}
	return r.Rectangle.In(bounds)
}

// SortByConfidence orders regions by detector confidence, highest first.
// Equal confidences keep their original relative order.
func SortByConfidence(regions []face.Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Confidence > regions[j].Confidence
	})
}

// LargestRegion picks the region with the largest bounding box area.
// Equal areas resolve to the earliest region, so with confidence-ordered input
// the more confident face wins. ok is false when regions is empty.
func LargestRegion(regions []face.Region) (largest face.Region, ok bool) {
	best := -1
	for i := range regions {
		if best == -1 || regions[i].Area() > regions[best].Area() {
			best = i
		}
	}
	if best == -1 {
		return face.Region{}, false
	}
	return regions[best], true
}
