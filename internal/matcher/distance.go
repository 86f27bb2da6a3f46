package matcher

import (
	"fmt"
	"math"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/face"
)

// DistanceFunc compares two embeddings. Smaller is closer; identical vectors
// are at distance 0.
type DistanceFunc func(a, b face.Embedding) float64

// maxDistance is returned for incomparable input.
const maxDistance = math.MaxFloat64

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b face.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return maxDistance
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return maxDistance
	}

	// A single square root keeps the distance of a vector to itself at exactly 0.
	similarity := dotProduct / math.Sqrt(normA*normB)
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b face.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return maxDistance
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

type metric struct {
	exact DistanceFunc
	graph hnsw.DistanceFunc
}

func metricByName(name string) (metric, error) {
	switch name {
	case config.MetricCosine, "":
		return metric{exact: CosineDistance, graph: hnsw.CosineDistance}, nil
	case config.MetricEuclidean:
		return metric{exact: EuclideanDistance, graph: hnsw.EuclideanDistance}, nil
	}
	return metric{}, fmt.Errorf("unknown metric %q: %w", name, face.ErrInvalidInput)
}
