// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching constants
const (
	// DefaultDistanceThreshold is the default maximum distance for face matching.
	// Lower values = stricter matching
	DefaultDistanceThreshold = 0.5

	// MinDistanceThreshold and MaxDistanceThreshold bound per-request overrides
	MinDistanceThreshold = 0.05
	MaxDistanceThreshold = 1.0

	// IoUThreshold is the minimum Intersection over Union required to consider
	// a face returned by a remote model the same face as a requested region
	IoUThreshold = 0.5

	// DefaultShortlistSize is the number of nearest embeddings the HNSW
	// strategy hands to the exact rescoring pass
	DefaultShortlistSize = 64

	// HNSWMaxNeighbors is the M parameter of the HNSW graph
	HNSWMaxNeighbors = 16
)

// Gallery constants
const (
	// DefaultMaxEmbeddingsPerIdentity caps reference embeddings per identity
	DefaultMaxEmbeddingsPerIdentity = 10

	// WriteRetryInitialInterval is the first backoff delay between storage retries
	WriteRetryInitialInterval = 50 * time.Millisecond

	// WriteRetryMaxElapsed bounds the total time spent retrying one write
	WriteRetryMaxElapsed = 5 * time.Second
)

// Processing constants
const (
	// DefaultDegradedAfter is the number of consecutive model failures after
	// which health reports degraded
	DefaultDegradedAfter = 3

	// WorkerPoolSize is the default number of parallel workers for bulk enrollment
	WorkerPoolSize = 4

	// MaxUploadSize is the maximum accepted image upload in bytes
	MaxUploadSize = 20 << 20

	// DefaultModelTimeout is the HTTP timeout for remote face models
	DefaultModelTimeout = 30 * time.Second
)
