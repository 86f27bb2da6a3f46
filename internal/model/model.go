// Package model provides the pluggable face detectors and encoders, selected
// by model version.
package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/face"
)

// Detector locates faces in an image. Regions are ordered by confidence,
// highest first. An empty result means no face and is not an error.
type Detector interface {
	Detect(ctx context.Context, img *face.Image) ([]face.Region, error)
}

// Encoder turns one face region into a fixed-length embedding. Output must be
// deterministic for a given model version and input.
type Encoder interface {
	Encode(ctx context.Context, img *face.Image, region face.Region) (face.Embedding, error)
	Dim() int
}

// Model is a detector/encoder pair identified by its version string. The
// version is persisted with every embedding.
type Model struct {
	Version  string
	Detector Detector
	Encoder  Encoder
}

// Dim returns the embedding dimensionality of the encoder.
func (m *Model) Dim() int {
	return m.Encoder.Dim()
}

type factory func(cfg config.ModelConfig) (Detector, Encoder, error)

var registry = map[string]factory{
	"gray16-v1": grayFactory(16),
	"gray32-v1": grayFactory(32),
	InsightFaceVersion: func(cfg config.ModelConfig) (Detector, Encoder, error) {
		c := NewInsightFace(cfg.URL, cfg.Timeout)
		return c, c, nil
	},
}

// Versions lists the known model versions.
func Versions() []string {
	out := make([]string, 0, len(registry))
	for v := range registry {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// interrupted reports a cancelled or expired context as a model error, so a
// model call that could not complete maps to model_error.
func interrupted(err error) error {
	return fmt.Errorf("%w: %w", face.ErrModel, err)
}

// Open instantiates the model named by cfg.Version. Unknown versions are ErrModel.
func Open(cfg config.ModelConfig) (*Model, error) {
	f, ok := registry[cfg.Version]
	if !ok {
		return nil, fmt.Errorf("unknown model version %q (known: %v): %w", cfg.Version, Versions(), face.ErrModel)
	}
	det, enc, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing model %s: %v: %w", cfg.Version, err, face.ErrModel)
	}
	return &Model{
		Version:  cfg.Version,
		Detector: det,
		Encoder:  WithRateLimit(enc, cfg.EncodeRateLimit, cfg.EncodeBurst),
	}, nil
}
