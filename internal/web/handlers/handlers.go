// Package handlers implements the HTTP endpoints of the identity engine.
package handlers

import (
	"context"

	"github.com/kozaktomas/faceid/internal/engine"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/matcher"
)

// Engine is the subset of *engine.Engine the handlers use.
type Engine interface {
	Register(ctx context.Context, key string, image []byte) (engine.IdentityStatus, error)
	RegisterEmbedding(ctx context.Context, key string, emb face.Embedding) (engine.IdentityStatus, error)
	Recognize(ctx context.Context, image []byte, opts engine.RecognizeOptions) (matcher.Result, error)
	RecognizeEmbedding(ctx context.Context, emb face.Embedding, opts engine.RecognizeOptions) (matcher.Result, error)
	Delete(ctx context.Context, key string) error
	Status(key string) (engine.IdentityStatus, error)
	List() []engine.IdentityStatus
	Health() engine.Health
}
