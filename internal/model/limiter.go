package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kozaktomas/faceid/internal/face"
)

// rateLimitedEncoder bounds the rate of Encode calls across all requests.
type rateLimitedEncoder struct {
	Encoder
	limiter *rate.Limiter
}

// WithRateLimit wraps enc so that at most perSecond encodes run per second,
// with the given burst. perSecond <= 0 returns enc unchanged.
func WithRateLimit(enc Encoder, perSecond float64, burst int) Encoder {
	if perSecond <= 0 {
		return enc
	}
	return &rateLimitedEncoder{
		Encoder: enc,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)),
	}
}

func (r *rateLimitedEncoder) Encode(ctx context.Context, img *face.Image, region face.Region) (face.Embedding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for encode slot: %w", interrupted(err))
	}
	return r.Encoder.Encode(ctx, img, region)
}
