package model

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/face"
	"github.com/kozaktomas/faceid/internal/facematch"
)

// minContrast is the luminance range (0-255) below which a frame is treated
// as empty.
const minContrast = 8

func grayFactory(size int) factory {
	return func(config.ModelConfig) (Detector, Encoder, error) {
		return FrameDetector{}, NewGrayEncoder(size), nil
	}
}

// FrameDetector treats the whole frame as a single face. It is meant for
// front ends that already crop to the face. A flat frame yields no face.
type FrameDetector struct{}

func (FrameDetector) Detect(ctx context.Context, img *face.Image) ([]face.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, interrupted(err)
	}
	if img == nil || img.Pixels == nil {
		return nil, fmt.Errorf("no image: %w", face.ErrDecode)
	}
	b := img.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			l := luma(img.Pixels, x, y)
			lo = min(lo, l)
			hi = max(hi, l)
		}
	}
	if int(hi)-int(lo) < minContrast {
		return nil, nil
	}
	return []face.Region{{Rectangle: b, Confidence: 1}}, nil
}

func luma(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	// Same weights as color.GrayModel.
	return uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 24)
}

// GrayEncoder resamples a face region to size x size luminance values,
// removes the mean and scales to unit length.
type GrayEncoder struct {
	size int
}

func NewGrayEncoder(size int) *GrayEncoder {
	return &GrayEncoder{size: size}
}

func (e *GrayEncoder) Dim() int {
	return e.size * e.size
}

func (e *GrayEncoder) Encode(ctx context.Context, img *face.Image, region face.Region) (face.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, interrupted(err)
	}
	if img == nil || img.Pixels == nil {
		return nil, fmt.Errorf("no image: %w", face.ErrEncodingFailed)
	}
	if !facematch.ValidRegion(region, img.Bounds()) {
		return nil, fmt.Errorf("region %v is degenerate or outside %v: %w", region.Rectangle, img.Bounds(), face.ErrEncodingFailed)
	}

	dst := image.NewGray(image.Rect(0, 0, e.size, e.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img.Pixels, region.Rectangle, draw.Src, nil)

	v := make([]float64, len(dst.Pix))
	for i, p := range dst.Pix {
		v[i] = float64(p) / 255
	}
	floats.AddConst(-floats.Sum(v)/float64(len(v)), v)

	norm := floats.Norm(v, 2)
	if norm < 1e-9 {
		return nil, fmt.Errorf("region %v has no contrast: %w", region.Rectangle, face.ErrEncodingFailed)
	}
	floats.Scale(1/norm, v)

	out := make(face.Embedding, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out, nil
}
