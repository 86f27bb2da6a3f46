package face

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is an input frame in both raw and decoded form. Remote models post the
// raw bytes, local models work on the pixels.
type Image struct {
	Data   []byte
	Format string
	Pixels image.Image
}

// Bounds returns the pixel bounds of the decoded image.
func (i *Image) Bounds() image.Rectangle {
	return i.Pixels.Bounds()
}

// DecodeImage decodes JPEG, PNG, GIF, BMP, TIFF or WebP data.
// Any failure is reported as ErrDecode.
func DecodeImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data: %w", ErrDecode)
	}
	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels.Bounds().Empty() {
		return nil, fmt.Errorf("image has no pixels: %w", ErrDecode)
	}
	return &Image{Data: data, Format: format, Pixels: pixels}, nil
}

// FromPixels wraps an already decoded image. Data is left empty; models that
// need encoded bytes re-encode on demand.
func FromPixels(pixels image.Image) *Image {
	return &Image{Format: "raw", Pixels: pixels}
}
