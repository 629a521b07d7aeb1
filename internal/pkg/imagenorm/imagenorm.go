// Package imagenorm validates uploaded face images and bounds their size.
package imagenorm

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/facevote-api/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

var formats = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
}

// Limits bounds what Normalize accepts and stores.
type Limits struct {
	// MaxDimension is the longest edge kept; larger images are downscaled.
	MaxDimension int
	// MaxPixels caps width*height as declared in the image header. Images
	// over it are rejected before any pixel data is decoded.
	MaxPixels int
}

// Normalize sniffs data, rejects anything that is not a JPEG or PNG, and
// downscales images whose longest edge exceeds lim.MaxDimension. It returns
// the bytes to store and their content type. declared is the client's
// Content-Type and must agree with the sniffed type when set.
func Normalize(data []byte, declared string, lim Limits) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image: %w", domain.ErrBadRequest)
	}
	mt := mimetype.Detect(data)
	sniffed := mt.String()
	format, ok := formats[sniffed]
	if !ok {
		return nil, "", fmt.Errorf("unsupported image type %q: %w", sniffed, domain.ErrBadRequest)
	}
	if declared != "" && !mt.Is(declared) {
		return nil, "", fmt.Errorf("content type %q does not match image data: %w", declared, domain.ErrBadRequest)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image header: %w", domain.ErrBadRequest)
	}
	if lim.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(lim.MaxPixels) {
		return nil, "", fmt.Errorf("image is %dx%d, over %d pixels: %w", cfg.Width, cfg.Height, lim.MaxPixels, domain.ErrBadRequest)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", domain.ErrBadRequest)
	}
	maxDim := lim.MaxDimension
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return data, sniffed, nil
	}
	var resized image.Image
	if b.Dx() >= b.Dy() {
		resized = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(90)); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), sniffed, nil
}
