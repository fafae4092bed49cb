package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imageorient"
	"github.com/nfnt/resize"

	// Registers the webp decoder; webp input is re-encoded as png on output
	// (no maintained pure-Go webp encoder).
	_ "golang.org/x/image/webp"
)

// jpegQuality is fixed and never caller-configurable.
const jpegQuality = 85

// Sanitizer decodes, validates, normalizes and re-encodes image uploads.
// Metadata is discarded by construction: output bytes are produced from the
// decoded raster, never by copying or editing the input container.
type Sanitizer struct {
	maxPixels    int
	maxDimension int
}

// NewSanitizer constructs a Sanitizer with a decoded-pixel ceiling and a
// per-side dimension ceiling.
func NewSanitizer(maxPixels, maxDimension int) *Sanitizer {
	return &Sanitizer{maxPixels: maxPixels, maxDimension: maxDimension}
}

// SanitizedImage is a safe re-encoded image ready for storage.
type SanitizedImage struct {
	Data   []byte
	Kind   Kind // stored kind: jpg or png
	Width  int
	Height int
}

// Sanitize validates and re-encodes one image stream. The header-declared
// resolution is checked against the pixel ceiling before the full decode
// runs, so a decompression bomb is refused without allocating its raster.
// Any failure at verify, decode or encode is a rejection; no partial output
// is ever produced.
func (s *Sanitizer) Sanitize(rs io.ReadSeeker, kind Kind) (*SanitizedImage, error) {
	if kind.Category() != CategoryImage {
		return nil, fmt.Errorf("media: sanitize called with non-image kind %q", kind)
	}

	cfg, _, err := image.DecodeConfig(rs)
	if err != nil {
		return nil, ErrImageMalformed
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrImageMalformed
	}
	if cfg.Width*cfg.Height > s.maxPixels {
		return nil, ErrImageTooLarge
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// Full structural parse. imageorient applies the EXIF orientation to the
	// raster, so the re-encoded output needs no orientation tag.
	img, _, err := imageorient.Decode(rs)
	if err != nil {
		return nil, ErrImageMalformed
	}

	bounds := img.Bounds()
	if bounds.Dx() > s.maxDimension || bounds.Dy() > s.maxDimension {
		img = resize.Thumbnail(uint(s.maxDimension), uint(s.maxDimension), img, resize.Lanczos3)
		bounds = img.Bounds()
	}

	var buf bytes.Buffer
	outKind := kind
	switch kind {
	case KindJPG:
		// JPEG output is opaque: alpha is flattened onto white.
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, ErrImageMalformed
		}
	case KindPNG, KindWEBP:
		if err := png.Encode(&buf, img); err != nil {
			return nil, ErrImageMalformed
		}
		outKind = KindPNG
	default:
		return nil, fmt.Errorf("media: no encoder for kind %q", kind)
	}

	return &SanitizedImage{
		Data:   buf.Bytes(),
		Kind:   outKind,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// flatten draws the image over a white background, dropping any alpha.
func flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
