package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrInvalidDocument indicates the uploaded bytes are not a usable
// prescription image (empty, oversized, wrong type or undecodable).
var ErrInvalidDocument = errors.New("invalid document")

const (
	// MaxUploadBytes is the upload size cap, matching the intake form limit.
	MaxUploadBytes = 5 * 1024 * 1024

	// MaxDimension bounds the longest image side so OCR latency stays bounded.
	MaxDimension = 2048
)

// Normalized is an in-memory image ready to hand to the OCR capability.
type Normalized struct {
	Bytes  []byte
	Width  int
	Height int
	Format string
}

// Normalizer validates and normalizes raw prescription uploads.
type Normalizer struct {
	maxBytes     int
	maxDimension int
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		maxBytes:     MaxUploadBytes,
		maxDimension: MaxDimension,
	}
}

// Normalize validates the byte stream decodes to a supported raster format
// and returns a bounded-size JPEG buffer. It never mutates the input.
func (n *Normalizer) Normalize(data []byte, contentType string) (*Normalized, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidDocument)
	}
	if len(data) > n.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d byte limit", ErrInvalidDocument, n.maxBytes)
	}
	if contentType != "" && contentType != "image/png" && contentType != "image/jpeg" {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidDocument, contentType)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidDocument)
	}

	if width > n.maxDimension || height > n.maxDimension {
		img = downscale(img, n.maxDimension)
		bounds = img.Bounds()
		width = bounds.Dx()
		height = bounds.Dy()
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode normalized image: %w", err)
	}

	return &Normalized{
		Bytes:  buf.Bytes(),
		Width:  width,
		Height: height,
		Format: format,
	}, nil
}

// downscale resizes img so its longest side equals max, preserving aspect ratio.
func downscale(img image.Image, max int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var newW, newH int
	if width >= height {
		newW = max
		newH = height * max / width
	} else {
		newH = max
		newW = width * max / height
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
