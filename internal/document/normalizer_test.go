package document

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.White)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestNormalize_ValidPNG(t *testing.T) {
	n := NewNormalizer()

	out, err := n.Normalize(pngBytes(t, 400, 300), "image/png")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if out.Width != 400 || out.Height != 300 {
		t.Errorf("Expected 400x300, got %dx%d", out.Width, out.Height)
	}
	if out.Format != "png" {
		t.Errorf("Expected format png, got %q", out.Format)
	}
	if len(out.Bytes) == 0 {
		t.Error("Expected non-empty normalized bytes")
	}
}

func TestNormalize_EmptyFile(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize(nil, "image/png")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Expected ErrInvalidDocument for empty file, got %v", err)
	}
}

func TestNormalize_NotAnImage(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize([]byte("definitely not an image"), "image/png")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Expected ErrInvalidDocument for garbage bytes, got %v", err)
	}
}

func TestNormalize_UnsupportedContentType(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize(pngBytes(t, 10, 10), "application/pdf")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Expected ErrInvalidDocument for unsupported content type, got %v", err)
	}
}

func TestNormalize_OversizedFile(t *testing.T) {
	n := &Normalizer{maxBytes: 64, maxDimension: MaxDimension}

	_, err := n.Normalize(pngBytes(t, 100, 100), "image/png")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Expected ErrInvalidDocument for oversized file, got %v", err)
	}
}

func TestNormalize_DownscalesLargeImages(t *testing.T) {
	n := &Normalizer{maxBytes: MaxUploadBytes, maxDimension: 100}

	out, err := n.Normalize(pngBytes(t, 400, 200), "")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if out.Width != 100 {
		t.Errorf("Expected longest side scaled to 100, got width %d", out.Width)
	}
	if out.Height != 50 {
		t.Errorf("Expected aspect ratio preserved, got height %d", out.Height)
	}
}
