package ocr

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrUnavailable indicates the OCR capability itself failed. It is distinct
// from a legible-but-empty document, which yields empty text and no error.
var ErrUnavailable = errors.New("ocr capability unavailable")

// Result holds the raw engine output and its cleaned form. CleanText is
// never absent on success; a document with no legible text produces "".
type Result struct {
	RawText   string `json:"raw_text"`
	CleanText string `json:"clean_text"`
}

// Recognizer extracts text from a normalized prescription image.
type Recognizer interface {
	Extract(ctx context.Context, image []byte) (*Result, error)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Clean normalizes OCR noise: whitespace runs collapse to single spaces and
// stray replacement characters from misrecognition are dropped.
func Clean(raw string) string {
	cleaned := strings.ReplaceAll(raw, "�", " ")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
