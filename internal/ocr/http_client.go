package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/prescription-service/ocr")

// HTTPRecognizer calls a text-recognition service over multipart HTTP.
type HTTPRecognizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRecognizer reads OCR_SERVICE_URL from env (default localhost).
// OCR on handwriting can take seconds, so the timeout is generous.
func NewHTTPRecognizer() *HTTPRecognizer {
	baseURL := os.Getenv("OCR_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8100"
	}
	return &HTTPRecognizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Extract posts the image to the OCR service and returns raw plus cleaned text.
func (r *HTTPRecognizer) Extract(ctx context.Context, image []byte) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ocr.Extract")
	defer span.End()
	span.SetAttributes(attribute.Int("ocr.image_bytes", len(image)))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "prescription.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(part, bytes.NewReader(image)); err != nil {
		return nil, fmt.Errorf("failed to copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/recognize", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "ocr service unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "ocr service error")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		span.SetStatus(codes.Error, "invalid ocr response")
		return nil, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}

	result := &Result{
		RawText:   parsed.Text,
		CleanText: Clean(parsed.Text),
	}
	span.SetAttributes(attribute.Int("ocr.text_length", len(result.CleanText)))
	span.SetStatus(codes.Ok, "text extracted")
	return result, nil
}
