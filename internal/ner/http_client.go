package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/prescription-service/ner")

// HTTPTagger calls a token-classification service over JSON HTTP.
type HTTPTagger struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTagger reads NER_SERVICE_URL from env (default localhost).
func NewHTTPTagger() *HTTPTagger {
	baseURL := os.Getenv("NER_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8200"
	}
	return &HTTPTagger{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type tagRequest struct {
	Text string `json:"text"`
}

type tagResponse struct {
	Entities []Span `json:"entities"`
}

// Tag sends cleaned text to the tagging service and groups the spans.
func (t *HTTPTagger) Tag(ctx context.Context, cleanText string) (Groups, error) {
	ctx, span := tracer.Start(ctx, "ner.Tag")
	defer span.End()
	span.SetAttributes(attribute.Int("ner.text_length", len(cleanText)))

	payload, err := json.Marshal(tagRequest{Text: cleanText})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tag request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tag", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "ner service unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "ner service error")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed tagResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		span.SetStatus(codes.Error, "invalid ner response")
		return nil, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}

	groups := GroupSpans(parsed.Entities)
	span.SetAttributes(attribute.Int("ner.entities", len(parsed.Entities)))
	span.SetStatus(codes.Ok, "entities tagged")
	return groups, nil
}
