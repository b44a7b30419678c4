package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrModelUnavailable indicates a disease's scoring provider failed.
// It voids only that disease; the other three still score.
var ErrModelUnavailable = errors.New("scoring model unavailable")

// Score is the raw output of one scoring provider. Confidence and
// FutureRisk may arrive either as probabilities in [0,1] or pre-scaled
// percentages; the engine normalizes them once at this boundary.
type Score struct {
	Prediction int      `json:"prediction"`
	Confidence float64  `json:"confidence"`
	FutureRisk *float64 `json:"future_risk"`
}

// Scorer invokes one disease's classification model on a complete
// feature vector.
type Scorer interface {
	Score(ctx context.Context, disease Disease, features map[string]float64) (*Score, error)
}

// HTTPScorer calls a model-serving endpoint per disease.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScorer reads SCORING_SERVICE_URL from env (default localhost).
func NewHTTPScorer() *HTTPScorer {
	baseURL := os.Getenv("SCORING_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8300"
	}
	return &HTTPScorer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type scoreRequest struct {
	Features map[string]float64 `json:"features"`
}

// Score posts the feature vector to /score/{disease}.
func (s *HTTPScorer) Score(ctx context.Context, disease Disease, features map[string]float64) (*Score, error) {
	payload, err := json.Marshal(scoreRequest{Features: features})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	url := fmt.Sprintf("%s/score/%s", s.baseURL, disease)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s", ErrModelUnavailable, resp.StatusCode, disease)
	}

	var score Score
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrModelUnavailable, err)
	}
	return &score, nil
}
