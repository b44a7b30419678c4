package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all custom metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	// Pipeline metrics
	UploadsTotal     metric.Int64Counter
	StageDurationMs  metric.Float64Histogram
	PredictionsTotal metric.Int64Counter
	DuplicatesTotal  metric.Int64Counter

	// Auth metrics
	AuthFailuresTotal       metric.Int64Counter
	PermissionCheckDuration metric.Float64Histogram
}

// InitMetrics initializes all custom metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/WailSalutem-Health-Care/prescription-service")

	// HTTP request counter
	httpRequestsTotal, err := meter.Int64Counter(
		"http_server_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// HTTP duration histogram
	httpDurationMs, err := meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	// Upload counter by outcome
	uploadsTotal, err := meter.Int64Counter(
		"prescription_uploads_total",
		metric.WithDescription("Total number of prescription uploads by outcome"),
		metric.WithUnit("{upload}"),
	)
	if err != nil {
		return nil, err
	}

	// Pipeline stage duration histogram
	stageDurationMs, err := meter.Float64Histogram(
		"pipeline_stage_duration_milliseconds",
		metric.WithDescription("Pipeline stage duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	// Prediction counter by disease and category
	predictionsTotal, err := meter.Int64Counter(
		"disease_predictions_total",
		metric.WithDescription("Total number of disease predictions by disease and category"),
		metric.WithUnit("{prediction}"),
	)
	if err != nil {
		return nil, err
	}

	// Duplicate prescription counter
	duplicatesTotal, err := meter.Int64Counter(
		"duplicate_prescriptions_total",
		metric.WithDescription("Total number of rejected duplicate prescription uploads"),
		metric.WithUnit("{upload}"),
	)
	if err != nil {
		return nil, err
	}

	// Auth failures counter
	authFailuresTotal, err := meter.Int64Counter(
		"auth_failures_total",
		metric.WithDescription("Total number of authentication failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	// Permission check duration histogram
	permissionCheckDuration, err := meter.Float64Histogram(
		"permission_check_duration_ms",
		metric.WithDescription("Permission check duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	log.Println("✓ Custom metrics initialized")

	return &Metrics{
		HTTPRequestsTotal:       httpRequestsTotal,
		HTTPDurationMs:          httpDurationMs,
		UploadsTotal:            uploadsTotal,
		StageDurationMs:         stageDurationMs,
		PredictionsTotal:        predictionsTotal,
		DuplicatesTotal:         duplicatesTotal,
		AuthFailuresTotal:       authFailuresTotal,
		PermissionCheckDuration: permissionCheckDuration,
	}, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPDurationMs.Record(ctx, durationMs, metric.WithAttributes(attrs...))
}

// RecordUpload records one pipeline run by outcome (committed, duplicate,
// invalid, failed).
func (m *Metrics) RecordUpload(ctx context.Context, outcome string) {
	m.UploadsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordStageDuration records the duration of one pipeline stage.
func (m *Metrics) RecordStageDuration(ctx context.Context, stage string, durationMs float64) {
	m.StageDurationMs.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

// RecordPrediction records one disease prediction.
func (m *Metrics) RecordPrediction(ctx context.Context, disease string, category int) {
	m.PredictionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("disease", disease),
		attribute.Int("category", category),
	))
}

// RecordDuplicate records one rejected duplicate upload.
func (m *Metrics) RecordDuplicate(ctx context.Context) {
	m.DuplicatesTotal.Add(ctx, 1)
}

// RecordAuthFailure records an authentication failure metric
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.AuthFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordPermissionCheck records a permission check duration metric
func (m *Metrics) RecordPermissionCheck(ctx context.Context, permission string, durationMs float64, allowed bool) {
	m.PermissionCheckDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("permission", permission),
		attribute.Bool("allowed", allowed),
	))
}
