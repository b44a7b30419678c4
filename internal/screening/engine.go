package screening

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/prescription-service/screening")

// Prediction is the common envelope every disease resolves to.
// Confidence and FutureRisk are probabilities in [0,1]; both are nil when
// the prediction is CategoryInsufficient.
type Prediction struct {
	Disease      Disease            `json:"disease"`
	Prediction   Category           `json:"prediction"`
	Confidence   *float64           `json:"confidence"`
	FutureRisk   *float64           `json:"future_risk"`
	FeaturesUsed map[string]float64 `json:"features_used"`
}

// Result maps each supported disease to its prediction envelope. All four
// diseases are always present.
type Result map[Disease]Prediction

// Engine orchestrates per-disease screening over an extracted record.
type Engine struct {
	scorers map[Disease]Scorer
}

// NewEngine builds an engine with one scorer per disease. Diseases without
// a registered scorer always report CategoryInsufficient.
func NewEngine(scorers map[Disease]Scorer) *Engine {
	return &Engine{scorers: scorers}
}

// Screen scores every supported disease independently and concurrently.
// A scorer failure marks only that disease insufficient; it never blocks
// the other three.
func (e *Engine) Screen(ctx context.Context, record *extract.Record) Result {
	features := record.Features()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = Result{}
	)

	for _, disease := range AllDiseases() {
		wg.Add(1)
		go func(d Disease) {
			defer wg.Done()
			prediction := e.screenOne(ctx, d, features)
			mu.Lock()
			results[d] = prediction
			mu.Unlock()
		}(disease)
	}
	wg.Wait()

	return results
}

func (e *Engine) screenOne(ctx context.Context, disease Disease, features map[string]float64) Prediction {
	ctx, span := tracer.Start(ctx, "screening.screenOne")
	defer span.End()
	span.SetAttributes(attribute.String("screening.disease", string(disease)))

	projected, complete := project(features, RequiredFeatures(disease))
	if !complete {
		span.SetStatus(codes.Ok, "insufficient features")
		return insufficient(disease)
	}

	scorer, ok := e.scorers[disease]
	if !ok {
		span.SetStatus(codes.Error, "no scorer registered")
		return insufficient(disease)
	}

	score, err := scorer.Score(ctx, disease, projected)
	if err != nil {
		log.Printf("[WARN] scoring %s failed: %v", disease, err)
		span.SetStatus(codes.Error, "scorer failed")
		return insufficient(disease)
	}

	category := Category(score.Prediction)
	if category == CategoryInsufficient || !disease.Valid(category) {
		// An out-of-range code from a provider is a model fault, not a
		// clinical category.
		if !disease.Valid(category) {
			log.Printf("[WARN] scorer for %s returned out-of-range code %d", disease, score.Prediction)
		}
		span.SetStatus(codes.Ok, "no valid category")
		return insufficient(disease)
	}

	confidence := normalizeProbability(score.Confidence)

	var risk float64
	if score.FutureRisk != nil {
		risk = normalizeProbability(*score.FutureRisk)
	} else {
		risk = fallbackFutureRisk(projected, disease, category)
	}

	span.SetAttributes(
		attribute.Int("screening.category", int(category)),
		attribute.Float64("screening.confidence", confidence),
	)
	span.SetStatus(codes.Ok, "scored")

	return Prediction{
		Disease:      disease,
		Prediction:   category,
		Confidence:   &confidence,
		FutureRisk:   &risk,
		FeaturesUsed: projected,
	}
}

// project selects the disease's required features from the full vector.
// complete is false as soon as any required feature is absent.
func project(features map[string]float64, required []string) (map[string]float64, bool) {
	projected := make(map[string]float64, len(required))
	for _, name := range required {
		value, ok := features[name]
		if !ok {
			return nil, false
		}
		projected[name] = value
	}
	return projected, true
}

func insufficient(disease Disease) Prediction {
	return Prediction{
		Disease:      disease,
		Prediction:   CategoryInsufficient,
		FeaturesUsed: map[string]float64{},
	}
}

// normalizeProbability resolves the legacy dual scale once: values above 1
// are percentages and divide by 100, everything is clamped to [0,1].
func normalizeProbability(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}
