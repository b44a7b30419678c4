package prescription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/document"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ner"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ocr"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/pagination"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/screening"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/telemetry"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/prescription-service/prescription")

// RolePatient scopes reads to the caller's own history.
const RolePatient = "PATIENT"

// Service runs the analysis pipeline and owns patient resolution,
// persistence and event publishing around it.
type Service struct {
	normalizer *document.Normalizer
	recognizer ocr.Recognizer
	tagger     ner.Tagger
	extractor  *extract.Extractor
	engine     *screening.Engine
	resolver   *Resolver
	repo       RepositoryInterface
	publisher  messaging.PublisherInterface
	metrics    *telemetry.Metrics
}

// NewService wires the pipeline stages together. metrics may be nil in
// tests.
func NewService(
	normalizer *document.Normalizer,
	recognizer ocr.Recognizer,
	tagger ner.Tagger,
	extractor *extract.Extractor,
	engine *screening.Engine,
	resolver *Resolver,
	repo RepositoryInterface,
	publisher messaging.PublisherInterface,
	metrics *telemetry.Metrics,
) *Service {
	return &Service{
		normalizer: normalizer,
		recognizer: recognizer,
		tagger:     tagger,
		extractor:  extractor,
		engine:     engine,
		resolver:   resolver,
		repo:       repo,
		publisher:  publisher,
		metrics:    metrics,
	}
}

// Analyze runs the full pipeline over one uploaded document: validate,
// OCR, entity tagging, feature extraction, per-disease screening and,
// when input.Persist is set, an atomic commit plus event publishing.
//
// The tagging stage is the only tolerated failure: without entities the
// clinical text groups stay empty but vitals still screen. Every other
// stage failure aborts the run.
func (s *Service) Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResponse, error) {
	ctx, span := tracer.Start(ctx, "prescription.Analyze")
	defer span.End()
	span.SetAttributes(attribute.Bool("prescription.persist", input.Persist))

	normalized, err := stage(ctx, s.metrics, "normalize", func(ctx context.Context) (*document.Normalized, error) {
		return s.normalizer.Normalize(input.Data, input.ContentType)
	})
	if err != nil {
		s.recordUpload(ctx, "invalid")
		span.SetStatus(codes.Error, "document rejected")
		return nil, err
	}

	text, err := stage(ctx, s.metrics, "ocr", func(ctx context.Context) (*ocr.Result, error) {
		return s.recognizer.Extract(ctx, normalized.Bytes)
	})
	if err != nil {
		s.recordUpload(ctx, "failed")
		span.SetStatus(codes.Error, "ocr failed")
		return nil, err
	}

	groups, err := stage(ctx, s.metrics, "ner", func(ctx context.Context) (ner.Groups, error) {
		return s.tagger.Tag(ctx, text.CleanText)
	})
	if err != nil {
		log.Printf("Warning: entity tagging failed, continuing with vitals only: %v", err)
		groups = ner.EmptyGroups()
	}

	record, err := s.extractor.Extract(text.CleanText, groups)
	if err != nil {
		s.recordUpload(ctx, "invalid")
		span.SetStatus(codes.Error, "extraction failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("prescription.serial", record.PrescriptionSerial))

	screenStart := time.Now()
	result := s.engine.Screen(ctx, record)
	s.recordStage(ctx, "screening", screenStart)
	for _, d := range screening.AllDiseases() {
		if s.metrics != nil {
			s.metrics.RecordPrediction(ctx, string(d), int(result[d].Prediction))
		}
	}

	if !input.Persist {
		s.recordUpload(ctx, "demo")
		span.SetStatus(codes.Ok, "analyzed without persistence")
		return buildResponse(record, record.PatientID, text.CleanText, result), nil
	}

	patient, _, err := s.resolver.Resolve(ctx, input.CallerPatientID, record)
	if err != nil {
		s.recordUpload(ctx, "failed")
		span.SetStatus(codes.Error, "patient resolution failed")
		return nil, err
	}

	rec := &Record{
		PrescriptionSerial: record.PrescriptionSerial,
		PatientID:          patient.PatientID,
		CleanText:          text.CleanText,
		Symptoms:           record.Symptoms,
		Medicines:          record.Medicines,
		Tests:              record.Tests,
		Vitals:             record.Vitals,
		Predictions:        orderedPredictions(result),
	}

	commitStart := time.Now()
	err = s.repo.CommitRecord(ctx, rec)
	s.recordStage(ctx, "commit", commitStart)
	if err != nil {
		if errors.Is(err, ErrDuplicatePrescription) {
			if s.metrics != nil {
				s.metrics.RecordDuplicate(ctx)
			}
			s.recordUpload(ctx, "duplicate")
			span.SetStatus(codes.Error, "duplicate serial")
			return nil, err
		}
		s.recordUpload(ctx, "failed")
		span.SetStatus(codes.Error, "commit failed")
		return nil, fmt.Errorf("failed to commit prescription: %w", err)
	}

	s.publishAnalyzed(ctx, rec)

	s.recordUpload(ctx, "committed")
	span.SetStatus(codes.Ok, "committed")
	log.Printf("✓ Prescription %s committed for patient %s", rec.PrescriptionSerial, rec.PatientID)

	return buildResponse(record, patient.PatientID, text.CleanText, result), nil
}

// History returns a page of committed visits, newest first. Patient
// callers are always pinned to their own history regardless of filters.
func (s *Service) History(ctx context.Context, principal *auth.Principal, filter HistoryFilter, params pagination.Params) (*HistoryResponse, error) {
	params.Validate()

	if principal != nil && hasRole(principal, RolePatient) {
		// A patient token without a patient_id claim must not degrade into
		// an unfiltered query over everyone's history.
		if principal.PatientID == "" {
			return nil, ErrForbidden
		}
		filter.PatientID = principal.PatientID
		filter.Phone = ""
	}

	records, total, err := s.repo.ListRecords(ctx, filter, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, fmt.Errorf("failed to list prescription history: %w", err)
	}

	patientIDs := make([]string, 0, len(records))
	seen := make(map[string]bool)
	for _, rec := range records {
		if !seen[rec.PatientID] {
			seen[rec.PatientID] = true
			patientIDs = append(patientIDs, rec.PatientID)
		}
	}

	patients, err := s.repo.GetPatientsByIDs(ctx, patientIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load patients for history: %w", err)
	}

	visits := make([]Visit, 0, len(records))
	for i := range records {
		visits = append(visits, buildVisit(&records[i], patients[records[i].PatientID]))
	}

	return &HistoryResponse{
		Data: visits,
		Meta: params.CalculateMeta(total),
	}, nil
}

// GetVisit returns one committed visit by serial.
func (s *Service) GetVisit(ctx context.Context, principal *auth.Principal, serial string) (*Visit, error) {
	rec, err := s.repo.GetRecord(ctx, serial)
	if err != nil {
		return nil, err
	}

	if principal != nil && hasRole(principal, RolePatient) && principal.PatientID != rec.PatientID {
		return nil, ErrForbidden
	}

	patients, err := s.repo.GetPatientsByIDs(ctx, []string{rec.PatientID})
	if err != nil {
		return nil, fmt.Errorf("failed to load patient for visit: %w", err)
	}

	visit := buildVisit(rec, patients[rec.PatientID])
	return &visit, nil
}

// stage runs one pipeline stage and records its duration.
func stage[T any](ctx context.Context, m *telemetry.Metrics, name string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := fn(ctx)
	if m != nil {
		m.RecordStageDuration(ctx, name, float64(time.Since(start).Milliseconds()))
	}
	return out, err
}

func (s *Service) recordStage(ctx context.Context, name string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStageDuration(ctx, name, float64(time.Since(start).Milliseconds()))
	}
}

func (s *Service) recordUpload(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordUpload(ctx, outcome)
	}
}

// publishAnalyzed emits the post-commit events. Publishing is best
// effort: the record is already durable and a broker outage must not
// fail the upload. The patient.registered event is published by the
// resolver at creation time.
func (s *Service) publishAnalyzed(ctx context.Context, rec *Record) {
	detected, maxRisk, topDisease := summarize(rec.Predictions)

	analyzed := messaging.PrescriptionAnalyzedEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventPrescriptionAnalyzed),
		Data: messaging.PrescriptionAnalyzedData{
			PrescriptionSerial: rec.PrescriptionSerial,
			PatientID:          rec.PatientID,
			DiseasesDetected:   detected,
			MaxFutureRisk:      maxRisk,
			CreatedAt:          rec.CreatedAt,
		},
	}
	if err := s.publisher.Publish(ctx, messaging.EventPrescriptionAnalyzed, analyzed); err != nil {
		log.Printf("Warning: failed to publish prescription.analyzed event: %v", err)
	}

	if maxRisk >= HighRiskThreshold {
		highRisk := messaging.PrescriptionHighRiskEvent{
			BaseEvent: messaging.NewBaseEvent(messaging.EventPrescriptionHighRisk),
			Data: messaging.PrescriptionHighRiskData{
				PrescriptionSerial: rec.PrescriptionSerial,
				PatientID:          rec.PatientID,
				Disease:            string(topDisease),
				FutureRisk:         maxRisk,
			},
		}
		if err := s.publisher.Publish(ctx, messaging.EventPrescriptionHighRisk, highRisk); err != nil {
			log.Printf("Warning: failed to publish prescription.high_risk event: %v", err)
		}
	}
}

// hasRole is case-insensitive so token roles ("patient") match the
// canonical names used in permissions.yml.
func hasRole(p *auth.Principal, role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// orderedPredictions flattens a screening result in canonical disease
// order.
func orderedPredictions(result screening.Result) []screening.Prediction {
	out := make([]screening.Prediction, 0, len(result))
	for _, d := range screening.AllDiseases() {
		if p, ok := result[d]; ok {
			out = append(out, p)
		}
	}
	return out
}

// summarize counts positive findings and finds the maximum future risk.
// The obesity scale treats only category 1 (obese) as a finding; the
// binary diseases count category 1.
func summarize(predictions []screening.Prediction) (detected int, maxRisk float64, topDisease screening.Disease) {
	for _, p := range predictions {
		if p.Prediction == 1 {
			detected++
		}
		if p.FutureRisk != nil && *p.FutureRisk > maxRisk {
			maxRisk = *p.FutureRisk
			topDisease = p.Disease
		}
	}
	return detected, maxRisk, topDisease
}

func buildResponse(record *extract.Record, patientID, cleanText string, result screening.Result) *AnalyzeResponse {
	return &AnalyzeResponse{
		PrescriptionSerial: record.PrescriptionSerial,
		PatientID:          patientID,
		CleanText:          cleanText,
		PatientIdentity: PatientIdentity{
			Name:  record.Name,
			Phone: record.Phone,
		},
		ExtractedData: ExtractedData{
			Vitals: record.Vitals,
			Phone:  record.Phone,
		},
		NERExtracted: ner.Groups{
			ner.GroupSymptoms:  record.Symptoms,
			ner.GroupMedicines: record.Medicines,
			ner.GroupTests:     record.Tests,
		},
		Diseases: result,
	}
}

func buildVisit(rec *Record, patient *Patient) Visit {
	visit := Visit{
		PrescriptionSerial: rec.PrescriptionSerial,
		CreatedAt:          rec.CreatedAt,
		Patient: VisitPatient{
			PatientID: rec.PatientID,
			Age:       rec.Vitals.Age,
			Gender:    string(rec.Vitals.Gender),
		},
		Vitals: VisitVitals{
			HeightCM: rec.Vitals.HeightCM,
			WeightKG: rec.Vitals.WeightKG,
			BMI:      rec.Vitals.BMI,
			BP:       rec.Vitals.BloodPressure,
		},
		Clinical: VisitClinical{
			Symptoms:  rec.Symptoms,
			Medicines: rec.Medicines,
			Tests:     rec.Tests,
		},
	}

	if patient != nil {
		visit.Patient.Name = patient.Name
		visit.Patient.Phone = patient.Phone
	}

	detected, maxRisk, _ := summarize(rec.Predictions)
	visit.Summary = VisitSummary{
		DiseasesDetected: detected,
		HasHighRisk:      maxRisk >= HighRiskThreshold,
		MaxRisk:          maxRisk,
	}

	visit.Predictions = make([]VisitPrediction, 0, len(rec.Predictions))
	for _, p := range rec.Predictions {
		label, _ := p.Disease.Label(p.Prediction)
		visit.Predictions = append(visit.Predictions, VisitPrediction{
			Disease:    p.Disease,
			Label:      label,
			Result:     int(p.Prediction),
			Confidence: p.Confidence,
			Risk:       p.FutureRisk,
			Features:   p.FeaturesUsed,
		})
	}

	return visit
}
