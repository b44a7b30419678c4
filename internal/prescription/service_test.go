package prescription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/auth"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/document"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ner"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ocr"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/pagination"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/screening"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/testutil"
)

const scannedText = "Prescription Serial: 555001 Patient Name: Karim Uddin Contact: 01712345678 " +
	"Age: 34 Gender: Male Height: 170 Weight: 70"

type mockRecognizer struct {
	ExtractFunc func(ctx context.Context, image []byte) (*ocr.Result, error)
	calls       int
}

func (m *mockRecognizer) Extract(ctx context.Context, image []byte) (*ocr.Result, error) {
	m.calls++
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, image)
	}
	return &ocr.Result{RawText: scannedText, CleanText: scannedText}, nil
}

type mockTagger struct {
	TagFunc func(ctx context.Context, cleanText string) (ner.Groups, error)
	calls   int
}

func (m *mockTagger) Tag(ctx context.Context, cleanText string) (ner.Groups, error) {
	m.calls++
	if m.TagFunc != nil {
		return m.TagFunc(ctx, cleanText)
	}
	return ner.Groups{
		ner.GroupSymptoms:  "fever",
		ner.GroupMedicines: "paracetamol",
		ner.GroupTests:     "",
	}, nil
}

type mockScorer struct {
	ScoreFunc func(ctx context.Context, disease screening.Disease, features map[string]float64) (*screening.Score, error)
}

func (m *mockScorer) Score(ctx context.Context, disease screening.Disease, features map[string]float64) (*screening.Score, error) {
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, disease, features)
	}
	return &screening.Score{Prediction: 1, Confidence: 0.9}, nil
}

type mockRepository struct {
	FindPatientByIDFunc      func(ctx context.Context, patientID string) (*Patient, error)
	FindPatientByContactFunc func(ctx context.Context, phone, name string) (*Patient, error)
	CreatePatientFunc        func(ctx context.Context, p *Patient) (*Patient, error)
	UpdatePatientContactFunc func(ctx context.Context, patientID, name, phone string) error
	CommitRecordFunc         func(ctx context.Context, rec *Record) error
	GetRecordFunc            func(ctx context.Context, serial string) (*Record, error)
	ListRecordsFunc          func(ctx context.Context, filter HistoryFilter, limit, offset int) ([]Record, int, error)
	GetPatientsByIDsFunc     func(ctx context.Context, patientIDs []string) (map[string]*Patient, error)

	commitCalls int
	createCalls int
}

func (m *mockRepository) FindPatientByID(ctx context.Context, patientID string) (*Patient, error) {
	if m.FindPatientByIDFunc != nil {
		return m.FindPatientByIDFunc(ctx, patientID)
	}
	return nil, ErrPatientNotFound
}

func (m *mockRepository) FindPatientByContact(ctx context.Context, phone, name string) (*Patient, error) {
	if m.FindPatientByContactFunc != nil {
		return m.FindPatientByContactFunc(ctx, phone, name)
	}
	return nil, ErrPatientNotFound
}

func (m *mockRepository) CreatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	m.createCalls++
	if m.CreatePatientFunc != nil {
		return m.CreatePatientFunc(ctx, p)
	}
	created := *p
	created.ID = "row-1"
	created.CreatedAt = time.Now().UTC()
	return &created, nil
}

func (m *mockRepository) UpdatePatientContact(ctx context.Context, patientID, name, phone string) error {
	if m.UpdatePatientContactFunc != nil {
		return m.UpdatePatientContactFunc(ctx, patientID, name, phone)
	}
	return nil
}

func (m *mockRepository) CommitRecord(ctx context.Context, rec *Record) error {
	m.commitCalls++
	if m.CommitRecordFunc != nil {
		return m.CommitRecordFunc(ctx, rec)
	}
	rec.CreatedAt = time.Now().UTC()
	return nil
}

func (m *mockRepository) GetRecord(ctx context.Context, serial string) (*Record, error) {
	if m.GetRecordFunc != nil {
		return m.GetRecordFunc(ctx, serial)
	}
	return nil, ErrRecordNotFound
}

func (m *mockRepository) ListRecords(ctx context.Context, filter HistoryFilter, limit, offset int) ([]Record, int, error) {
	if m.ListRecordsFunc != nil {
		return m.ListRecordsFunc(ctx, filter, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockRepository) GetPatientsByIDs(ctx context.Context, patientIDs []string) (map[string]*Patient, error) {
	if m.GetPatientsByIDsFunc != nil {
		return m.GetPatientsByIDsFunc(ctx, patientIDs)
	}
	return map[string]*Patient{}, nil
}

func testImage(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestService(repo *mockRepository, publisher messaging.PublisherInterface, recognizer ocr.Recognizer, tagger ner.Tagger, scorer screening.Scorer) *Service {
	scorers := make(map[screening.Disease]screening.Scorer)
	for _, d := range screening.AllDiseases() {
		scorers[d] = scorer
	}
	return NewService(
		document.NewNormalizer(),
		recognizer,
		tagger,
		extract.NewExtractor(),
		screening.NewEngine(scorers),
		NewResolver(repo, publisher),
		repo,
		publisher,
		nil,
	)
}

func TestAnalyze_CommitsAndPublishes(t *testing.T) {
	repo := &mockRepository{}
	publisher := testutil.NewMockPublisher()
	service := newTestService(repo, publisher, &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	response, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:        testImage(t),
		ContentType: "image/png",
		Persist:     true,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if response.PrescriptionSerial != "555001" {
		t.Errorf("Expected serial 555001, got %q", response.PrescriptionSerial)
	}
	if response.PatientID == "" {
		t.Error("Expected a resolved patient id")
	}
	if response.PatientIdentity.Name != "Karim Uddin" {
		t.Errorf("Expected extracted name, got %q", response.PatientIdentity.Name)
	}
	if len(response.Diseases) != 4 {
		t.Errorf("Expected all 4 disease slots, got %d", len(response.Diseases))
	}
	if response.NERExtracted[ner.GroupSymptoms] != "fever" {
		t.Errorf("Expected tagged symptoms in envelope, got %q", response.NERExtracted[ner.GroupSymptoms])
	}

	if repo.commitCalls != 1 {
		t.Errorf("Expected exactly one commit, got %d", repo.commitCalls)
	}
	if repo.createCalls != 1 {
		t.Errorf("Expected a new patient to be created, got %d creates", repo.createCalls)
	}

	publisher.AssertEventPublished(t, messaging.EventPrescriptionAnalyzed)
	publisher.AssertEventPublished(t, messaging.EventPatientRegistered)
}

func TestAnalyze_InvalidDocumentShortCircuits(t *testing.T) {
	repo := &mockRepository{}
	recognizer := &mockRecognizer{}
	tagger := &mockTagger{}
	service := newTestService(repo, testutil.NewMockPublisher(), recognizer, tagger, &mockScorer{})

	_, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:        []byte("not an image"),
		ContentType: "image/png",
		Persist:     true,
	})
	if !errors.Is(err, document.ErrInvalidDocument) {
		t.Fatalf("Expected ErrInvalidDocument, got %v", err)
	}

	if recognizer.calls != 0 {
		t.Errorf("Expected no OCR call for an invalid document, got %d", recognizer.calls)
	}
	if tagger.calls != 0 {
		t.Errorf("Expected no tagger call for an invalid document, got %d", tagger.calls)
	}
	if repo.commitCalls != 0 {
		t.Errorf("Expected no commit for an invalid document, got %d", repo.commitCalls)
	}
}

func TestAnalyze_DuplicateSerial(t *testing.T) {
	repo := &mockRepository{
		CommitRecordFunc: func(ctx context.Context, rec *Record) error {
			return ErrDuplicatePrescription
		},
	}
	publisher := testutil.NewMockPublisher()
	service := newTestService(repo, publisher, &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	_, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:        testImage(t),
		ContentType: "image/png",
		Persist:     true,
	})
	if !errors.Is(err, ErrDuplicatePrescription) {
		t.Fatalf("Expected ErrDuplicatePrescription, got %v", err)
	}

	publisher.AssertEventNotPublished(t, messaging.EventPrescriptionAnalyzed)
}

func TestAnalyze_TaggerFailureTolerated(t *testing.T) {
	repo := &mockRepository{}
	tagger := &mockTagger{
		TagFunc: func(ctx context.Context, cleanText string) (ner.Groups, error) {
			return nil, fmt.Errorf("tagging: %w", ner.ErrUnavailable)
		},
	}
	service := newTestService(repo, testutil.NewMockPublisher(), &mockRecognizer{}, tagger, &mockScorer{})

	response, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:        testImage(t),
		ContentType: "image/png",
		Persist:     true,
	})
	if err != nil {
		t.Fatalf("Expected analysis to survive tagger failure, got %v", err)
	}

	if response.NERExtracted[ner.GroupSymptoms] != "" {
		t.Errorf("Expected empty symptoms after tagger failure, got %q", response.NERExtracted[ner.GroupSymptoms])
	}
	if repo.commitCalls != 1 {
		t.Errorf("Expected the record to commit anyway, got %d commits", repo.commitCalls)
	}
}

func TestAnalyze_OCRFailure(t *testing.T) {
	repo := &mockRepository{}
	recognizer := &mockRecognizer{
		ExtractFunc: func(ctx context.Context, image []byte) (*ocr.Result, error) {
			return nil, fmt.Errorf("recognize: %w", ocr.ErrUnavailable)
		},
	}
	service := newTestService(repo, testutil.NewMockPublisher(), recognizer, &mockTagger{}, &mockScorer{})

	_, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:        testImage(t),
		ContentType: "image/png",
		Persist:     true,
	})
	if !errors.Is(err, ocr.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
	if repo.commitCalls != 0 {
		t.Errorf("Expected no commit on OCR failure, got %d", repo.commitCalls)
	}
}

func TestAnalyze_DemoDoesNotPersist(t *testing.T) {
	repo := &mockRepository{}
	publisher := testutil.NewMockPublisher()
	service := newTestService(repo, publisher, &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	response, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:        testImage(t),
		ContentType: "image/png",
		Persist:     false,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if repo.commitCalls != 0 || repo.createCalls != 0 {
		t.Errorf("Expected no writes in demo mode, got %d commits and %d creates", repo.commitCalls, repo.createCalls)
	}
	if publisher.GetEventCount() != 0 {
		t.Errorf("Expected no events in demo mode, got %d", publisher.GetEventCount())
	}
	if len(response.Diseases) != 4 {
		t.Errorf("Expected full screening in demo mode, got %d diseases", len(response.Diseases))
	}
}

func TestAnalyze_HighRiskEvent(t *testing.T) {
	risk := 0.82
	scorer := &mockScorer{
		ScoreFunc: func(ctx context.Context, disease screening.Disease, features map[string]float64) (*screening.Score, error) {
			return &screening.Score{Prediction: 1, Confidence: 0.9, FutureRisk: &risk}, nil
		},
	}
	repo := &mockRepository{}
	publisher := testutil.NewMockPublisher()
	service := newTestService(repo, publisher, &mockRecognizer{}, &mockTagger{}, scorer)

	_, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:        testImage(t),
		ContentType: "image/png",
		Persist:     true,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	publisher.AssertEventPublished(t, messaging.EventPrescriptionHighRisk)
}

func TestAnalyze_CallerPatientPinned(t *testing.T) {
	var resolvedID string
	repo := &mockRepository{
		FindPatientByIDFunc: func(ctx context.Context, patientID string) (*Patient, error) {
			resolvedID = patientID
			return &Patient{ID: "row-9", PatientID: patientID, Name: "Karim Uddin"}, nil
		},
	}
	service := newTestService(repo, testutil.NewMockPublisher(), &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	response, err := service.Analyze(context.Background(), AnalyzeInput{
		Data:            testImage(t),
		ContentType:     "image/png",
		CallerPatientID: "PID-CALLER",
		Persist:         true,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if resolvedID != "PID-CALLER" {
		t.Errorf("Expected resolution pinned to caller id, got %q", resolvedID)
	}
	if response.PatientID != "PID-CALLER" {
		t.Errorf("Expected response under caller id, got %q", response.PatientID)
	}
	if repo.createCalls != 0 {
		t.Errorf("Expected no patient creation for a known caller, got %d", repo.createCalls)
	}
}

func historyRecords(n int, patientID string) []Record {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		conf := 0.9
		risk := 0.3
		records = append(records, Record{
			PrescriptionSerial: fmt.Sprintf("sn-%03d", i),
			PatientID:          patientID,
			Predictions: []screening.Prediction{
				{Disease: screening.DiseaseObesity, Prediction: 1, Confidence: &conf, FutureRisk: &risk},
			},
			CreatedAt: time.Now().UTC(),
		})
	}
	return records
}

func TestHistory_PaginationEnvelope(t *testing.T) {
	var gotLimit, gotOffset int
	repo := &mockRepository{
		ListRecordsFunc: func(ctx context.Context, filter HistoryFilter, limit, offset int) ([]Record, int, error) {
			gotLimit, gotOffset = limit, offset
			return historyRecords(10, "PID-1"), 25, nil
		},
		GetPatientsByIDsFunc: func(ctx context.Context, patientIDs []string) (map[string]*Patient, error) {
			return map[string]*Patient{"PID-1": {PatientID: "PID-1", Name: "Karim", Phone: "01712345678"}}, nil
		},
	}
	service := newTestService(repo, testutil.NewMockPublisher(), &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	principal := &auth.Principal{UserID: "u1", Roles: []string{"RECEPTIONIST"}}
	response, err := service.History(context.Background(), principal, HistoryFilter{}, pagination.Params{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if gotLimit != 10 || gotOffset != 10 {
		t.Errorf("Expected limit 10 offset 10, got %d/%d", gotLimit, gotOffset)
	}
	if len(response.Data) != 10 {
		t.Errorf("Expected 10 visits, got %d", len(response.Data))
	}
	if response.TotalPages != 3 || response.TotalRecords != 25 {
		t.Errorf("Expected 3 pages / 25 records, got %d/%d", response.TotalPages, response.TotalRecords)
	}
	if !response.HasNext || !response.HasPrev {
		t.Errorf("Expected has_next and has_prev on page 2 of 3")
	}
	if response.Data[0].Patient.Name != "Karim" {
		t.Errorf("Expected patient identity joined onto visits, got %q", response.Data[0].Patient.Name)
	}
	if response.Data[0].Predictions[0].Label != "obese" {
		t.Errorf("Expected rendered label, got %q", response.Data[0].Predictions[0].Label)
	}
}

func TestHistory_PatientRolePinned(t *testing.T) {
	var gotFilter HistoryFilter
	repo := &mockRepository{
		ListRecordsFunc: func(ctx context.Context, filter HistoryFilter, limit, offset int) ([]Record, int, error) {
			gotFilter = filter
			return nil, 0, nil
		},
	}
	service := newTestService(repo, testutil.NewMockPublisher(), &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	principal := &auth.Principal{UserID: "u2", PatientID: "PID-SELF", Roles: []string{"patient"}}
	filter := HistoryFilter{PatientID: "PID-SOMEONE-ELSE", Phone: "01799999999"}

	if _, err := service.History(context.Background(), principal, filter, pagination.Params{}); err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if gotFilter.PatientID != "PID-SELF" {
		t.Errorf("Expected filter pinned to caller's patient id, got %q", gotFilter.PatientID)
	}
	if gotFilter.Phone != "" {
		t.Errorf("Expected phone filter cleared for patient callers, got %q", gotFilter.Phone)
	}
}

func TestHistory_PatientWithoutIDFailsClosed(t *testing.T) {
	listCalls := 0
	repo := &mockRepository{
		ListRecordsFunc: func(ctx context.Context, filter HistoryFilter, limit, offset int) ([]Record, int, error) {
			listCalls++
			return historyRecords(3, "PID-STRANGER"), 3, nil
		},
	}
	service := newTestService(repo, testutil.NewMockPublisher(), &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	// A patient token without a patient_id claim pins the filter to the
	// empty string, which the repository treats as unfiltered. That caller
	// must get nothing, not everyone's visits.
	principal := &auth.Principal{UserID: "u5", Roles: []string{"PATIENT"}}
	_, err := service.History(context.Background(), principal, HistoryFilter{}, pagination.Params{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Expected ErrForbidden, got %v", err)
	}
	if listCalls != 0 {
		t.Errorf("Expected no repository query for an unidentified patient, got %d", listCalls)
	}
}

func TestGetVisit_ForbiddenForOtherPatient(t *testing.T) {
	repo := &mockRepository{
		GetRecordFunc: func(ctx context.Context, serial string) (*Record, error) {
			return &Record{PrescriptionSerial: serial, PatientID: "PID-OWNER"}, nil
		},
	}
	service := newTestService(repo, testutil.NewMockPublisher(), &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	principal := &auth.Principal{UserID: "u3", PatientID: "PID-OTHER", Roles: []string{"PATIENT"}}
	_, err := service.GetVisit(context.Background(), principal, "sn-1")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}

func TestGetVisit_NotFound(t *testing.T) {
	repo := &mockRepository{}
	service := newTestService(repo, testutil.NewMockPublisher(), &mockRecognizer{}, &mockTagger{}, &mockScorer{})

	principal := &auth.Principal{UserID: "u4", Roles: []string{"DOCTOR"}}
	_, err := service.GetVisit(context.Background(), principal, "missing")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}
