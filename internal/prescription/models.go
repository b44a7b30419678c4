package prescription

import (
	"time"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/extract"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/ner"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/pagination"
	"github.com/WailSalutem-Health-Care/prescription-service/internal/screening"
)

// Patient is the stable identity a prescription history hangs off.
// It is created on first intake and matched on re-encounter; it persists
// independent of any single prescription.
type Patient struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     *string    `json:"email,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Record is the persisted aggregate for one physical prescription.
// The serial is its natural key; the record is append-only and never
// mutated after commit.
type Record struct {
	PrescriptionSerial string                 `json:"prescription_serial"`
	PatientID          string                 `json:"patient_id"`
	CleanText          string                 `json:"clean_text"`
	Symptoms           string                 `json:"symptoms"`
	Medicines          string                 `json:"medicines"`
	Tests              string                 `json:"tests"`
	Vitals             extract.Vitals         `json:"vitals"`
	Predictions        []screening.Prediction `json:"predictions"`
	CreatedAt          time.Time              `json:"created_at"`
}

// AnalyzeInput carries one upload through the pipeline.
type AnalyzeInput struct {
	Data        []byte
	ContentType string

	// CallerPatientID pins patient resolution to an authenticated patient.
	// Empty for receptionist-driven intake, where resolution falls back to
	// the contact heuristic over extracted phone/name.
	CallerPatientID string

	// Persist controls whether the run commits. The public demo endpoint
	// runs the full pipeline without writing anything.
	Persist bool
}

// ExtractedData is the vitals section of the response envelope. Phone
// rides along so intake UIs can confirm the contact they matched on.
type ExtractedData struct {
	extract.Vitals
	Phone string `json:"phone"`
}

// PatientIdentity is the identity section of the response envelope.
type PatientIdentity struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// AnalyzeResponse is the envelope returned to intake callers. All four
// disease slots are always present; insufficient data is labeled, never
// omitted.
type AnalyzeResponse struct {
	PrescriptionSerial string                                     `json:"prescription_serial"`
	PatientID          string                                     `json:"patient_id"`
	PatientIdentity    PatientIdentity                            `json:"patient_identity"`
	CleanText          string                                     `json:"clean_text"`
	ExtractedData      ExtractedData                              `json:"extracted_data"`
	NERExtracted       ner.Groups                                 `json:"ner_extracted"`
	Diseases           map[screening.Disease]screening.Prediction `json:"diseases"`
}

// HistoryFilter narrows the paginated history read.
type HistoryFilter struct {
	PatientID string
	Phone     string
	From      *time.Time
	To        *time.Time
}

// VisitPrediction is one disease row in a history visit, rendered with
// its human label. Only scored diseases appear here.
type VisitPrediction struct {
	Disease    screening.Disease  `json:"disease"`
	Label      string             `json:"label"`
	Result     int                `json:"result"`
	Confidence *float64           `json:"confidence"`
	Risk       *float64           `json:"risk"`
	Features   map[string]float64 `json:"features_used"`
}

// VisitSummary aggregates a visit for timeline rendering.
type VisitSummary struct {
	DiseasesDetected int     `json:"diseases_detected"`
	HasHighRisk      bool    `json:"has_high_risk"`
	MaxRisk          float64 `json:"max_risk"`
}

// VisitVitals is the vitals snapshot shown per history visit.
type VisitVitals struct {
	HeightCM *float64               `json:"height_cm"`
	WeightKG *float64               `json:"weight_kg"`
	BMI      *float64               `json:"bmi"`
	BP       *extract.BloodPressure `json:"bp"`
}

// VisitClinical is the free-text clinical section per history visit.
type VisitClinical struct {
	Symptoms  string `json:"symptoms"`
	Medicines string `json:"medicines"`
	Tests     string `json:"tests"`
}

// VisitPatient identifies the patient on a history visit.
type VisitPatient struct {
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Age       *int   `json:"age"`
	Gender    string `json:"gender"`
}

// Visit is one committed prescription rendered for longitudinal review.
type Visit struct {
	PrescriptionSerial string            `json:"prescription_serial"`
	CreatedAt          time.Time         `json:"created_at"`
	Patient            VisitPatient      `json:"patient"`
	Vitals             VisitVitals       `json:"vitals"`
	Clinical           VisitClinical     `json:"clinical"`
	Predictions        []VisitPrediction `json:"predictions"`
	Summary            VisitSummary      `json:"summary"`
}

// HistoryResponse is the paginated history envelope.
type HistoryResponse struct {
	Data []Visit `json:"data"`
	pagination.Meta
}

// HighRiskThreshold marks a visit for review when any disease's future
// risk reaches it.
const HighRiskThreshold = 0.7
