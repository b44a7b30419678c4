package extract

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/WailSalutem-Health-Care/prescription-service/internal/ner"
)

// ErrMissingRequiredField indicates extraction succeeded but a mandatory
// identity field (prescription serial, or both contact fields) is absent.
// A document without a serial cannot be deduplicated and must be rejected
// before any persistence attempt.
var ErrMissingRequiredField = errors.New("missing required field")

var (
	serialRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:prescription\s*serial|rx\s*no|prescription\s*no)\s*[:#\-]?\s*(\d{3,})`),
		regexp.MustCompile(`(?i)serial\s*no\s*[:#\-]?\s*(\d{3,})`),
	}

	patientIDRe = regexp.MustCompile(`(?i)(?:Patient\s*ID|Pt\s*ID|PID)\s*[:\-]?\s*([A-Za-z0-9\-/]+)`)
	nameRe      = regexp.MustCompile(`(?i)(?:Patient\s*Name|Pt\s*Name|Name)\s*[:\-]?\s*([A-Za-z.][A-Za-z.\s]{1,58}?)\s*(?:Contact|Phone|Mobile|Gender|Age|Wt|Weight|Ht|Height|BP|Blood|$)`)
	phoneRe     = regexp.MustCompile(`(?i)(?:Contact|Phone|Mobile|Tel)\s*[:\-]?\s*(\+?\d{10,14})`)

	ageRe    = regexp.MustCompile(`(?i)Age[:\- ]*(\d+)`)
	heightRe = regexp.MustCompile(`(?i)Height[:\- ]*(\d+\.?\d*)`)
	weightRe = regexp.MustCompile(`(?i)Weight[:\- ]*(\d+\.?\d*)`)
	bmiRe    = regexp.MustCompile(`(?i)BMI[:\- ]*(\d+\.?\d*)`)
	genderRe = regexp.MustCompile(`(?i)\b(Male|Female)\b`)

	bpRe = regexp.MustCompile(`(?i)BP[:\- ]*(\d{2,3})\s*/\s*(\d{2,3})`)
	apRe = regexp.MustCompile(`(?i)AP High[:\- ]*(\d{2,3}).*?AP Low[:\- ]*(\d{2,3})`)

	glucoseRe       = regexp.MustCompile(`(?i)Glucose[:\- ]*(\d+\.?\d*)`)
	cholesterolRe   = regexp.MustCompile(`(?i)Cholesterol[:\- ]*(\d+\.?\d*)`)
	smokeRe         = regexp.MustCompile(`(?i)(?:Smoking|Smoke)[:\- ]*(\d+)`)
	alcoholRe       = regexp.MustCompile(`(?i)Alcohol[:\- ]*(\d+)`)
	activeRe        = regexp.MustCompile(`(?i)(?:Physical Activity|Active)[:\- ]*(\d+)`)
	pulsePressureRe = regexp.MustCompile(`(?i)Pulse Pressure[:\- ]*(\d+\.?\d*)`)
	mapRe           = regexp.MustCompile(`(?i)MAP[:\- ]*(\d+\.?\d*)`)

	pregnanciesRe   = regexp.MustCompile(`(?i)Pregnancies[:\- ]*(\d+)`)
	skinThicknessRe = regexp.MustCompile(`(?i)(?:Skin Thickness|SkinFold)[:\- ]*(\d+\.?\d*)`)
	insulinRe       = regexp.MustCompile(`(?i)Insulin[:\- ]*(\d+\.?\d*)`)
	dpfRe           = regexp.MustCompile(`(?i)(?:DPF|Diabetes Pedigree Function)[:\- ]*(\d+\.?\d*)`)

	totalBilirubinRe  = regexp.MustCompile(`(?i)Total Bilirubin[:\- ]*(\d+\.?\d*)`)
	directBilirubinRe = regexp.MustCompile(`(?i)Direct Bilirubin[:\- ]*(\d+\.?\d*)`)
	alkphosRe         = regexp.MustCompile(`(?i)(?:ALP|Alkaline Phosphatase)[:\- ]*(\d+\.?\d*)`)
	sgptRe            = regexp.MustCompile(`(?i)SGPT(?:\s*\(ALT\))?[:\- ]*(\d+\.?\d*)`)
	sgotRe            = regexp.MustCompile(`(?i)SGOT(?:\s*\(AST\))?[:\- ]*(\d+\.?\d*)`)
	totalProteinsRe   = regexp.MustCompile(`(?i)(?:Total Protein|Total Proteins)[:\- ]*(\d+\.?\d*)`)
	albuminRe         = regexp.MustCompile(`(?i)(?:Albumin|ALB)[:\- ]*(\d+\.?\d*)`)
	agRatioRe         = regexp.MustCompile(`(?i)(?:A/G Ratio|Albumin/Globulin Ratio)[:\- ]*(\d+\.?\d*)`)
)

// Extractor derives a structured clinical record from cleaned OCR text
// and tagged entity groups.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses identity fields, vitals and clinical text. It fails with
// ErrMissingRequiredField when the prescription serial is absent or when
// neither a phone number nor a patient id could be recovered.
func (e *Extractor) Extract(cleanText string, entities ner.Groups) (*Record, error) {
	record := &Record{
		PrescriptionSerial: extractSerial(cleanText),
		PatientID:          matchString(patientIDRe, cleanText),
		Name:               strings.TrimSpace(matchString(nameRe, cleanText)),
		Phone:              matchString(phoneRe, cleanText),
		Symptoms:           entities[ner.GroupSymptoms],
		Medicines:          entities[ner.GroupMedicines],
		Tests:              entities[ner.GroupTests],
	}

	if record.PrescriptionSerial == "" {
		return nil, fmt.Errorf("%w: prescription serial not found in document", ErrMissingRequiredField)
	}
	if record.Phone == "" && record.PatientID == "" {
		return nil, fmt.Errorf("%w: no phone number or patient id found in document", ErrMissingRequiredField)
	}

	record.Vitals = extractVitals(cleanText)
	return record, nil
}

func extractVitals(text string) Vitals {
	v := Vitals{
		Age:      matchInt(ageRe, text),
		Gender:   extractGender(text),
		HeightCM: matchFloat(heightRe, text),
		WeightKG: matchFloat(weightRe, text),
		BMI:      matchFloat(bmiRe, text),

		Glucose:       matchFloat(glucoseRe, text),
		Cholesterol:   matchFloat(cholesterolRe, text),
		Smoke:         matchFloat(smokeRe, text),
		Alcohol:       matchFloat(alcoholRe, text),
		Active:        matchFloat(activeRe, text),
		PulsePressure: matchFloat(pulsePressureRe, text),
		MAP:           matchFloat(mapRe, text),

		Pregnancies:   matchFloat(pregnanciesRe, text),
		SkinThickness: matchFloat(skinThicknessRe, text),
		Insulin:       matchFloat(insulinRe, text),
		DPF:           matchFloat(dpfRe, text),

		TotalBilirubin:      matchFloat(totalBilirubinRe, text),
		DirectBilirubin:     matchFloat(directBilirubinRe, text),
		AlkalinePhosphatase: matchFloat(alkphosRe, text),
		SGPT:                matchFloat(sgptRe, text),
		SGOT:                matchFloat(sgotRe, text),
		TotalProteins:       matchFloat(totalProteinsRe, text),
		Albumin:             matchFloat(albuminRe, text),
		AGRatio:             matchFloat(agRatioRe, text),
	}

	// Blood pressure accepts either a BP pair or AP High / AP Low fields.
	if m := bpRe.FindStringSubmatch(text); m != nil {
		hi, _ := strconv.Atoi(m[1])
		lo, _ := strconv.Atoi(m[2])
		v.BloodPressure = &BloodPressure{Systolic: hi, Diastolic: lo}
	} else if m := apRe.FindStringSubmatch(text); m != nil {
		hi, _ := strconv.Atoi(m[1])
		lo, _ := strconv.Atoi(m[2])
		v.BloodPressure = &BloodPressure{Systolic: hi, Diastolic: lo}
	}

	// Derived hemodynamics when not read directly.
	if v.BloodPressure != nil {
		if v.PulsePressure == nil {
			pp := float64(v.BloodPressure.Systolic - v.BloodPressure.Diastolic)
			v.PulsePressure = &pp
		}
		if v.MAP == nil {
			m := round2(float64(v.BloodPressure.Diastolic) + *v.PulsePressure/3)
			v.MAP = &m
		}
	}

	// BMI is computed only when not stated on the prescription itself.
	if v.BMI == nil && v.HeightCM != nil && v.WeightKG != nil && *v.HeightCM > 0 {
		bmi := round1(*v.WeightKG / math.Pow(*v.HeightCM/100, 2))
		v.BMI = &bmi
	}

	return v
}

func extractGender(text string) Gender {
	if m := genderRe.FindStringSubmatch(text); m != nil {
		return NormalizeGender(m[1])
	}
	return GenderUnknown
}

// NormalizeGender accepts the raw encodings seen across source documents:
// numeric codes 0/1 and free text matched case-insensitively on the first
// letter. Anything else is "other"; the empty string is "unknown".
func NormalizeGender(raw string) Gender {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return GenderUnknown
	case "0":
		return GenderMale
	case "1":
		return GenderFemale
	}
	switch {
	case strings.HasPrefix(strings.ToLower(raw), "m"):
		return GenderMale
	case strings.HasPrefix(strings.ToLower(raw), "f"):
		return GenderFemale
	default:
		return GenderOther
	}
}

func extractSerial(text string) string {
	for _, re := range serialRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func matchString(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func matchFloat(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &f
}

func matchInt(re *regexp.Regexp, text string) *int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	i, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &i
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
