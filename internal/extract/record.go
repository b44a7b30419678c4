package extract

// Gender is the normalized gender enum stored on a clinical record.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// BloodPressure is a systolic/diastolic pair in mmHg.
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// Vitals holds every numeric reading the extractor recognizes. Absent or
// unparseable values stay nil so "no data" is distinguishable from zero.
type Vitals struct {
	Age           *int           `json:"age"`
	Gender        Gender         `json:"gender"`
	HeightCM      *float64       `json:"height_cm"`
	WeightKG      *float64       `json:"weight_kg"`
	BMI           *float64       `json:"bmi"`
	BloodPressure *BloodPressure `json:"blood_pressure"`

	Glucose       *float64 `json:"glucose"`
	Cholesterol   *float64 `json:"cholesterol"`
	Smoke         *float64 `json:"smoke"`
	Alcohol       *float64 `json:"alcohol"`
	Active        *float64 `json:"active"`
	PulsePressure *float64 `json:"pulse_pressure"`
	MAP           *float64 `json:"map"`

	Pregnancies   *float64 `json:"pregnancies"`
	SkinThickness *float64 `json:"skin_thickness"`
	Insulin       *float64 `json:"insulin"`
	DPF           *float64 `json:"dpf"`

	TotalBilirubin      *float64 `json:"total_bilirubin"`
	DirectBilirubin     *float64 `json:"direct_bilirubin"`
	AlkalinePhosphatase *float64 `json:"alkaline_phosphatase"`
	SGPT                *float64 `json:"sgpt"`
	SGOT                *float64 `json:"sgot"`
	TotalProteins       *float64 `json:"total_proteins"`
	Albumin             *float64 `json:"albumin"`
	AGRatio             *float64 `json:"ag_ratio"`
}

// Record is the structured output of feature extraction. It is produced
// once per document and never mutated afterwards.
type Record struct {
	Name               string `json:"name"`
	Phone              string `json:"phone"`
	PatientID          string `json:"patient_id"`
	PrescriptionSerial string `json:"prescription_serial"`

	Vitals Vitals `json:"vitals"`

	Symptoms  string `json:"symptoms"`
	Medicines string `json:"medicines"`
	Tests     string `json:"tests"`
}

// Canonical feature names shared with the screening engine.
const (
	FeatureAge                 = "age"
	FeatureGender              = "gender"
	FeatureHeightCM            = "height_cm"
	FeatureWeightKG            = "weight_kg"
	FeatureBMI                 = "bmi"
	FeatureSystolic            = "ap_hi"
	FeatureDiastolic           = "ap_lo"
	FeatureGlucose             = "glucose"
	FeatureCholesterol         = "cholesterol"
	FeatureSmoke               = "smoke"
	FeatureAlcohol             = "alco"
	FeatureActive              = "active"
	FeaturePulsePressure       = "pulse_pressure"
	FeatureMAP                 = "map"
	FeaturePregnancies         = "pregnancies"
	FeatureSkinThickness       = "skin_thickness"
	FeatureInsulin             = "insulin"
	FeatureDPF                 = "dpf"
	FeatureTotalBilirubin      = "total_bilirubin"
	FeatureDirectBilirubin     = "direct_bilirubin"
	FeatureAlkalinePhosphatase = "alkaline_phosphatase"
	FeatureSGPT                = "sgpt"
	FeatureSGOT                = "sgot"
	FeatureTotalProteins       = "total_proteins"
	FeatureAlbumin             = "albumin"
	FeatureAGRatio             = "ag_ratio"
)

// Features flattens the vitals into the numeric vector the disease models
// consume. Only present values appear; gender is encoded 0 (male) / 1
// (female) and omitted for other/unknown, matching the training encoding.
func (r *Record) Features() map[string]float64 {
	features := map[string]float64{}

	put := func(name string, v *float64) {
		if v != nil {
			features[name] = *v
		}
	}

	if r.Vitals.Age != nil {
		features[FeatureAge] = float64(*r.Vitals.Age)
	}
	switch r.Vitals.Gender {
	case GenderMale:
		features[FeatureGender] = 0
	case GenderFemale:
		features[FeatureGender] = 1
	}
	put(FeatureHeightCM, r.Vitals.HeightCM)
	put(FeatureWeightKG, r.Vitals.WeightKG)
	put(FeatureBMI, r.Vitals.BMI)
	if r.Vitals.BloodPressure != nil {
		features[FeatureSystolic] = float64(r.Vitals.BloodPressure.Systolic)
		features[FeatureDiastolic] = float64(r.Vitals.BloodPressure.Diastolic)
	}
	put(FeatureGlucose, r.Vitals.Glucose)
	put(FeatureCholesterol, r.Vitals.Cholesterol)
	put(FeatureSmoke, r.Vitals.Smoke)
	put(FeatureAlcohol, r.Vitals.Alcohol)
	put(FeatureActive, r.Vitals.Active)
	put(FeaturePulsePressure, r.Vitals.PulsePressure)
	put(FeatureMAP, r.Vitals.MAP)
	put(FeaturePregnancies, r.Vitals.Pregnancies)
	put(FeatureSkinThickness, r.Vitals.SkinThickness)
	put(FeatureInsulin, r.Vitals.Insulin)
	put(FeatureDPF, r.Vitals.DPF)
	put(FeatureTotalBilirubin, r.Vitals.TotalBilirubin)
	put(FeatureDirectBilirubin, r.Vitals.DirectBilirubin)
	put(FeatureAlkalinePhosphatase, r.Vitals.AlkalinePhosphatase)
	put(FeatureSGPT, r.Vitals.SGPT)
	put(FeatureSGOT, r.Vitals.SGOT)
	put(FeatureTotalProteins, r.Vitals.TotalProteins)
	put(FeatureAlbumin, r.Vitals.Albumin)
	put(FeatureAGRatio, r.Vitals.AGRatio)

	return features
}
