package screening

import "github.com/WailSalutem-Health-Care/prescription-service/internal/extract"

// riskFloors are minimum future-risk probabilities applied when a disease
// screens positive, so a positive finding never reports a negligible risk.
var riskFloors = map[Disease]float64{
	DiseaseDiabetes:     0.40,
	DiseaseHypertension: 0.35,
	DiseaseLiver:        0.30,
	DiseaseObesity:      0.25,
}

// fallbackFutureRisk estimates a future-deterioration probability from
// banded vitals when a scoring provider returns no risk of its own.
// Bands follow standard clinical cut points (age, BMI, fasting glucose,
// diastolic pressure).
func fallbackFutureRisk(features map[string]float64, disease Disease, prediction Category) float64 {
	risk := 0.0

	v := func(key string) float64 {
		return features[key]
	}

	switch age := v(extract.FeatureAge); {
	case age >= 60:
		risk += 0.25
	case age >= 45:
		risk += 0.18
	case age >= 30:
		risk += 0.10
	}

	switch bmi := v(extract.FeatureBMI); {
	case bmi >= 35:
		risk += 0.25
	case bmi >= 30:
		risk += 0.18
	case bmi >= 25:
		risk += 0.10
	}

	switch glucose := v(extract.FeatureGlucose); {
	case glucose >= 140:
		risk += 0.25
	case glucose >= 126:
		risk += 0.18
	case glucose >= 100:
		risk += 0.10
	}

	switch dbp := v(extract.FeatureDiastolic); {
	case dbp >= 100:
		risk += 0.25
	case dbp >= 90:
		risk += 0.18
	case dbp >= 85:
		risk += 0.10
	}

	if prediction == 1 {
		if floor, ok := riskFloors[disease]; ok && risk < floor {
			risk = floor
		}
	}

	if risk > 1 {
		risk = 1
	}
	return risk
}
