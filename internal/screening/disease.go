package screening

import "github.com/WailSalutem-Health-Care/prescription-service/internal/extract"

// Disease identifies one of the supported screening models.
type Disease string

const (
	DiseaseObesity      Disease = "obesity"
	DiseaseDiabetes     Disease = "diabetes"
	DiseaseHypertension Disease = "hypertension"
	DiseaseLiver        Disease = "liver"
)

// AllDiseases returns the supported diseases in stable order. Every upload
// is screened for all of them; diseases with insufficient features report
// CategoryInsufficient rather than being omitted.
func AllDiseases() []Disease {
	return []Disease{DiseaseObesity, DiseaseDiabetes, DiseaseHypertension, DiseaseLiver}
}

// Category is a disease-specific prediction code. CategoryInsufficient is
// reserved across all diseases and is never a clinical outcome.
type Category int

const CategoryInsufficient Category = -1

// Valid reports whether c is in the disease's fixed category set.
// The sets are not configurable.
func (d Disease) Valid(c Category) bool {
	if c == CategoryInsufficient {
		return true
	}
	switch d {
	case DiseaseObesity:
		return c >= 0 && c <= 3
	case DiseaseDiabetes, DiseaseHypertension, DiseaseLiver:
		return c == 0 || c == 1
	default:
		return false
	}
}

// Label renders the category for human review. The second return is false
// for codes outside the disease's category set.
func (d Disease) Label(c Category) (string, bool) {
	if c == CategoryInsufficient {
		return "insufficient data", true
	}
	switch d {
	case DiseaseObesity:
		switch c {
		case 0:
			return "normal", true
		case 1:
			return "obese", true
		case 2:
			return "overweight", true
		case 3:
			return "underweight", true
		}
	case DiseaseDiabetes, DiseaseHypertension, DiseaseLiver:
		switch c {
		case 0:
			return "negative", true
		case 1:
			return "positive", true
		}
	}
	return "", false
}

// featureRequirements lists the exact feature subset each disease model
// needs. A single nil feature short-circuits that disease to
// CategoryInsufficient; a model is never scored on partial data.
var featureRequirements = map[Disease][]string{
	DiseaseObesity: {
		extract.FeatureAge,
		extract.FeatureGender,
		extract.FeatureHeightCM,
		extract.FeatureWeightKG,
		extract.FeatureBMI,
	},
	DiseaseDiabetes: {
		extract.FeaturePregnancies,
		extract.FeatureGlucose,
		extract.FeatureDiastolic,
		extract.FeatureSkinThickness,
		extract.FeatureInsulin,
		extract.FeatureBMI,
		extract.FeatureDPF,
		extract.FeatureAge,
	},
	DiseaseHypertension: {
		extract.FeatureAge,
		extract.FeatureGender,
		extract.FeatureHeightCM,
		extract.FeatureWeightKG,
		extract.FeatureSystolic,
		extract.FeatureDiastolic,
		extract.FeatureCholesterol,
		extract.FeatureGlucose,
		extract.FeatureSmoke,
		extract.FeatureAlcohol,
		extract.FeatureActive,
		extract.FeatureBMI,
		extract.FeaturePulsePressure,
		extract.FeatureMAP,
	},
	DiseaseLiver: {
		extract.FeatureAge,
		extract.FeatureGender,
		extract.FeatureTotalBilirubin,
		extract.FeatureDirectBilirubin,
		extract.FeatureAlkalinePhosphatase,
		extract.FeatureSGPT,
		extract.FeatureSGOT,
		extract.FeatureTotalProteins,
		extract.FeatureAlbumin,
		extract.FeatureAGRatio,
	},
}

// RequiredFeatures returns the feature list for a disease.
func RequiredFeatures(d Disease) []string {
	return featureRequirements[d]
}
