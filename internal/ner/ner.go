package ner

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
)

// ErrUnavailable indicates the entity-tagging capability failed.
var ErrUnavailable = errors.New("entity tagger unavailable")

// Entity group names. Every group is always present in tagger output,
// as an empty string when nothing was recognized.
const (
	GroupSymptoms  = "symptoms"
	GroupMedicines = "medicines"
	GroupTests     = "tests"
)

// Groups maps an entity-group name to a comma-joined string of recognized spans.
type Groups map[string]string

// Tagger labels clinical entity spans in cleaned prescription text.
// It is additive context for extraction and review; it never predicts.
type Tagger interface {
	Tag(ctx context.Context, cleanText string) (Groups, error)
}

// Span is one recognized entity span from the tagging capability.
type Span struct {
	Label string  `json:"entity_group"`
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// labelGroups folds the tagger's fine-grained labels into the three
// clinical groups the record stores.
var labelGroups = map[string]string{
	"PROBLEM":   GroupSymptoms,
	"SIGN":      GroupSymptoms,
	"DISEASE":   GroupSymptoms,
	"DRUG":      GroupMedicines,
	"TREATMENT": GroupMedicines,
	"TEST":      GroupTests,
	"LAB":       GroupTests,
}

// minScore drops low-confidence spans the tagger is unsure about.
const minScore = 0.6

var (
	camelBoundaryRe = regexp.MustCompile(`([a-z])([A-Z])`)
	nonLetterRe     = regexp.MustCompile(`[^a-zA-Z\s]`)
	spacesRe        = regexp.MustCompile(`\s+`)
)

// EmptyGroups returns a Groups value with all groups present and empty.
func EmptyGroups() Groups {
	return Groups{
		GroupSymptoms:  "",
		GroupMedicines: "",
		GroupTests:     "",
	}
}

// GroupSpans post-processes raw spans into deduplicated, sorted groups.
// OCR merge artifacts (camelCase runs, punctuation) are split and stripped
// before tokens shorter than three characters are discarded.
func GroupSpans(spans []Span) Groups {
	sets := map[string]map[string]struct{}{
		GroupSymptoms:  {},
		GroupMedicines: {},
		GroupTests:     {},
	}

	for _, span := range spans {
		if span.Score < minScore {
			continue
		}
		group, ok := labelGroups[strings.ToUpper(span.Label)]
		if !ok {
			continue
		}

		raw := camelBoundaryRe.ReplaceAllString(span.Word, "$1 $2")
		raw = nonLetterRe.ReplaceAllString(raw, " ")
		raw = strings.ToLower(strings.TrimSpace(spacesRe.ReplaceAllString(raw, " ")))

		for _, token := range strings.Fields(raw) {
			if len(token) < 3 {
				continue
			}
			sets[group][token] = struct{}{}
		}
	}

	groups := EmptyGroups()
	for name, set := range sets {
		tokens := make([]string, 0, len(set))
		for token := range set {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		groups[name] = strings.Join(tokens, ", ")
	}
	return groups
}
