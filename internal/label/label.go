// Package label defines the category label vocabulary shared by the
// detectors and the reconciler, and the flattening step that turns
// nested label shapes into the scalar metadata the embedding index
// can filter on.
package label

import "sort"

// Category names produced by the rule and classifier detectors.
const (
	Curse  = "curse"
	Slang  = "slang"
	Biased = "biased"
	Filler = "filler"
)

// Categories only the narrative detector reports on.
const (
	Vague                  = "vague"
	FormalityInconsistency = "formality_inconsistency"
	DisfluencyRepetition   = "disfluency_repetition"
)

// Label is a tagged variant: binary detectors report only a flag,
// the classifier reports a confidence score plus a thresholded flag.
type Label struct {
	Scored bool
	Score  float64
	Flag   int
}

// Binary builds a flag-only label.
func Binary(flag bool) Label {
	l := Label{}
	if flag {
		l.Flag = 1
	}
	return l
}

// Scored builds a classifier label carrying both confidence and flag.
func ScoredLabel(score float64, flag bool) Label {
	l := Label{Scored: true, Score: score}
	if flag {
		l.Flag = 1
	}
	return l
}

// Set maps category name to its label for one span of text.
type Set map[string]Label

// Flatten normalizes a Set into primitive key/value pairs suitable for
// vector-store metadata: "{category}_label" always, "{category}_score"
// when the label carries a score. The index's filter language only
// supports scalar predicates, so nothing nested survives this step.
func Flatten(s Set) map[string]float64 {
	flat := make(map[string]float64, len(s)*2)
	for name, l := range s {
		flat[name+"_label"] = float64(l.Flag)
		if l.Scored {
			flat[name+"_score"] = l.Score
		}
	}
	return flat
}

// Flags reduces a Set to the 0/1 flag per category.
func Flags(s Set) map[string]int {
	out := make(map[string]int, len(s))
	for name, l := range s {
		out[name] = l.Flag
	}
	return out
}

// Names returns the category names of a Set, sorted for stable output.
func Names(s Set) []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var displayNames = map[string]string{
	Curse:                  "profanity",
	Slang:                  "slang",
	Biased:                 "biased language",
	Filler:                 "filler words",
	Vague:                  "vague wording",
	FormalityInconsistency: "inconsistent formality",
	DisfluencyRepetition:   "repetition and stumbling",
}

// DisplayName returns the human-readable name for a category,
// falling back to the raw category name.
func DisplayName(category string) string {
	if n, ok := displayNames[category]; ok {
		return n
	}
	return category
}

var improvementGuides = map[string]string{
	Curse:                  "Pause when emotions rise and rephrase with neutral wording.",
	Slang:                  "Practice substituting formal standard expressions for slang.",
	Biased:                 "Make neutral, objective phrasing a habit.",
	Filler:                 "Take three seconds to think before answering, then speak deliberately.",
	Vague:                  "Anchor claims with concrete numbers and examples.",
	FormalityInconsistency: "Keep one consistent register for the whole answer.",
	DisfluencyRepetition:   "Finish the sentence in your head before saying it out loud.",
}

// ImprovementGuide returns canned improvement guidance for a category.
func ImprovementGuide(category string) string {
	if g, ok := improvementGuides[category]; ok {
		return g
	}
	return "Work on this consciously in your next session."
}
