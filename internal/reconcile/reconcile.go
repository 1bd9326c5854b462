// Package reconcile fuses the three detector outputs into one
// authoritative label set per sentence and per-category counters. The
// precedence rules live in a policy table, not in conditionals, so the
// merge is a pure function of its inputs: displayed counts and
// displayed example indices can never disagree because both derive
// from the same reconciled index lists.
package reconcile

import (
	"sort"

	"github.com/parlance-ai/parlance/internal/detect"
	"github.com/parlance-ai/parlance/internal/label"
)

// Policy says how a category's findings are merged.
type Policy int

const (
	// RuleOverride: the rule detector's firings are the source of
	// truth; narrative claims are discarded entirely.
	RuleOverride Policy = iota
	// Union: the classifier's per-sentence flags seed the baseline and
	// the narrative detector may add sentences it judged from duration
	// or context.
	Union
	// NarrativeOnly: no cheaper detector covers the category, so the
	// narrative indices pass through (validated, deduplicated).
	NarrativeOnly
)

// PolicyTable maps category to merge policy.
type PolicyTable map[string]Policy

// DefaultPolicyTable: lexicon-checkable categories are rule-owned,
// filler needs the narrative's duration judgment on top of the
// classifier, the open-ended linguistic categories exist only in the
// narrative vocabulary.
func DefaultPolicyTable() PolicyTable {
	return PolicyTable{
		label.Curse:                  RuleOverride,
		label.Slang:                  RuleOverride,
		label.Biased:                 RuleOverride,
		label.Filler:                 Union,
		label.Vague:                  NarrativeOnly,
		label.FormalityInconsistency: NarrativeOnly,
		label.DisfluencyRepetition:   NarrativeOnly,
	}
}

// CategoryResult is the reconciled finding for one category.
type CategoryResult struct {
	Category         string  `json:"category"`
	Score            float64 `json:"score"`
	Count            int     `json:"count"`
	DetectedExamples []int   `json:"detected_examples"`
	Reason           string  `json:"reason,omitempty"`
	Improvement      string  `json:"improvement,omitempty"`
}

// Result is the full reconciled analysis of one answer.
type Result struct {
	Categories map[string]CategoryResult
	// Feedback maps sentence index to its rebuilt feedback entries.
	// Only sentences with reconciled findings appear.
	Feedback map[int][]detect.CategoryMessage

	SpeakingSpeed float64
	SilenceCount  int
	Summary       string
	Advice        string
}

// Inputs are the three detectors' outputs. Narrative may be nil: a
// failed narrative call skips its contribution rather than failing the
// analysis.
type Inputs struct {
	Rule              map[string][]int
	ClassifierFlagged map[string][]int
	ClassifierOverall label.Set
	Narrative         *detect.NarrativeResult
	SentenceCount     int
}

// Reconcile merges detector findings under the policy table. Counts
// are always recomputed as len(detected_examples); no detector's
// self-reported count survives. Running it twice on the same inputs
// yields the same result.
func Reconcile(in Inputs, policies PolicyTable) *Result {
	if policies == nil {
		policies = DefaultPolicyTable()
	}

	res := &Result{
		Categories: make(map[string]CategoryResult),
		Feedback:   make(map[int][]detect.CategoryMessage),
	}

	for _, cat := range vocabulary(in, policies) {
		policy, ok := policies[cat]
		if !ok {
			policy = NarrativeOnly
		}

		var indices []int
		switch policy {
		case RuleOverride:
			indices = normalize(in.Rule[cat], in.SentenceCount)
		case Union:
			merged := append([]int{}, in.ClassifierFlagged[cat]...)
			merged = append(merged, narrativeIndices(in.Narrative, cat)...)
			indices = normalize(merged, in.SentenceCount)
		case NarrativeOnly:
			indices = normalize(narrativeIndices(in.Narrative, cat), in.SentenceCount)
		}

		res.Categories[cat] = CategoryResult{
			Category:         cat,
			Score:            categoryScore(in, cat),
			Count:            len(indices),
			DetectedExamples: indices,
			Reason:           narrativeReason(in.Narrative, cat),
			Improvement:      categoryImprovement(in.Narrative, cat),
		}
	}

	res.rebuildFeedback(in.Narrative)

	if in.Narrative != nil {
		res.SpeakingSpeed = in.Narrative.SpeakingSpeed
		res.SilenceCount = in.Narrative.SilenceCount
		res.Summary = in.Narrative.Summary
		res.Advice = in.Narrative.Advice
	}

	return res
}

// OverallLabels builds the answer-level label set from the reconciled
// results: the flag reflects the reconciled count so record metadata
// can never contradict the displayed findings, the score comes from
// the classifier's full-text confidence when it covers the category.
func (r *Result) OverallLabels(classifierOverall label.Set) label.Set {
	set := make(label.Set, len(r.Categories))
	for cat, cr := range r.Categories {
		if cl, ok := classifierOverall[cat]; ok && cl.Scored {
			set[cat] = label.ScoredLabel(cl.Score, cr.Count > 0)
			continue
		}
		set[cat] = label.ScoredLabel(cr.Score, cr.Count > 0)
	}
	return set
}

// SentenceLabels returns the reconciled 0/1 flags for one sentence.
func (r *Result) SentenceLabels(index int) label.Set {
	set := make(label.Set, len(r.Categories))
	for cat, cr := range r.Categories {
		flagged := false
		for _, idx := range cr.DetectedExamples {
			if idx == index {
				flagged = true
				break
			}
		}
		set[cat] = label.Binary(flagged)
	}
	return set
}

// Counts returns the per-category reconciled counts.
func (r *Result) Counts() map[string]int {
	counts := make(map[string]int, len(r.Categories))
	for cat, cr := range r.Categories {
		counts[cat] = cr.Count
	}
	return counts
}

// rebuildFeedback attaches one message per reconciled (sentence,
// category) pair. Narrative messages are kept only when their index
// survived reconciliation; reconciled findings the narrative never
// mentioned get a canned message, so feedback and counts agree.
func (r *Result) rebuildFeedback(narrative *detect.NarrativeResult) {
	narrativeMsgs := make(map[int]map[string]string)
	if narrative != nil {
		for _, sf := range narrative.SentenceFeedbacks {
			for _, fb := range sf.Feedbacks {
				if narrativeMsgs[sf.SentenceIndex] == nil {
					narrativeMsgs[sf.SentenceIndex] = make(map[string]string)
				}
				narrativeMsgs[sf.SentenceIndex][fb.Category] = fb.Message
			}
		}
	}

	for cat, cr := range r.Categories {
		for _, idx := range cr.DetectedExamples {
			msg := label.ImprovementGuide(cat)
			if m, ok := narrativeMsgs[idx][cat]; ok && m != "" {
				msg = m
			}
			r.Feedback[idx] = append(r.Feedback[idx], detect.CategoryMessage{
				Category: cat,
				Message:  msg,
			})
		}
	}

	for idx := range r.Feedback {
		entries := r.Feedback[idx]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Category < entries[j].Category })
	}
}

// vocabulary is the stable category set: every category any detector
// or the policy table knows about appears in the result, with an empty
// finding when nothing fired.
func vocabulary(in Inputs, policies PolicyTable) []string {
	seen := make(map[string]bool)
	for cat := range policies {
		seen[cat] = true
	}
	for cat := range in.Rule {
		seen[cat] = true
	}
	for cat := range in.ClassifierFlagged {
		seen[cat] = true
	}
	for cat := range in.ClassifierOverall {
		seen[cat] = true
	}
	if in.Narrative != nil {
		for cat := range in.Narrative.Categories {
			seen[cat] = true
		}
	}

	cats := make([]string, 0, len(seen))
	for cat := range seen {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// normalize sorts, deduplicates and drops indices outside the sentence
// range — the narrative detector is known to invent them.
func normalize(indices []int, sentenceCount int) []int {
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= sentenceCount || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func narrativeIndices(n *detect.NarrativeResult, cat string) []int {
	if n == nil {
		return nil
	}
	return n.Categories[cat].DetectedExamples
}

func narrativeReason(n *detect.NarrativeResult, cat string) string {
	if n == nil {
		return ""
	}
	return n.Categories[cat].Reason
}

func categoryScore(in Inputs, cat string) float64 {
	if l, ok := in.ClassifierOverall[cat]; ok && l.Scored {
		return l.Score
	}
	if in.Narrative != nil {
		return in.Narrative.Categories[cat].Score
	}
	return 0
}

func categoryImprovement(n *detect.NarrativeResult, cat string) string {
	if n != nil {
		if imp := n.Categories[cat].Improvement; imp != "" {
			return imp
		}
	}
	return label.ImprovementGuide(cat)
}
