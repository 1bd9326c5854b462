package detect

import (
	"strings"

	"github.com/parlance-ai/parlance/internal/label"
	"github.com/parlance-ai/parlance/internal/transcript"
)

// particles are suffixes that may directly follow an exact-match term
// in agglutinated speech ("그 애자가" still names the term).
var particles = []string{"은", "는", "이", "가", "을", "를", "의", "도", "로", "고", "만", "에"}

// Rules is the deterministic lexicon detector. When it fires it is
// treated as ground truth for its categories, so matching errs on the
// side of precision.
type Rules struct {
	lex Lexicon
}

func NewRules(lex Lexicon) *Rules {
	return &Rules{lex: lex}
}

// Categories lists the label vocabulary this detector covers.
func (r *Rules) Categories() []string {
	return []string{label.Curse, label.Slang, label.Biased, label.Filler}
}

// Detect runs every rule against one span of text.
func (r *Rules) Detect(text string) label.Set {
	return label.Set{
		label.Curse:  label.Binary(r.matchStripped(text, r.lex.Curse)),
		label.Slang:  label.Binary(r.matchStripped(text, r.lex.Slang)),
		label.Biased: label.Binary(r.matchBiased(text)),
		label.Filler: label.Binary(r.matchFiller(text)),
	}
}

// DetectSentences runs the rules per sentence and reports, per
// category, the sorted indices of the sentences that fired. Indices,
// never text: downstream cross-checks depend on it.
func (r *Rules) DetectSentences(sentences []transcript.Sentence) map[string][]int {
	findings := make(map[string][]int, 4)
	for _, cat := range r.Categories() {
		findings[cat] = nil
	}
	for _, s := range sentences {
		for cat, l := range r.Detect(s.Text) {
			if l.Flag == 1 {
				findings[cat] = append(findings[cat], s.Index)
			}
		}
	}
	return findings
}

// matchStripped looks for any term as a substring of the text with all
// spaces removed.
func (r *Rules) matchStripped(text string, terms []string) bool {
	s := strings.ReplaceAll(text, " ", "")
	for _, term := range terms {
		if term != "" && strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func (r *Rules) matchBiased(text string) bool {
	if r.matchStripped(text, r.lex.BiasedSubstring) {
		return true
	}
	// Exact-word pass: the token must equal the term, or be the term
	// followed by a particle or trailing punctuation.
	for _, token := range strings.Fields(text) {
		for _, term := range r.lex.BiasedExact {
			if term == "" {
				continue
			}
			if tokenMatchesExact(token, term) {
				return true
			}
		}
	}
	return false
}

func (r *Rules) matchFiller(text string) bool {
	// Fillers match only as standalone words; multi-word fillers match
	// with space boundaries on both sides.
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		tokens[i] = stripPunct(tok)
	}
	padded := " " + strings.Join(tokens, " ") + " "
	for _, f := range r.lex.Filler {
		if f == "" {
			continue
		}
		if strings.Contains(padded, " "+f+" ") {
			return true
		}
	}
	return false
}

func tokenMatchesExact(token, term string) bool {
	token = stripPunct(token)
	if token == term {
		return true
	}
	if rest, ok := strings.CutPrefix(token, term); ok {
		for _, p := range particles {
			if rest == p {
				return true
			}
		}
	}
	return false
}

func stripPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return true
		}
		return false
	})
}
