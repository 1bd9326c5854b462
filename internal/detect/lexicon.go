// Package detect holds the three independent problem detectors: the
// deterministic rule/lexicon detector, the multi-label classifier
// client, and the narrative (LLM) detector. Each produces findings
// addressed by sentence index; the reconcile package merges them.
package detect

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lexicon is the rule detector's word lists. Matching semantics differ
// per list: curse and slang terms match as substrings of the
// space-stripped sentence (agglutinated speech hides word boundaries),
// biased terms come in a substring list and an exact-word list (the
// exact list avoids false hits inside longer harmless words), filler
// terms match only as standalone words.
type Lexicon struct {
	Curse           []string `yaml:"curse"`
	Slang           []string `yaml:"slang"`
	BiasedSubstring []string `yaml:"biased_substring"`
	BiasedExact     []string `yaml:"biased_exact"`
	Filler          []string `yaml:"filler"`
}

// DefaultLexicon returns the compiled-in word lists used when no
// lexicon file is configured.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Curse: []string{"존나", "씨발", "병신", "개새끼", "좆", "fucking", "bullshit"},
		Slang: []string{"개꿀", "쩐다", "레알", "hella"},
		BiasedSubstring: []string{
			"장애인", "병신",
		},
		BiasedExact: []string{"애자", "따", "retard"},
		Filler: []string{
			"음", "어", "어 음", "um", "uh", "erm",
		},
	}
}

// LoadLexicon reads a lexicon from a YAML file. Lists missing from the
// file fall back to the defaults so a partial override stays safe.
func LoadLexicon(path string) (Lexicon, error) {
	lex := DefaultLexicon()
	data, err := os.ReadFile(path)
	if err != nil {
		return lex, fmt.Errorf("read lexicon: %w", err)
	}

	var file Lexicon
	if err := yaml.Unmarshal(data, &file); err != nil {
		return lex, fmt.Errorf("parse lexicon: %w", err)
	}

	if len(file.Curse) > 0 {
		lex.Curse = file.Curse
	}
	if len(file.Slang) > 0 {
		lex.Slang = file.Slang
	}
	if len(file.BiasedSubstring) > 0 {
		lex.BiasedSubstring = file.BiasedSubstring
	}
	if len(file.BiasedExact) > 0 {
		lex.BiasedExact = file.BiasedExact
	}
	if len(file.Filler) > 0 {
		lex.Filler = file.Filler
	}
	return lex, nil
}
