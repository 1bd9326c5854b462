package detect

import (
	"testing"

	"github.com/parlance-ai/parlance/internal/label"
	"github.com/parlance-ai/parlance/internal/transcript"
)

func TestRules_Curse(t *testing.T) {
	r := NewRules(DefaultLexicon())

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean", "오늘 날씨가 좋습니다.", false},
		{"direct hit", "아 씨발 또 틀렸네", true},
		{"split across spaces", "씨 발 진짜", true},
		{"english", "that was fucking hard", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Detect(tt.text)[label.Curse].Flag == 1
			if got != tt.want {
				t.Errorf("curse(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRules_BiasedExactWordBoundary(t *testing.T) {
	r := NewRules(DefaultLexicon())

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"standalone term", "걔는 애자 같아", true},
		{"term with particle", "애자가 아니라", true},
		// "애자일" must not fire: the exact list exists to avoid this.
		{"inside longer word", "애자일 방법론을 썼습니다", false},
		{"substring list hit", "장애인 비하 표현", true},
		{"clean", "편견 없는 문장입니다", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Detect(tt.text)[label.Biased].Flag == 1
			if got != tt.want {
				t.Errorf("biased(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRules_FillerStandaloneOnly(t *testing.T) {
	r := NewRules(DefaultLexicon())

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"standalone um", "um I think so", true},
		{"standalone with comma", "음, 그게 말이죠", true},
		{"inside word", "umbrella is useful", false},
		{"multi-word filler", "네 어 음 그렇습니다", true},
		{"clean", "네 그렇습니다", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Detect(tt.text)[label.Filler].Flag == 1
			if got != tt.want {
				t.Errorf("filler(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRules_DetectSentences_IndicesNotText(t *testing.T) {
	r := NewRules(DefaultLexicon())
	sentences := []transcript.Sentence{
		{Index: 0, Text: "안녕하세요."},
		{Index: 1, Text: "씨발 왜 안 되지."},
		{Index: 2, Text: "음 다시 해볼게요."},
		{Index: 3, Text: "씨발 진짜."},
	}

	findings := r.DetectSentences(sentences)

	if got := findings[label.Curse]; len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("curse indices = %v, want [1 3]", got)
	}
	if got := findings[label.Filler]; len(got) != 1 || got[0] != 2 {
		t.Errorf("filler indices = %v, want [2]", got)
	}
	// Every covered category must be present even with zero findings.
	if _, ok := findings[label.Slang]; !ok {
		t.Error("slang must be present with an empty finding")
	}
	if _, ok := findings[label.Biased]; !ok {
		t.Error("biased must be present with an empty finding")
	}
}
