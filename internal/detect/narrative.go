package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/parlance-ai/parlance/internal/anthropic"
	"github.com/parlance-ai/parlance/internal/label"
	"github.com/parlance-ai/parlance/internal/transcript"
)

// CategoryFinding is one category's result from the narrative
// detector: a severity score, offending sentence indices (never copied
// text) and free-text rationale plus guidance.
type CategoryFinding struct {
	Score            float64 `json:"score"`
	DetectedExamples []int   `json:"detected_examples"`
	Reason           string  `json:"reason"`
	Improvement      string  `json:"improvement"`
}

// CategoryMessage is one feedback message attached to a sentence.
type CategoryMessage struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// SentenceFeedback carries the messages for one sentence index.
type SentenceFeedback struct {
	SentenceIndex int               `json:"sentence_index"`
	Feedbacks     []CategoryMessage `json:"feedbacks"`
}

// NarrativeResult is the strict JSON contract the model must satisfy.
type NarrativeResult struct {
	Categories        map[string]CategoryFinding `json:"categories"`
	SpeakingSpeed     float64                    `json:"speaking_speed"`
	SilenceCount      int                        `json:"silence_count"`
	SentenceFeedbacks []SentenceFeedback         `json:"sentence_feedbacks"`
	Summary           string                     `json:"summary"`
	Advice            string                     `json:"advice"`
}

// Narrative is the LLM-backed detector. It is the least reliable of
// the three detector strategies (it invents indices and misses obvious
// cases), so its output is never authoritative for categories a
// cheaper detector covers.
type Narrative struct {
	llm    *anthropic.Client
	logger *slog.Logger
}

func NewNarrative(llm *anthropic.Client, logger *slog.Logger) *Narrative {
	return &Narrative{llm: llm, logger: logger}
}

// Categories lists the label vocabulary this detector reports on.
func (n *Narrative) Categories() []string {
	return []string{
		label.Curse, label.Slang, label.Biased, label.Filler,
		label.Vague, label.FormalityInconsistency, label.DisfluencyRepetition,
	}
}

// Detect asks the model to point at problem sentences by index.
// classifierFlags is the full-text classifier verdict, included in the
// prompt as a hint signal.
func (n *Narrative) Detect(ctx context.Context, sentences []transcript.Sentence, classifierFlags map[string]int, targetSpeaker string) (*NarrativeResult, error) {
	prompt := fmt.Sprintf(narrativeUserPrompt,
		targetSpeaker,
		formatSentences(sentences, targetSpeaker),
		formatClassifierFlags(classifierFlags),
	)

	n.logger.Info("narrative detection",
		"sentences", len(sentences),
		"target_speaker", targetSpeaker,
	)

	var result NarrativeResult
	err := n.llm.CompleteJSON(ctx, narrativeSystemPrompt,
		[]anthropic.Message{{Role: "user", Content: prompt}}, 4096, &result)
	if err != nil {
		return nil, fmt.Errorf("narrative detection: %w", err)
	}

	if result.Categories == nil {
		result.Categories = map[string]CategoryFinding{}
	}
	return &result, nil
}

func formatSentences(sentences []transcript.Sentence, targetSpeaker string) string {
	var sb strings.Builder
	for _, s := range sentences {
		if s.Speaker != targetSpeaker {
			continue
		}
		fmt.Fprintf(&sb, "### Sentence [%d] ###\n", s.Index)
		fmt.Fprintf(&sb, "Speaker: %s\n", s.Speaker)
		fmt.Fprintf(&sb, "Time: %.3fs - %.3fs\n", s.Start, s.End)
		fmt.Fprintf(&sb, "Text: %s\n\n", s.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatClassifierFlags(flags map[string]int) string {
	if len(flags) == 0 {
		return "  (none available)"
	}
	cats := make([]string, 0, len(flags))
	for cat := range flags {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	var sb strings.Builder
	for _, cat := range cats {
		detected := "No"
		if flags[cat] > 0 {
			detected = "Yes"
		}
		fmt.Fprintf(&sb, "  - %s: detected=%s\n", cat, detected)
	}
	return strings.TrimRight(sb.String(), "\n")
}
