// Package transcript turns the transcription provider's raw output into
// speaker-segmented, index-addressable sentences and the acoustic
// metrics derived from word timestamps.
package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// RecognitionResult is the provider's result shape: a sequence of
// result groups, each with one or more alternatives, each carrying a
// word list with suffixed-seconds timestamps.
type RecognitionResult struct {
	Results []ResultGroup `json:"results"`
}

// ResultGroup holds the alternatives for one recognized segment.
type ResultGroup struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative is one candidate transcription of a segment.
type Alternative struct {
	Transcript string     `json:"transcript"`
	Words      []WireWord `json:"words"`
}

// WireWord is a word as the provider encodes it, times as "1.234s".
type WireWord struct {
	Word         string   `json:"word"`
	StartTime    string   `json:"startTime"`
	EndTime      string   `json:"endTime"`
	SpeakerLabel string   `json:"speakerLabel"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// Word is a decoded word with times in floating-point seconds.
type Word struct {
	Text       string
	Start      float64
	End        float64
	Speaker    string
	Confidence *float64
}

// Sentence is the unit every detector and the reconciler address by
// index. Index is global and monotonic across the whole transcript,
// never per speaker.
type Sentence struct {
	Index   int     `json:"sentence_index"`
	Speaker string  `json:"speaker_label"`
	Text    string  `json:"text"`
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
}

// ParseSeconds decodes a suffixed-seconds string such as "1.234s".
// Empty or malformed values decode to zero, matching the provider's
// habit of omitting times on the first word.
func ParseSeconds(t string) float64 {
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "s")
	if t == "" {
		return 0
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0
	}
	return v
}

// ExtractWords flattens a recognition result into decoded words, taking
// the first alternative of each result group.
func ExtractWords(res *RecognitionResult) []Word {
	var words []Word
	for _, group := range res.Results {
		if len(group.Alternatives) == 0 {
			continue
		}
		for _, w := range group.Alternatives[0].Words {
			speaker := w.SpeakerLabel
			if speaker == "" {
				speaker = "1"
			}
			words = append(words, Word{
				Text:       w.Word,
				Start:      ParseSeconds(w.StartTime),
				End:        ParseSeconds(w.EndTime),
				Speaker:    speaker,
				Confidence: w.Confidence,
			})
		}
	}
	return words
}

// ExtractTranscript joins the alternative transcripts into one string.
// An empty result is a precondition failure for analysis.
func ExtractTranscript(res *RecognitionResult) (string, error) {
	var parts []string
	for _, group := range res.Results {
		for _, alt := range group.Alternatives {
			if t := strings.TrimSpace(alt.Transcript); t != "" {
				parts = append(parts, t)
			}
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("recognition result contains no transcript")
	}
	return strings.Join(parts, " "), nil
}

// SpeakerText joins the words spoken by one speaker, used to feed the
// classifier with only the analysis target's speech.
func SpeakerText(words []Word, speaker string) string {
	var parts []string
	for _, w := range words {
		if w.Speaker == speaker {
			parts = append(parts, w.Text)
		}
	}
	return strings.Join(parts, " ")
}
