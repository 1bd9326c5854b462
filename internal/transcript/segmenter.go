package transcript

import "strings"

// Segment scans words in time order and produces sentences. Words
// accumulate into a turn buffer while the speaker label is unchanged;
// a speaker change flushes the buffer, splitting on sentence-terminal
// punctuation. Trailing text without terminal punctuation still
// becomes a sentence, so no word is ever dropped. An empty word list
// yields an empty sentence list.
func Segment(words []Word) []Sentence {
	if len(words) == 0 {
		return nil
	}

	var sentences []Sentence
	var turn []Word
	speaker := words[0].Speaker

	flush := func() {
		for _, s := range splitTurn(turn, speaker) {
			s.Index = len(sentences)
			sentences = append(sentences, s)
		}
		turn = turn[:0]
	}

	for _, w := range words {
		if w.Speaker != speaker {
			flush()
			speaker = w.Speaker
		}
		turn = append(turn, w)
	}
	flush()

	return sentences
}

// splitTurn breaks one speaker turn into sentences on terminal
// punctuation. A word whose text ends in '.', '!' or '?' closes the
// current sentence; leftover words form a final unterminated sentence.
func splitTurn(turn []Word, speaker string) []Sentence {
	var out []Sentence
	start := 0
	for i, w := range turn {
		if !endsSentence(w.Text) {
			continue
		}
		out = append(out, buildSentence(turn[start:i+1], speaker))
		start = i + 1
	}
	if start < len(turn) {
		out = append(out, buildSentence(turn[start:], speaker))
	}
	return out
}

func buildSentence(words []Word, speaker string) Sentence {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return Sentence{
		Speaker: speaker,
		Text:    strings.TrimSpace(strings.Join(parts, " ")),
		Start:   words[0].Start,
		End:     words[len(words)-1].End,
	}
}

func endsSentence(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	switch t[len(t)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
