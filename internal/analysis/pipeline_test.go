package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlance-ai/parlance/internal/detect"
	"github.com/parlance-ai/parlance/internal/events"
	"github.com/parlance-ai/parlance/internal/index"
	"github.com/parlance-ai/parlance/internal/label"
	"github.com/parlance-ai/parlance/internal/store"
	"github.com/parlance-ai/parlance/internal/transcript"
)

var testLogger = slog.New(slog.NewTextHandler(discard{}, nil))

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeAnswers struct {
	answers map[uuid.UUID]store.Answer
	saved   map[uuid.UUID]any
}

func newFakeAnswers() *fakeAnswers {
	return &fakeAnswers{
		answers: make(map[uuid.UUID]store.Answer),
		saved:   make(map[uuid.UUID]any),
	}
}

func (f *fakeAnswers) GetAnswer(_ context.Context, id uuid.UUID) (store.Answer, error) {
	a, ok := f.answers[id]
	if !ok {
		return store.Answer{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeAnswers) SaveAnalysis(_ context.Context, answerID uuid.UUID, analysis any) error {
	f.saved[answerID] = analysis
	return nil
}

type fakeClassifier struct {
	scores map[string]float64
}

func (f *fakeClassifier) Scores(_ context.Context, _ string) (map[string]float64, error) {
	return f.scores, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return []float64{float64(len([]rune(text))), 1}, nil
}

type fakeNarrative struct {
	result *detect.NarrativeResult
	err    error
	calls  int
	flags  map[string]int
}

func (f *fakeNarrative) Detect(_ context.Context, _ []transcript.Sentence, flags map[string]int, _ string) (*detect.NarrativeResult, error) {
	f.calls++
	f.flags = flags
	return f.result, f.err
}

type fakePublisher struct {
	subjects []string
	payloads []any
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func wireWords(texts []string) []transcript.WireWord {
	conf := 0.95
	words := make([]transcript.WireWord, len(texts))
	for i, txt := range texts {
		words[i] = transcript.WireWord{
			Word:         txt,
			StartTime:    transcriptSeconds(float64(i)),
			EndTime:      transcriptSeconds(float64(i) + 0.5),
			SpeakerLabel: "1",
			Confidence:   &conf,
		}
	}
	return words
}

func transcriptSeconds(v float64) string {
	return fmt.Sprintf("%gs", v)
}

func answerWith(texts []string) store.Answer {
	full := ""
	for i, t := range texts {
		if i > 0 {
			full += " "
		}
		full += t
	}
	return store.Answer{
		ID:         uuid.New(),
		SessionID:  uuid.New(),
		UserID:     uuid.New(),
		QuestionNo: 1,
		Transcript: &transcript.RecognitionResult{
			Results: []transcript.ResultGroup{{
				Alternatives: []transcript.Alternative{{
					Transcript: full,
					Words:      wireWords(texts),
				}},
			}},
		},
		Metrics:   &transcript.Metrics{DurationSec: 3, WordCount: len(texts), SpeechRateWPM: 120},
		CreatedAt: time.Now().UTC(),
	}
}

func newTestPipeline(answers *fakeAnswers, narrative NarrativeDetector, pub Publisher, mem *index.Memory) *Pipeline {
	rules := detect.NewRules(detect.DefaultLexicon())
	classifier := detect.NewClassifierDetector(
		&fakeClassifier{scores: map[string]float64{
			label.Curse: 0.1, label.Slang: 0.1, label.Biased: 0.1, label.Filler: 0.1,
		}},
		detect.DefaultThresholds(),
	)
	return New(answers, rules, classifier, narrative, mem, fakeEmbedder{}, pub, testLogger)
}

func TestAnalyzeAnswer_MissingTranscript(t *testing.T) {
	answers := newFakeAnswers()
	a := answerWith([]string{"안녕하세요."})
	a.Transcript = nil
	answers.answers[a.ID] = a

	_, err := newTestPipeline(answers, nil, nil, index.NewMemory()).AnalyzeAnswer(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNoTranscript)
}

func TestAnalyzeAnswer_MissingMetrics(t *testing.T) {
	answers := newFakeAnswers()
	a := answerWith([]string{"안녕하세요."})
	a.Metrics = nil
	answers.answers[a.ID] = a

	_, err := newTestPipeline(answers, nil, nil, index.NewMemory()).AnalyzeAnswer(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNoMetrics)
}

func TestAnalyzeAnswer_RuleFindingFlowsThrough(t *testing.T) {
	ctx := context.Background()
	answers := newFakeAnswers()
	mem := index.NewMemory()
	pub := &fakePublisher{}

	a := answerWith([]string{"이건", "씨발", "어렵다.", "그래도", "계속할게요."})
	answers.answers[a.ID] = a

	report, err := newTestPipeline(answers, nil, pub, mem).AnalyzeAnswer(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, report)

	curse := report.Categories[label.Curse]
	assert.Equal(t, 1, curse.Count)
	assert.Equal(t, []int{0}, curse.DetectedExamples)
	require.Len(t, report.Sentences, 2)
	assert.NotEmpty(t, report.Sentences[0].Feedback, "flagged sentence carries feedback")
	assert.Empty(t, report.Sentences[1].Feedback)

	// Report persisted.
	assert.Contains(t, answers.saved, a.ID)

	// Embedding records written: one full answer plus two sentences.
	assert.Equal(t, 3, mem.Len())
	full, err := mem.Get(ctx, index.Filter{UserID: a.UserID, Type: index.TypeFullAnswer})
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.Equal(t, float64(1), full[0].Meta["curse_label"])
	assert.Equal(t, float64(120), full[0].Meta["stt_speech_rate_wpm"])

	// Analyzed event published.
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, events.SubjectAnswerAnalyzed, pub.subjects[0])
	evt, ok := pub.payloads[0].(events.AnswerAnalyzed)
	require.True(t, ok)
	assert.Equal(t, a.ID.String(), evt.AnswerID)
	assert.Equal(t, 2, evt.SentenceCount)
}

func TestAnalyzeAnswer_NarrativeFailureIsRecoverable(t *testing.T) {
	answers := newFakeAnswers()
	a := answerWith([]string{"안녕하세요.", "반갑습니다."})
	answers.answers[a.ID] = a

	narrative := &fakeNarrative{err: errors.New("model unavailable")}
	report, err := newTestPipeline(answers, narrative, nil, index.NewMemory()).AnalyzeAnswer(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, narrative.calls)
	assert.NotNil(t, report)
}

func TestAnalyzeAnswer_NarrativeFindingsMerged(t *testing.T) {
	answers := newFakeAnswers()
	a := answerWith([]string{"음", "그러니까요.", "네", "알겠습니다."})
	answers.answers[a.ID] = a

	narrative := &fakeNarrative{result: &detect.NarrativeResult{
		Categories: map[string]detect.CategoryFinding{
			label.Vague: {Score: 60, DetectedExamples: []int{1}, Reason: "hedged answer"},
		},
		Summary: "overall summary",
	}}

	report, err := newTestPipeline(answers, narrative, nil, index.NewMemory()).AnalyzeAnswer(context.Background(), a.ID)
	require.NoError(t, err)

	vague := report.Categories[label.Vague]
	assert.Equal(t, []int{1}, vague.DetectedExamples)
	assert.Equal(t, "overall summary", report.Summary)
}

func TestAnalyzeAnswer_NarrativeHintIsOverallVerdict(t *testing.T) {
	answers := newFakeAnswers()
	a := answerWith([]string{"음 그러니까요.", "음 네 알겠습니다."})
	answers.answers[a.ID] = a

	// Filler trips on the full text and on both sentences. The hint
	// handed to the narrative detector is the full-text 0/1 verdict,
	// never a sentence tally.
	classifier := detect.NewClassifierDetector(
		&fakeClassifier{scores: map[string]float64{
			label.Curse: 0.1, label.Slang: 0.1, label.Biased: 0.1, label.Filler: 0.9,
		}},
		detect.DefaultThresholds(),
	)
	narrative := &fakeNarrative{result: &detect.NarrativeResult{}}
	p := New(answers, detect.NewRules(detect.DefaultLexicon()), classifier, narrative,
		index.NewMemory(), fakeEmbedder{}, nil, testLogger)

	_, err := p.AnalyzeAnswer(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, narrative.calls)
	assert.Equal(t, 1, narrative.flags[label.Filler])
	assert.Equal(t, 0, narrative.flags[label.Curse])
}

func TestAnalyzeAnswer_ReanalysisReplacesIndexRecords(t *testing.T) {
	ctx := context.Background()
	answers := newFakeAnswers()
	mem := index.NewMemory()

	a := answerWith([]string{"안녕하세요.", "감사합니다."})
	answers.answers[a.ID] = a

	p := newTestPipeline(answers, nil, nil, mem)
	_, err := p.AnalyzeAnswer(ctx, a.ID)
	require.NoError(t, err)
	_, err = p.AnalyzeAnswer(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, mem.Len(), "re-analysis must not accumulate records")
}

func TestHandleAnswerTranscribed(t *testing.T) {
	answers := newFakeAnswers()
	a := answerWith([]string{"안녕하세요."})
	answers.answers[a.ID] = a

	p := newTestPipeline(answers, nil, nil, index.NewMemory())
	p.HandleAnswerTranscribed(events.SubjectAnswerTranscribed,
		[]byte(`{"answer_id":"`+a.ID.String()+`"}`))

	assert.Contains(t, answers.saved, a.ID)
}

func TestHandleAnswerTranscribed_BadPayload(t *testing.T) {
	p := newTestPipeline(newFakeAnswers(), nil, nil, index.NewMemory())

	// Neither payload may panic or persist anything.
	p.HandleAnswerTranscribed(events.SubjectAnswerTranscribed, []byte(`{not json`))
	p.HandleAnswerTranscribed(events.SubjectAnswerTranscribed, []byte(`{"answer_id":"nope"}`))
}
