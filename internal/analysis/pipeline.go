// Package analysis orchestrates the per-answer pipeline: segment the
// transcript, run the three detectors, reconcile their findings,
// persist the report and refresh the answer's embedding records.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parlance-ai/parlance/internal/detect"
	"github.com/parlance-ai/parlance/internal/events"
	"github.com/parlance-ai/parlance/internal/index"
	"github.com/parlance-ai/parlance/internal/label"
	"github.com/parlance-ai/parlance/internal/reconcile"
	"github.com/parlance-ai/parlance/internal/store"
	"github.com/parlance-ai/parlance/internal/transcript"
)

var (
	ErrNoTranscript = errors.New("answer has no transcript")
	ErrNoMetrics    = errors.New("answer has no stt metrics")
)

// defaultTargetSpeaker is the channel the user speaks on. The
// transcription provider labels the interviewee "1".
const defaultTargetSpeaker = "1"

// AnswerStore is the slice of the relational store the pipeline needs.
type AnswerStore interface {
	GetAnswer(ctx context.Context, id uuid.UUID) (store.Answer, error)
	SaveAnalysis(ctx context.Context, answerID uuid.UUID, analysis any) error
}

// NarrativeDetector produces the LLM-backed findings. It may be nil in
// a pipeline running without a narrative model.
type NarrativeDetector interface {
	Detect(ctx context.Context, sentences []transcript.Sentence, classifierFlags map[string]int, targetSpeaker string) (*detect.NarrativeResult, error)
}

// Publisher announces finished analyses. May be nil.
type Publisher interface {
	Publish(subject string, data any) error
}

// SentenceReport is one segmented sentence plus its rebuilt feedback.
type SentenceReport struct {
	transcript.Sentence
	Feedback []detect.CategoryMessage `json:"feedback,omitempty"`
}

// Report is the persisted analysis of one answer.
type Report struct {
	AnswerID      uuid.UUID                           `json:"answer_id"`
	Categories    map[string]reconcile.CategoryResult `json:"categories"`
	Sentences     []SentenceReport                    `json:"sentences"`
	SpeakingSpeed float64                             `json:"speaking_speed"`
	SilenceCount  int                                 `json:"silence_count"`
	Summary       string                              `json:"summary,omitempty"`
	Advice        string                              `json:"advice,omitempty"`
	Metrics       *transcript.Metrics                 `json:"stt_metrics"`
	AnalyzedAt    time.Time                           `json:"analyzed_at"`
}

type Pipeline struct {
	answers    AnswerStore
	rules      *detect.Rules
	classifier *detect.ClassifierDetector
	narrative  NarrativeDetector
	index      index.EmbeddingIndex
	embedder   index.Embedder
	publisher  Publisher
	logger     *slog.Logger

	targetSpeaker string
}

func New(answers AnswerStore, rules *detect.Rules, classifier *detect.ClassifierDetector, narrative NarrativeDetector, idx index.EmbeddingIndex, embedder index.Embedder, publisher Publisher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		answers:       answers,
		rules:         rules,
		classifier:    classifier,
		narrative:     narrative,
		index:         idx,
		embedder:      embedder,
		publisher:     publisher,
		logger:        logger,
		targetSpeaker: defaultTargetSpeaker,
	}
}

// SetTargetSpeaker overrides which speaker label the narrative
// detector treats as the user.
func (p *Pipeline) SetTargetSpeaker(speaker string) {
	if speaker != "" {
		p.targetSpeaker = speaker
	}
}

// AnalyzeAnswer runs the whole pipeline for one answer. Re-running
// replaces the stored report and the answer's embedding records.
func (p *Pipeline) AnalyzeAnswer(ctx context.Context, answerID uuid.UUID) (*Report, error) {
	start := time.Now()
	report, err := p.analyze(ctx, answerID)
	analysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		analysesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	analysesTotal.WithLabelValues("ok").Inc()
	return report, nil
}

func (p *Pipeline) analyze(ctx context.Context, answerID uuid.UUID) (*Report, error) {
	answer, err := p.answers.GetAnswer(ctx, answerID)
	if err != nil {
		return nil, fmt.Errorf("load answer %s: %w", answerID, err)
	}
	if answer.Transcript == nil {
		return nil, fmt.Errorf("answer %s: %w", answerID, ErrNoTranscript)
	}
	if answer.Metrics == nil {
		return nil, fmt.Errorf("answer %s: %w", answerID, ErrNoMetrics)
	}

	fullText, err := transcript.ExtractTranscript(answer.Transcript)
	if err != nil {
		return nil, fmt.Errorf("answer %s: %w", answerID, ErrNoTranscript)
	}

	words := transcript.ExtractWords(answer.Transcript)
	sentences := transcript.Segment(words)

	ruleFindings := p.rules.DetectSentences(sentences)

	_, classifierFlagged, err := p.classifier.DetectSentences(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("classify sentences: %w", err)
	}
	classifierOverall, err := p.classifier.Detect(ctx, fullText)
	if err != nil {
		return nil, fmt.Errorf("classify answer: %w", err)
	}

	narrative := p.runNarrative(ctx, answerID, sentences, classifierOverall)

	rec := reconcile.Reconcile(reconcile.Inputs{
		Rule:              ruleFindings,
		ClassifierFlagged: classifierFlagged,
		ClassifierOverall: classifierOverall,
		Narrative:         narrative,
		SentenceCount:     len(sentences),
	}, nil)

	report := buildReport(answerID, answer.Metrics, sentences, rec)
	if err := p.answers.SaveAnalysis(ctx, answerID, report); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	err = index.UpsertAnswer(ctx, p.index, p.embedder, index.AnswerUpsert{
		UserID:         answer.UserID,
		SessionID:      answer.SessionID,
		AnswerID:       answer.ID,
		QuestionNo:     answer.QuestionNo,
		FullText:       fullText,
		Sentences:      sentences,
		SentenceLabels: rec.SentenceLabels,
		OverallLabels:  rec.OverallLabels(classifierOverall),
		Counts:         rec.Counts(),
		STTMetrics:     answer.Metrics.Flatten(),
		CreatedAt:      answer.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("index answer: %w", err)
	}

	flaggedTotal := 0
	for cat, n := range rec.Counts() {
		if n > 0 {
			flaggedSentences.WithLabelValues(cat).Add(float64(n))
		}
		flaggedTotal += n
	}

	if p.publisher != nil {
		evt := events.AnswerAnalyzed{
			AnswerID:      answer.ID.String(),
			SessionID:     answer.SessionID.String(),
			UserID:        answer.UserID.String(),
			SentenceCount: len(sentences),
			FlaggedTotal:  flaggedTotal,
		}
		if err := p.publisher.Publish(events.SubjectAnswerAnalyzed, evt); err != nil {
			p.logger.Error("failed to publish analyzed event", "answer_id", answer.ID, "error", err)
		}
	}

	p.logger.Info("answer analyzed",
		"answer_id", answer.ID,
		"sentences", len(sentences),
		"flagged", flaggedTotal,
	)
	return report, nil
}

// runNarrative tolerates narrative failures: the rule and classifier
// detectors stay authoritative for the categories that matter most, so
// a failed LLM call only loses the narrative's additions.
func (p *Pipeline) runNarrative(ctx context.Context, answerID uuid.UUID, sentences []transcript.Sentence, classifierOverall label.Set) *detect.NarrativeResult {
	if p.narrative == nil || len(sentences) == 0 {
		return nil
	}

	result, err := p.narrative.Detect(ctx, sentences, label.Flags(classifierOverall), p.targetSpeaker)
	if err != nil {
		narrativeFailures.Inc()
		p.logger.Warn("narrative detector failed, skipping its findings",
			"answer_id", answerID, "error", err)
		return nil
	}
	return result
}

func buildReport(answerID uuid.UUID, metrics *transcript.Metrics, sentences []transcript.Sentence, rec *reconcile.Result) *Report {
	report := &Report{
		AnswerID:      answerID,
		Categories:    rec.Categories,
		SpeakingSpeed: rec.SpeakingSpeed,
		SilenceCount:  rec.SilenceCount,
		Summary:       rec.Summary,
		Advice:        rec.Advice,
		Metrics:       metrics,
		AnalyzedAt:    time.Now().UTC(),
	}
	for _, s := range sentences {
		report.Sentences = append(report.Sentences, SentenceReport{
			Sentence: s,
			Feedback: rec.Feedback[s.Index],
		})
	}
	return report
}

// HandleAnswerTranscribed is the NATS handler for the transcribed
// subject: it parses the event and runs the pipeline.
func (p *Pipeline) HandleAnswerTranscribed(subject string, data []byte) {
	ctx := context.Background()

	var evt events.AnswerTranscribed
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse transcribed event", "error", err)
		return
	}

	answerID, err := uuid.Parse(evt.AnswerID)
	if err != nil {
		p.logger.Error("invalid answer id in event", "answer_id", evt.AnswerID, "error", err)
		return
	}

	if _, err := p.AnalyzeAnswer(ctx, answerID); err != nil {
		p.logger.Error("analysis failed", "answer_id", answerID, "error", err)
	}
}
