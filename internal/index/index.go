// Package index is the per-user, per-answer semantic memory: text,
// embedding vector and flat scalar metadata, supporting upsert-by-key,
// filtered retrieval and nearest-neighbor query. The longitudinal
// analyzer and the similarity hint service read from it; the analysis
// pipeline writes to it.
package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parlance-ai/parlance/internal/label"
	"github.com/parlance-ai/parlance/internal/transcript"
)

// RecordType distinguishes whole-answer records from per-sentence ones.
type RecordType string

const (
	TypeFullAnswer RecordType = "full_answer"
	TypeSentence   RecordType = "sentence"
)

// Record is one stored embedding with its metadata. Meta values are
// restricted to scalars: the filter language only supports scalar
// predicates, so nested label objects are flattened before they get
// here.
type Record struct {
	ID            string
	Type          RecordType
	UserID        uuid.UUID
	SessionID     uuid.UUID
	AnswerID      uuid.UUID
	QuestionNo    int
	SentenceIndex int
	Text          string
	Embedding     []float64
	Meta          map[string]float64
	CreatedAt     time.Time
}

// Filter scopes Get and Query. UserID is always required; zero-value
// fields are ignored.
type Filter struct {
	UserID     uuid.UUID
	Type       RecordType
	QuestionNo *int
	// MetaEquals matches records whose metadata carries exactly these
	// scalar values, e.g. {"filler_label": 1}.
	MetaEquals map[string]float64
}

// Match is a query hit with its cosine similarity to the probe.
type Match struct {
	Record
	Similarity float64
}

// EmbeddingIndex is the vector memory contract. The pgvector-backed
// implementation is the production store; the in-memory one backs
// tests and the analyzers' unit coverage.
type EmbeddingIndex interface {
	Upsert(ctx context.Context, records []Record) error
	DeleteByAnswer(ctx context.Context, answerID uuid.UUID) error
	Get(ctx context.Context, f Filter) ([]Record, error)
	Query(ctx context.Context, embedding []float64, f Filter, k int) ([]Match, error)
}

// AnswerUpsert is everything needed to (re)index one analyzed answer.
type AnswerUpsert struct {
	UserID     uuid.UUID
	SessionID  uuid.UUID
	AnswerID   uuid.UUID
	QuestionNo int
	FullText   string
	Sentences  []transcript.Sentence
	// SentenceLabels returns the reconciled flags for a sentence index.
	SentenceLabels func(index int) label.Set
	OverallLabels  label.Set
	Counts         map[string]int
	STTMetrics     map[string]float64
	CreatedAt      time.Time
}

// FullAnswerID is the stable record key for an answer's full-text record.
func FullAnswerID(userID, answerID uuid.UUID) string {
	return fmt.Sprintf("user_%s_answer_%s_full", userID, answerID)
}

// SentenceID is the stable record key for one sentence of an answer.
func SentenceID(userID, answerID uuid.UUID, idx int) string {
	return fmt.Sprintf("user_%s_answer_%s_sent_%d", userID, answerID, idx)
}

// UpsertAnswer deletes any records previously stored for the answer,
// then inserts one full-answer record plus one record per non-empty
// sentence. Delete before insert is the idempotence contract:
// re-analysis must never leave stale or duplicate records behind.
func UpsertAnswer(ctx context.Context, idx EmbeddingIndex, embedder Embedder, in AnswerUpsert) error {
	if err := idx.DeleteByAnswer(ctx, in.AnswerID); err != nil {
		return fmt.Errorf("delete stale records: %w", err)
	}

	fullEmbedding, err := embedder.Embed(ctx, in.FullText)
	if err != nil {
		return fmt.Errorf("embed answer: %w", err)
	}

	fullMeta := map[string]float64{
		"sentence_total": float64(len(in.Sentences)),
	}
	for k, v := range label.Flatten(in.OverallLabels) {
		fullMeta[k] = v
	}
	for cat, count := range in.Counts {
		fullMeta[cat+"_count"] = float64(count)
	}
	for k, v := range in.STTMetrics {
		fullMeta[k] = v
	}

	records := []Record{{
		ID:         FullAnswerID(in.UserID, in.AnswerID),
		Type:       TypeFullAnswer,
		UserID:     in.UserID,
		SessionID:  in.SessionID,
		AnswerID:   in.AnswerID,
		QuestionNo: in.QuestionNo,
		Text:       in.FullText,
		Embedding:  fullEmbedding,
		Meta:       fullMeta,
		CreatedAt:  in.CreatedAt,
	}}

	for _, s := range in.Sentences {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		emb, err := embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed sentence %d: %w", s.Index, err)
		}

		meta := make(map[string]float64)
		if in.SentenceLabels != nil {
			for cat, l := range in.SentenceLabels(s.Index) {
				meta[cat+"_label"] = float64(l.Flag)
			}
		}

		records = append(records, Record{
			ID:            SentenceID(in.UserID, in.AnswerID, s.Index),
			Type:          TypeSentence,
			UserID:        in.UserID,
			SessionID:     in.SessionID,
			AnswerID:      in.AnswerID,
			QuestionNo:    in.QuestionNo,
			SentenceIndex: s.Index,
			Text:          text,
			Embedding:     emb,
			Meta:          meta,
			CreatedAt:     in.CreatedAt,
		})
	}

	if err := idx.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	return nil
}
