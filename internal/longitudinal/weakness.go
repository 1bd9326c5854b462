// Package longitudinal computes read-side report cards over a user's
// accumulated answer history in the embedding index: recurring
// weaknesses, severity-score evolution and acoustic metric changes.
// Cards are recomputed on every request and never persisted.
package longitudinal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/parlance-ai/parlance/internal/index"
	"github.com/parlance-ai/parlance/internal/label"
)

// EvidenceStrategy selects how evidence sentences are picked for a
// weakness finding.
type EvidenceStrategy string

const (
	// EvidenceRecent surfaces the most recent occurrences.
	EvidenceRecent EvidenceStrategy = "recent"
	// EvidenceFrequent surfaces the most repeated distinct phrasings,
	// ties broken by recency.
	EvidenceFrequent EvidenceStrategy = "frequent"
)

const (
	minWeaknessSessions = 3
	maxWeaknesses       = 3
	maxEvidence         = 3
	maxSimilarAnswers   = 2
	trendBand           = 0.2
)

type SimilarAnswer struct {
	AnswerID   uuid.UUID `json:"answer_id"`
	Text       string    `json:"text"`
	Similarity float64   `json:"similarity"`
}

type WeaknessFinding struct {
	Category            string          `json:"category"`
	DisplayName         string          `json:"display_name"`
	OccurrenceCount     int             `json:"occurrence_count"`
	AverageScore        float64         `json:"average_score"`
	Trend               string          `json:"trend"`
	EvidenceSentences   []string        `json:"evidence_sentences"`
	SimilarPastAnswers  []SimilarAnswer `json:"similar_past_answers"`
	ImprovementGuidance string          `json:"improvement_guidance"`
}

type WeaknessCard struct {
	TotalSessions int               `json:"total_sessions"`
	HasEnoughData bool              `json:"has_enough_data"`
	TopWeaknesses []WeaknessFinding `json:"top_weaknesses"`
	Summary       string            `json:"summary"`
}

// Analyzer runs the longitudinal read-side computations over the index.
type Analyzer struct {
	index  index.EmbeddingIndex
	logger *slog.Logger
}

func New(idx index.EmbeddingIndex, logger *slog.Logger) *Analyzer {
	return &Analyzer{index: idx, logger: logger}
}

// Weakness mines the user's sentence records for recurring category
// flags. totalSessions is the user's completed-session count; below
// the gate the card reports not-enough-data with no findings.
func (a *Analyzer) Weakness(ctx context.Context, userID uuid.UUID, totalSessions int, strategy EvidenceStrategy) (WeaknessCard, error) {
	card := WeaknessCard{TotalSessions: totalSessions}
	if totalSessions < minWeaknessSessions {
		card.Summary = notEnoughSessionsCopy(totalSessions, minWeaknessSessions)
		return card, nil
	}
	sentences, err := a.index.Get(ctx, index.Filter{UserID: userID, Type: index.TypeSentence})
	if err != nil {
		return WeaknessCard{}, fmt.Errorf("load sentence records: %w", err)
	}
	if len(sentences) == 0 {
		card.Summary = noAnalyzableDataCopy()
		return card, nil
	}
	card.HasEnoughData = true

	fullAnswers, err := a.index.Get(ctx, index.Filter{UserID: userID, Type: index.TypeFullAnswer})
	if err != nil {
		return WeaknessCard{}, fmt.Errorf("load answer records: %w", err)
	}

	byCategory := groupFlagged(sentences)
	for _, cat := range rankCategories(byCategory) {
		occ := byCategory[cat]
		finding := WeaknessFinding{
			Category:            cat,
			DisplayName:         label.DisplayName(cat),
			OccurrenceCount:     len(occ),
			AverageScore:        averageScore(fullAnswers, cat),
			Trend:               trendPhrase(occ),
			EvidenceSentences:   pickEvidence(occ, strategy),
			ImprovementGuidance: label.ImprovementGuide(cat),
		}
		finding.SimilarPastAnswers = a.similarAnswers(ctx, userID, occ)
		card.TopWeaknesses = append(card.TopWeaknesses, finding)
		if len(card.TopWeaknesses) == maxWeaknesses {
			break
		}
	}

	card.Summary = weaknessSummaryCopy(card)
	return card, nil
}

// groupFlagged buckets sentence records by every category whose
// "_label" metadata flag is set. Records arrive oldest first and each
// bucket preserves that order.
func groupFlagged(sentences []index.Record) map[string][]index.Record {
	byCategory := make(map[string][]index.Record)
	for _, r := range sentences {
		for key, val := range r.Meta {
			cat, ok := strings.CutSuffix(key, "_label")
			if !ok || val != 1 {
				continue
			}
			byCategory[cat] = append(byCategory[cat], r)
		}
	}
	return byCategory
}

// rankCategories orders categories by occurrence count descending,
// name ascending on ties so output is stable.
func rankCategories(byCategory map[string][]index.Record) []string {
	cats := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		ni, nj := len(byCategory[cats[i]]), len(byCategory[cats[j]])
		if ni != nj {
			return ni > nj
		}
		return cats[i] < cats[j]
	})
	return cats
}

// averageScore is the mean of the category's score over the answers
// that carry it.
func averageScore(fullAnswers []index.Record, category string) float64 {
	key := category + "_score"
	var sum float64
	var n int
	for _, r := range fullAnswers {
		if v, ok := r.Meta[key]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// trendPhrase splits the occurrences at the temporal midpoint and
// compares the half counts: growth beyond 20% either way reads as a
// trend, anything inside the band is stable.
func trendPhrase(occ []index.Record) string {
	if len(occ) < 2 {
		return "stable"
	}
	first := occ[0].CreatedAt
	last := occ[len(occ)-1].CreatedAt
	if !last.After(first) {
		return "stable"
	}
	mid := first.Add(last.Sub(first) / 2)

	var earlier, recent int
	for _, r := range occ {
		if r.CreatedAt.After(mid) {
			recent++
		} else {
			earlier++
		}
	}
	if earlier == 0 {
		if recent > 0 {
			return "increasing"
		}
		return "stable"
	}
	growth := float64(recent-earlier) / float64(earlier)
	switch {
	case growth > trendBand:
		return "increasing"
	case growth < -trendBand:
		return "decreasing"
	default:
		return "stable"
	}
}

func pickEvidence(occ []index.Record, strategy EvidenceStrategy) []string {
	if strategy == EvidenceFrequent {
		return frequentEvidence(occ)
	}
	return recentEvidence(occ)
}

// recentEvidence returns up to three texts, most recent first.
func recentEvidence(occ []index.Record) []string {
	out := make([]string, 0, maxEvidence)
	for i := len(occ) - 1; i >= 0 && len(out) < maxEvidence; i-- {
		out = append(out, occ[i].Text)
	}
	return out
}

// frequentEvidence returns up to three distinct texts ranked by how
// often the user repeats them, recency breaking ties. Surfacing the
// repeated phrasing matters more than the latest hit when a user
// leans on the same crutch sentence.
func frequentEvidence(occ []index.Record) []string {
	counts := make(map[string]int)
	lastSeen := make(map[string]int)
	order := []string{}
	for i, r := range occ {
		if _, ok := counts[r.Text]; !ok {
			order = append(order, r.Text)
		}
		counts[r.Text]++
		lastSeen[r.Text] = i
	}
	sort.Slice(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return lastSeen[order[i]] > lastSeen[order[j]]
	})
	if len(order) > maxEvidence {
		order = order[:maxEvidence]
	}
	return order
}

// similarAnswers finds up to two past full answers semantically close
// to the category's most recent flagged sentence. Failures degrade to
// an empty list; the weakness card is still useful without them.
func (a *Analyzer) similarAnswers(ctx context.Context, userID uuid.UUID, occ []index.Record) []SimilarAnswer {
	if len(occ) == 0 {
		return nil
	}
	seed := occ[len(occ)-1]
	if len(seed.Embedding) == 0 {
		return nil
	}

	matches, err := a.index.Query(ctx, seed.Embedding, index.Filter{
		UserID: userID,
		Type:   index.TypeFullAnswer,
	}, maxSimilarAnswers+1)
	if err != nil {
		a.logger.Warn("similar answer lookup failed", "user_id", userID, "error", err)
		return nil
	}

	out := make([]SimilarAnswer, 0, maxSimilarAnswers)
	for _, m := range matches {
		if m.AnswerID == seed.AnswerID {
			continue
		}
		out = append(out, SimilarAnswer{
			AnswerID:   m.AnswerID,
			Text:       m.Text,
			Similarity: m.Similarity,
		})
		if len(out) == maxSimilarAnswers {
			break
		}
	}
	return out
}
