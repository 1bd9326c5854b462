// Package similarity surfaces "you've said something like this
// before" hints by matching a just-finished answer against the user's
// past full-answer embeddings.
package similarity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/parlance-ai/parlance/internal/index"
)

const (
	// minOtherSessions is how much history a user needs before a hint
	// is worth showing.
	minOtherSessions = 3
	minSimilarity    = 0.7
	neighborFetch    = 10
)

type Hint struct {
	Message            string    `json:"message"`
	ReferencedAnswerID uuid.UUID `json:"referenced_answer_id"`
	Similarity         float64   `json:"similarity"`
}

type Service struct {
	index  index.EmbeddingIndex
	logger *slog.Logger
}

func New(idx index.EmbeddingIndex, logger *slog.Logger) *Service {
	return &Service{index: idx, logger: logger}
}

// Hint finds the single closest past answer from another session.
// Every failure path, thin history included, returns nil rather than
// an error: a missing hint never breaks a report.
func (s *Service) Hint(ctx context.Context, userID, sessionID uuid.UUID) *Hint {
	records, err := s.index.Get(ctx, index.Filter{UserID: userID, Type: index.TypeFullAnswer})
	if err != nil {
		s.logger.Warn("similarity hint lookup failed", "user_id", userID, "error", err)
		return nil
	}

	seed, ok := firstInSession(records, sessionID)
	if !ok || len(seed.Embedding) == 0 {
		return nil
	}
	if otherSessions(records, sessionID) < minOtherSessions {
		return nil
	}

	matches, err := s.index.Query(ctx, seed.Embedding, index.Filter{
		UserID: userID,
		Type:   index.TypeFullAnswer,
	}, neighborFetch)
	if err != nil {
		s.logger.Warn("similarity hint query failed", "user_id", userID, "error", err)
		return nil
	}

	for _, m := range matches {
		if m.SessionID == sessionID {
			continue
		}
		if m.Similarity < minSimilarity {
			break
		}
		return &Hint{
			Message:            hintMessage(m.Similarity),
			ReferencedAnswerID: m.AnswerID,
			Similarity:         m.Similarity,
		}
	}
	return nil
}

// firstInSession picks the session's earliest full-answer record.
// Records arrive oldest first.
func firstInSession(records []index.Record, sessionID uuid.UUID) (index.Record, bool) {
	for _, r := range records {
		if r.SessionID == sessionID {
			return r, true
		}
	}
	return index.Record{}, false
}

func otherSessions(records []index.Record, sessionID uuid.UUID) int {
	seen := make(map[uuid.UUID]bool)
	for _, r := range records {
		if r.SessionID != sessionID {
			seen[r.SessionID] = true
		}
	}
	return len(seen)
}

func hintMessage(similarity float64) string {
	return fmt.Sprintf("You gave a similar answer before (%.0f%% match).", similarity*100)
}
