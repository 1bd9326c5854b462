package index

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process EmbeddingIndex with exact cosine scoring.
// It backs the analyzers' unit tests and small single-node deployments.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *Memory) DeleteByAnswer(_ context.Context, answerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.AnswerID == answerID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *Memory) Get(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range m.records {
		if matches(r, f) {
			out = append(out, r)
		}
	}
	// Stable order: creation time, then ID for deterministic ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Query(_ context.Context, embedding []float64, f Filter, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Match
	for _, r := range m.records {
		if !matches(r, f) {
			continue
		}
		hits = append(hits, Match{
			Record:     r,
			Similarity: cosineSimilarity(embedding, r.Embedding),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len reports the stored record count.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func matches(r Record, f Filter) bool {
	if f.UserID != uuid.Nil && r.UserID != f.UserID {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.QuestionNo != nil && r.QuestionNo != *f.QuestionNo {
		return false
	}
	for key, want := range f.MetaEquals {
		got, ok := r.Meta[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}
