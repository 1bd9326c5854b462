package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parlance-ai/parlance/internal/transcript"
)

type Answer struct {
	ID         uuid.UUID                     `json:"id"`
	SessionID  uuid.UUID                     `json:"session_id"`
	UserID     uuid.UUID                     `json:"user_id"`
	QuestionNo int                           `json:"question_no"`
	Transcript *transcript.RecognitionResult `json:"transcript,omitempty"`
	Metrics    *transcript.Metrics           `json:"stt_metrics,omitempty"`
	Analysis   json.RawMessage               `json:"analysis,omitempty"`
	CreatedAt  time.Time                     `json:"created_at"`
}

type CreateAnswer struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	QuestionNo int
	Transcript *transcript.RecognitionResult
	Metrics    *transcript.Metrics
}

func (s *Store) CreateAnswer(ctx context.Context, in CreateAnswer) (Answer, error) {
	a := Answer{
		ID:         uuid.New(),
		SessionID:  in.SessionID,
		UserID:     in.UserID,
		QuestionNo: in.QuestionNo,
		Transcript: in.Transcript,
		Metrics:    in.Metrics,
		CreatedAt:  time.Now().UTC(),
	}

	var tr, me []byte
	var err error
	if in.Transcript != nil {
		if tr, err = json.Marshal(in.Transcript); err != nil {
			return Answer{}, fmt.Errorf("marshal transcript: %w", err)
		}
	}
	if in.Metrics != nil {
		if me, err = json.Marshal(in.Metrics); err != nil {
			return Answer{}, fmt.Errorf("marshal metrics: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO answers (id, session_id, user_id, question_no, transcript, stt_metrics, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.SessionID, a.UserID, a.QuestionNo, tr, me, a.CreatedAt,
	)
	if err != nil {
		return Answer{}, fmt.Errorf("insert answer: %w", err)
	}
	return a, nil
}

func (s *Store) GetAnswer(ctx context.Context, id uuid.UUID) (Answer, error) {
	var (
		a      Answer
		tr, me []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, user_id, question_no, transcript, stt_metrics, analysis, created_at
		FROM answers WHERE id = $1`, id,
	).Scan(&a.ID, &a.SessionID, &a.UserID, &a.QuestionNo, &tr, &me, &a.Analysis, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Answer{}, fmt.Errorf("answer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Answer{}, fmt.Errorf("select answer: %w", err)
	}

	if len(tr) > 0 {
		a.Transcript = &transcript.RecognitionResult{}
		if err := json.Unmarshal(tr, a.Transcript); err != nil {
			return Answer{}, fmt.Errorf("parse transcript: %w", err)
		}
	}
	if len(me) > 0 {
		a.Metrics = &transcript.Metrics{}
		if err := json.Unmarshal(me, a.Metrics); err != nil {
			return Answer{}, fmt.Errorf("parse metrics: %w", err)
		}
	}
	return a, nil
}

// SaveAnalysis replaces the stored analysis for an answer. Re-analysis
// overwrites rather than appends.
func (s *Store) SaveAnalysis(ctx context.Context, answerID uuid.UUID, analysis any) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE answers SET analysis = $1 WHERE id = $2`, payload, answerID,
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("answer %s: %w", answerID, ErrNotFound)
	}
	return nil
}

// ListSessionAnswers returns a session's answers in question order.
func (s *Store) ListSessionAnswers(ctx context.Context, sessionID uuid.UUID) ([]Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, user_id, question_no, transcript, stt_metrics, analysis, created_at
		FROM answers
		WHERE session_id = $1
		ORDER BY question_no, created_at`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []Answer
	for rows.Next() {
		var (
			a      Answer
			tr, me []byte
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.UserID, &a.QuestionNo, &tr, &me, &a.Analysis, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if len(tr) > 0 {
			a.Transcript = &transcript.RecognitionResult{}
			if err := json.Unmarshal(tr, a.Transcript); err != nil {
				return nil, fmt.Errorf("parse transcript: %w", err)
			}
		}
		if len(me) > 0 {
			a.Metrics = &transcript.Metrics{}
			if err := json.Unmarshal(me, a.Metrics); err != nil {
				return nil, fmt.Errorf("parse metrics: %w", err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
