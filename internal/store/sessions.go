package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
)

type Session struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Store) CreateSession(ctx context.Context, userID uuid.UUID) (Session, error) {
	sess := Session{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    SessionInProgress,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, status, started_at)
		VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.UserID, sess.Status, sess.StartedAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, status, started_at, completed_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.StartedAt, &sess.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("select session: %w", err)
	}
	return sess, nil
}

func (s *Store) CompleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $1, completed_at = now()
		WHERE id = $2`, SessionCompleted, id,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountCompletedSessions feeds the longitudinal gates: only completed
// sessions count toward a user's history.
func (s *Store) CountCompletedSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM sessions
		WHERE user_id = $1 AND status = $2`, userID, SessionCompleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed sessions: %w", err)
	}
	return n, nil
}

// ListCompletedSessions returns a user's completed sessions oldest first.
func (s *Store) ListCompletedSessions(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, status, started_at, completed_at
		FROM sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY completed_at`, userID, SessionCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
