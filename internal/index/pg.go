package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is the pgvector-backed EmbeddingIndex. Expected schema:
//
//	CREATE TABLE embedding_records (
//	    id             text PRIMARY KEY,
//	    record_type    text NOT NULL,
//	    user_id        uuid NOT NULL,
//	    session_id     uuid NOT NULL,
//	    answer_id      uuid NOT NULL,
//	    question_no    int NOT NULL DEFAULT 0,
//	    sentence_index int NOT NULL DEFAULT 0,
//	    content        text NOT NULL,
//	    embedding      vector NOT NULL,
//	    meta           jsonb NOT NULL DEFAULT '{}',
//	    created_at     timestamptz NOT NULL
//	);
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (p *PG) Upsert(ctx context.Context, records []Record) error {
	for _, r := range records {
		meta, err := json.Marshal(r.Meta)
		if err != nil {
			return fmt.Errorf("marshal meta for %s: %w", r.ID, err)
		}
		_, err = p.pool.Exec(ctx, `
			INSERT INTO embedding_records
				(id, record_type, user_id, session_id, answer_id, question_no, sentence_index, content, embedding, meta, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				record_type = EXCLUDED.record_type,
				session_id = EXCLUDED.session_id,
				question_no = EXCLUDED.question_no,
				sentence_index = EXCLUDED.sentence_index,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				meta = EXCLUDED.meta,
				created_at = EXCLUDED.created_at`,
			r.ID, string(r.Type), r.UserID, r.SessionID, r.AnswerID,
			r.QuestionNo, r.SentenceIndex, r.Text, pgVector(r.Embedding), meta, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}
	return nil
}

func (p *PG) DeleteByAnswer(ctx context.Context, answerID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM embedding_records WHERE answer_id = $1`, answerID)
	if err != nil {
		return fmt.Errorf("delete records for answer %s: %w", answerID, err)
	}
	return nil
}

func (p *PG) Get(ctx context.Context, f Filter) ([]Record, error) {
	where, args := buildWhere(f)
	query := `
		SELECT id, record_type, user_id, session_id, answer_id, question_no, sentence_index, content, embedding::text, meta, created_at
		FROM embedding_records ` + where + `
		ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, _, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (p *PG) Query(ctx context.Context, embedding []float64, f Filter, k int) ([]Match, error) {
	where, args := buildWhere(f)
	probe := len(args) + 1
	limit := len(args) + 2
	query := fmt.Sprintf(`
		SELECT id, record_type, user_id, session_id, answer_id, question_no, sentence_index, content, embedding::text, meta, created_at,
		       1 - (embedding <=> $%d) AS similarity
		FROM embedding_records %s
		ORDER BY embedding <=> $%d
		LIMIT $%d`, probe, where, probe, limit)

	args = append(args, pgVector(embedding), k)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		r, sim, err := scanRecordWithSim(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, Match{Record: r, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func buildWhere(f Filter) (string, []any) {
	clauses := []string{}
	args := []any{}
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.UserID != uuid.Nil {
		add("user_id = $%d", f.UserID)
	}
	if f.Type != "" {
		add("record_type = $%d", string(f.Type))
	}
	if f.QuestionNo != nil {
		add("question_no = $%d", *f.QuestionNo)
	}
	// Meta keys are caller data, so they bind as parameters like the
	// values do.
	for key, val := range f.MetaEquals {
		args = append(args, key, val)
		clauses = append(clauses, fmt.Sprintf("(meta->>$%d)::float8 = $%d", len(args)-1, len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

type scanFn func(dest ...any) error

func scanRecord(scan scanFn) (Record, float64, error) {
	var (
		r        Record
		recType  string
		embText  string
		metaJSON []byte
	)
	err := scan(&r.ID, &recType, &r.UserID, &r.SessionID, &r.AnswerID,
		&r.QuestionNo, &r.SentenceIndex, &r.Text, &embText, &metaJSON, &r.CreatedAt)
	if err != nil {
		return Record{}, 0, fmt.Errorf("scan record: %w", err)
	}
	return finishScan(r, recType, embText, metaJSON, 0)
}

func scanRecordWithSim(scan scanFn) (Record, float64, error) {
	var (
		r        Record
		recType  string
		embText  string
		metaJSON []byte
		sim      float64
	)
	err := scan(&r.ID, &recType, &r.UserID, &r.SessionID, &r.AnswerID,
		&r.QuestionNo, &r.SentenceIndex, &r.Text, &embText, &metaJSON, &r.CreatedAt, &sim)
	if err != nil {
		return Record{}, 0, fmt.Errorf("scan record: %w", err)
	}
	return finishScan(r, recType, embText, metaJSON, sim)
}

func finishScan(r Record, recType, embText string, metaJSON []byte, sim float64) (Record, float64, error) {
	r.Type = RecordType(recType)

	emb, err := parsePgVector(embText)
	if err != nil {
		return Record{}, 0, fmt.Errorf("parse embedding for %s: %w", r.ID, err)
	}
	r.Embedding = emb

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &r.Meta); err != nil {
			return Record{}, 0, fmt.Errorf("parse meta for %s: %w", r.ID, err)
		}
	}
	return r, sim, nil
}
