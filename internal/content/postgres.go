package content

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
)

// PostgresStore loads quizzes from the `quizzes` table, questions stored as JSONB.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	const stmt = `SELECT title, questions FROM quizzes WHERE id = $1;`

	var (
		q   = domain.Quiz{ID: quizID}
		raw []byte
	)
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(&q.Title, &raw)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	if err := json.Unmarshal(raw, &q.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}

	return q, nil
}

// SaveQuiz upserts a quiz. Used by seeding and tests; the live engine never writes content.
func (s *PostgresStore) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (id, title, questions, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, questions = EXCLUDED.questions, updated_at = NOW();`

	raw, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	if _, err := s.db.Exec(ctx, stmt, q.ID, q.Title, raw); err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}

	return nil
}
