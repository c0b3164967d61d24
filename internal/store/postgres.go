package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
)

// Postgres stores sessions in the live_sessions table. Writers take a row lock
// for the duration of the update; readers see the last committed row.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Create(ctx context.Context, s *domain.Session) error {
	const stmt = `
INSERT INTO live_sessions (session_id, session_code, status, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW());`

	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = p.db.Exec(ctx, stmt, s.SessionID, s.SessionCode, string(s.Status), b, s.CreatedAt)
	if isUniqueViolation(err) {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (p *Postgres) Get(ctx context.Context, code string) (*domain.Session, error) {
	const stmt = `
SELECT data FROM live_sessions WHERE session_code = $1
ORDER BY created_at DESC LIMIT 1;`

	return scanSession(p.db.QueryRow(ctx, stmt, code))
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	const stmt = `SELECT data FROM live_sessions WHERE session_id = $1;`

	return scanSession(p.db.QueryRow(ctx, stmt, id))
}

func (p *Postgres) Update(ctx context.Context, code string, fn UpdateFunc) (_ *domain.Session, err error) {
	const (
		selStmt = `
SELECT data FROM live_sessions WHERE session_code = $1
ORDER BY created_at DESC LIMIT 1
FOR UPDATE;`
		updStmt = `UPDATE live_sessions SET status = $2, data = $3, updated_at = NOW() WHERE session_id = $1;`
	)

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, rollback(ctx, tx))
		}
	}()

	s, err := scanSession(tx.QueryRow(ctx, selStmt, code))
	if err != nil {
		return nil, err
	}

	if err := fn(s); err != nil {
		return nil, err
	}

	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	if _, err := tx.Exec(ctx, updStmt, s.SessionID, string(s.Status), b); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var b []byte
	err := row.Scan(&b)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &s, nil
}

// rollback ignores the error of rolling back an already closed transaction.
func rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(ctx); err != nil && !stderrors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}
