// Package store holds the session repositories. Every implementation serializes
// writers per session and serves readers from committed snapshots.
package store

import (
	"context"
	"errors"

	"github.com/victornm/livequiz/internal/domain"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrCodeTaken = errors.New("session code in use")
	// ErrContention is returned when an optimistic update keeps losing to concurrent writers.
	ErrContention = errors.New("too much contention on session")
)

// UpdateFunc mutates the session in place. Returning an error aborts the update
// and nothing is written. It may run more than once, so it must not have side
// effects outside the session it is given.
type UpdateFunc func(s *domain.Session) error

// Repository is the durable session store.
//
// Sessions returned by Get, GetByID and Update are committed snapshots and must
// be treated as read-only.
type Repository interface {
	// Create stores a new session. It fails with ErrCodeTaken when a
	// non-completed session already uses the code.
	Create(ctx context.Context, s *domain.Session) error
	// Get returns the newest session with the code.
	Get(ctx context.Context, code string) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Update applies fn atomically to the newest session with the code and
	// returns the committed result.
	Update(ctx context.Context, code string, fn UpdateFunc) (*domain.Session, error)
}
