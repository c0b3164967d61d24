// Package content loads quiz content and freezes it into session snapshots.
package content

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/victornm/livequiz/internal/domain"
)

// DefaultPoints is the worth of a question whose content does not set points.
const DefaultPoints = 1000

var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrNoQuestions  = errors.New("quiz has no questions")
)

// Store is the quiz content store. It is only consulted when a session is created.
type Store interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Loader produces immutable question snapshots. Concurrent loads of the same quiz share one store call.
type Loader struct {
	store Store
	sf    singleflight.Group
}

func NewLoader(s Store) *Loader {
	return &Loader{store: s}
}

// Snapshot loads a quiz and returns a private deep copy with normalized questions.
func (l *Loader) Snapshot(ctx context.Context, quizID string) (domain.Quiz, error) {
	// The shared load must not die with whichever caller happened to start it.
	ch := l.sf.DoChan(quizID, func() (any, error) {
		return l.store.LoadQuiz(context.WithoutCancel(ctx), quizID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return domain.Quiz{}, ctx.Err()
	}
	if res.Err != nil {
		return domain.Quiz{}, res.Err
	}

	q := res.Val.(domain.Quiz)
	if len(q.Questions) == 0 {
		return domain.Quiz{}, ErrNoQuestions
	}

	questions, err := freeze(q.Questions)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, err)
	}

	return domain.Quiz{
		ID:        quizID,
		Title:     q.Title,
		Questions: questions,
	}, nil
}

func freeze(src []domain.Question) ([]domain.Question, error) {
	out := make([]domain.Question, len(src))
	seen := make(map[string]struct{}, len(src))

	for i, q := range src {
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}

		if q.Type == "" {
			if len(q.Options) > 0 {
				q.Type = domain.QuestionTypeMultipleChoice
			} else {
				q.Type = domain.QuestionTypeShortAnswer
			}
		}
		if q.Points <= 0 {
			q.Points = DefaultPoints
		}

		q.Options = append([]domain.Option(nil), q.Options...)
		out[i] = q
	}

	return out, nil
}
