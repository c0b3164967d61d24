package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/store"
)

var errAbort = fmt.Errorf("abort")

// testRepository runs the behaviour every Repository must share.
func testRepository(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	tests := map[string]func(t *testing.T, r store.Repository){
		"created session is readable by code and id": func(t *testing.T, r store.Repository) {
			ctx := context.Background()
			s := newSession("11111111-1111-7111-8111-111111111111", "123456")
			require.NoError(t, r.Create(ctx, s))

			got, err := r.Get(ctx, "123456")
			require.NoError(t, err)
			assertSameSession(t, s, got)

			got, err = r.GetByID(ctx, s.SessionID)
			require.NoError(t, err)
			assertSameSession(t, s, got)
		},

		"unknown session is not found": func(t *testing.T, r store.Repository) {
			ctx := context.Background()

			_, err := r.Get(ctx, "000000")
			require.ErrorIs(t, err, store.ErrNotFound)

			_, err = r.GetByID(ctx, "22222222-2222-7222-8222-222222222222")
			require.ErrorIs(t, err, store.ErrNotFound)

			_, err = r.Update(ctx, "000000", func(*domain.Session) error { return nil })
			require.ErrorIs(t, err, store.ErrNotFound)
		},

		"live code cannot be reused": func(t *testing.T, r store.Repository) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, newSession("11111111-1111-7111-8111-111111111111", "123456")))

			err := r.Create(ctx, newSession("33333333-3333-7333-8333-333333333333", "123456"))
			require.ErrorIs(t, err, store.ErrCodeTaken)
		},

		"completed code can be reused and old session stays reachable by id": func(t *testing.T, r store.Repository) {
			ctx := context.Background()
			old := newSession("11111111-1111-7111-8111-111111111111", "123456")
			require.NoError(t, r.Create(ctx, old))

			_, err := r.Update(ctx, "123456", func(s *domain.Session) error {
				s.Status = domain.StatusCompleted
				return nil
			})
			require.NoError(t, err)

			fresh := newSession("33333333-3333-7333-8333-333333333333", "123456")
			fresh.CreatedAt = old.CreatedAt.Add(time.Minute)
			require.NoError(t, r.Create(ctx, fresh))

			got, err := r.Get(ctx, "123456")
			require.NoError(t, err)
			assert.Equal(t, fresh.SessionID, got.SessionID)
			assert.Equal(t, domain.StatusLobby, got.Status)

			got, err = r.GetByID(ctx, old.SessionID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCompleted, got.Status)
		},

		"failed update writes nothing": func(t *testing.T, r store.Repository) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, newSession("11111111-1111-7111-8111-111111111111", "123456")))

			_, err := r.Update(ctx, "123456", func(s *domain.Session) error {
				s.Status = domain.StatusActive
				return errAbort
			})
			require.ErrorIs(t, err, errAbort)

			got, err := r.Get(ctx, "123456")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusLobby, got.Status)
		},

		"snapshots are not changed by later updates": func(t *testing.T, r store.Repository) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, newSession("11111111-1111-7111-8111-111111111111", "123456")))

			before, err := r.Get(ctx, "123456")
			require.NoError(t, err)

			_, err = r.Update(ctx, "123456", func(s *domain.Session) error {
				s.Participants["u1"].Score = 99
				return nil
			})
			require.NoError(t, err)

			assert.Equal(t, 0, before.Participants["u1"].Score)
		},

		"concurrent updates are serialized": func(t *testing.T, r store.Repository) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, newSession("11111111-1111-7111-8111-111111111111", "123456")))

			const n = 20
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := r.Update(ctx, "123456", func(s *domain.Session) error {
						s.Participants["u1"].Score++
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := r.Get(ctx, "123456")
			require.NoError(t, err)
			assert.Equal(t, n, got.Participants["u1"].Score)
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tt(t, newRepo(t))
		})
	}
}

func newSession(id, code string) *domain.Session {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Session{
		SessionID:   id,
		SessionCode: code,
		QuizID:      "quiz-1",
		QuizTitle:   "Capitals",
		HostUserID:  "host",
		Status:      domain.StatusLobby,
		Settings: domain.Settings{
			QuestionTimeSeconds:  20,
			SpeedBonusMultiplier: 0.5,
			ShowLeaderboard:      true,
		},
		Questions: []domain.Question{
			{ID: "q1", Text: "Capital of France?", Type: domain.QuestionTypeShortAnswer, CorrectAnswer: "Paris", Points: 10},
		},
		CreatedAt: created,
		Participants: map[string]*domain.Participant{
			"u1": {UserID: "u1", Username: "alice", JoinedAt: created, Answers: map[string]domain.AnswerRecord{}},
		},
	}
}

func assertSameSession(t *testing.T, want, got *domain.Session) {
	t.Helper()

	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.SessionCode, got.SessionCode)
	assert.Equal(t, want.HostUserID, got.HostUserID)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Settings, got.Settings)
	assert.Equal(t, want.Questions, got.Questions)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.Contains(t, got.Participants, "u1")
	assert.Equal(t, "alice", got.Participants["u1"].Username)
}
