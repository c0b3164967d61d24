package content_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/content"
	"github.com/victornm/livequiz/internal/domain"
)

const quizYAML = `
quizzes:
  - id: capitals
    title: Capitals
    questions:
      - id: q1
        text: Capital of France?
        type: SHORT_ANSWER
        correctAnswer: Paris
        points: 10
      - text: 2 + 2?
        options:
          - {id: "0", text: "3"}
          - {id: "1", text: "4"}
        correctAnswer: "1"
  - id: empty
    title: Nothing here
`

func TestLoader_Snapshot(t *testing.T) {
	store, err := content.ParseYAML([]byte(quizYAML))
	require.NoError(t, err)

	l := content.NewLoader(store)

	q, err := l.Snapshot(context.Background(), "capitals")
	require.NoError(t, err)
	require.Len(t, q.Questions, 2)
	assert.Equal(t, "Capitals", q.Title)

	assert.Equal(t, "q1", q.Questions[0].ID)
	assert.Equal(t, 10, q.Questions[0].Points)

	// Missing id, type and points are filled in.
	assert.Equal(t, "q2", q.Questions[1].ID)
	assert.Equal(t, domain.QuestionTypeMultipleChoice, q.Questions[1].Type)
	assert.Equal(t, content.DefaultPoints, q.Questions[1].Points)
}

func TestLoader_SnapshotIsIsolatedFromStore(t *testing.T) {
	src := map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Questions: []domain.Question{
			{ID: "q1", Options: []domain.Option{{ID: "a"}, {ID: "b"}}, CorrectAnswer: "a"},
		}},
	}
	l := content.NewLoader(content.NewStaticStore(src))

	snap, err := l.Snapshot(context.Background(), "quiz-1")
	require.NoError(t, err)

	// Later edits to the authored quiz do not reach the snapshot.
	src["quiz-1"].Questions[0].Options[0].ID = "edited"
	src["quiz-1"].Questions[0].CorrectAnswer = "b"

	assert.Equal(t, "a", snap.Questions[0].Options[0].ID)
	assert.Equal(t, "a", snap.Questions[0].CorrectAnswer)
}

func TestLoader_Errors(t *testing.T) {
	store, err := content.ParseYAML([]byte(quizYAML))
	require.NoError(t, err)
	l := content.NewLoader(store)

	_, err = l.Snapshot(context.Background(), "missing")
	require.ErrorIs(t, err, content.ErrQuizNotFound)

	_, err = l.Snapshot(context.Background(), "empty")
	require.ErrorIs(t, err, content.ErrNoQuestions)

	dup := content.NewLoader(content.NewStaticStore(map[string]domain.Quiz{
		"dup": {Questions: []domain.Question{{ID: "q1"}, {ID: "q1"}}},
	}))
	_, err = dup.Snapshot(context.Background(), "dup")
	require.ErrorContains(t, err, "duplicate question id")
}

func TestLoader_ConcurrentLoadsShareOneCall(t *testing.T) {
	store := &slowStore{release: make(chan struct{})}
	l := content.NewLoader(store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Snapshot(context.Background(), "quiz-1")
			assert.NoError(t, err)
		}()
	}

	// Give the goroutines time to pile up on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.LessOrEqual(t, store.calls.Load(), int32(2))
}

func TestLoader_CanceledCallerDoesNotFailOthers(t *testing.T) {
	store := &ctxStore{started: make(chan struct{}), release: make(chan struct{})}
	l := content.NewLoader(store)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Snapshot(first, "quiz-1")
		firstErr <- err
	}()
	<-store.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := l.Snapshot(context.Background(), "quiz-1")
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(store.release)
	assert.NoError(t, <-secondErr)
}

func TestParseYAML_RejectsQuizWithoutID(t *testing.T) {
	_, err := content.ParseYAML([]byte("quizzes:\n  - title: anonymous\n"))
	require.Error(t, err)
}

type slowStore struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowStore) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.calls.Add(1)
	<-s.release
	return domain.Quiz{ID: quizID, Questions: []domain.Question{{ID: "q1"}}}, nil
}

// ctxStore fails the load when its context is done by the time it is released.
type ctxStore struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *ctxStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	if err := ctx.Err(); err != nil {
		return domain.Quiz{}, err
	}
	return domain.Quiz{ID: quizID, Questions: []domain.Question{{ID: "q1"}}}, nil
}
