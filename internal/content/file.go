package content

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/victornm/livequiz/internal/domain"
)

// StaticStore serves quizzes from memory. Useful for tests, demos and file-backed deployments.
type StaticStore struct {
	quizzes map[string]domain.Quiz
}

func NewStaticStore(quizzes map[string]domain.Quiz) *StaticStore {
	return &StaticStore{quizzes: quizzes}
}

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// NewFileStore reads a YAML document of the form `quizzes: [{id, title, questions: [...]}]`.
func NewFileStore(path string) (*StaticStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}

	return ParseYAML(b)
}

func ParseYAML(b []byte) (*StaticStore, error) {
	var f quizFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse quiz file: %w", err)
	}

	m := make(map[string]domain.Quiz, len(f.Quizzes))
	for _, q := range f.Quizzes {
		if q.ID == "" {
			return nil, fmt.Errorf("parse quiz file: quiz without id")
		}
		m[q.ID] = q
	}

	return NewStaticStore(m), nil
}

func (s *StaticStore) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	q, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, ErrQuizNotFound
	}

	return q, nil
}

// Quizzes returns every quiz ordered by id.
func (s *StaticStore) Quizzes() []domain.Quiz {
	qs := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })

	return qs
}
