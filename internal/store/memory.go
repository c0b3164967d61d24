package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/victornm/livequiz/internal/domain"
)

// Memory keeps sessions in process. Writers to one session are serialized by
// that session's mutex; readers load the last committed snapshot without locking.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]*memEntry
	byCode map[string]*memEntry
}

type memEntry struct {
	mu   sync.Mutex
	snap atomic.Pointer[domain.Session]
}

func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]*memEntry),
		byCode: make(map[string]*memEntry),
	}
}

func (m *Memory) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.byCode[s.SessionCode]; ok && e.snap.Load().Status != domain.StatusCompleted {
		return ErrCodeTaken
	}

	e := &memEntry{}
	e.snap.Store(s.Clone())
	m.byID[s.SessionID] = e
	m.byCode[s.SessionCode] = e

	return nil
}

func (m *Memory) Get(_ context.Context, code string) (*domain.Session, error) {
	e, ok := m.entry(m.byCode, code)
	if !ok {
		return nil, ErrNotFound
	}

	return e.snap.Load(), nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*domain.Session, error) {
	e, ok := m.entry(m.byID, id)
	if !ok {
		return nil, ErrNotFound
	}

	return e.snap.Load(), nil
}

func (m *Memory) Update(_ context.Context, code string, fn UpdateFunc) (*domain.Session, error) {
	e, ok := m.entry(m.byCode, code)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.snap.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.snap.Store(next)

	return next, nil
}

func (m *Memory) entry(idx map[string]*memEntry, key string) (*memEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := idx[key]
	return e, ok
}
