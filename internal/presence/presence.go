// Package presence derives the participant connected flag from request heartbeats.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker records heartbeats. A user is connected while their last heartbeat
// is younger than the tracker's timeout.
type Tracker interface {
	Touch(ctx context.Context, code, userID string) error
	Connected(ctx context.Context, code string, userIDs []string) (map[string]bool, error)
}

// Memory keeps heartbeats in process. Expired heartbeats are swept on Touch at
// most once per timeout, so the map holds roughly one timeout's worth of callers.
type Memory struct {
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	seen      map[string]time.Time
	lastSweep time.Time
}

func NewMemory(timeout time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}

	return &Memory{
		timeout: timeout,
		now:     now,
		seen:    make(map[string]time.Time),
	}
}

func (m *Memory) Touch(_ context.Context, code, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= m.timeout {
		for k, t := range m.seen {
			if now.Sub(t) >= m.timeout {
				delete(m.seen, k)
			}
		}
		m.lastSweep = now
	}

	m.seen[code+"/"+userID] = now
	return nil
}

func (m *Memory) Connected(_ context.Context, code string, userIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		t, ok := m.seen[code+"/"+id]
		out[id] = ok && now.Sub(t) < m.timeout
	}

	return out, nil
}

// Redis keeps one expiring key per (session, user).
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	return &Redis{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (r *Redis) Touch(ctx context.Context, code, userID string) error {
	if err := r.client.Set(ctx, r.key(code, userID), 1, r.timeout).Err(); err != nil {
		return fmt.Errorf("presence: touch: %w", err)
	}
	return nil
}

func (r *Redis) Connected(ctx context.Context, code string, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = r.key(code, id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: mget: %w", err)
	}

	for i, id := range userIDs {
		out[id] = vals[i] != nil
	}

	return out, nil
}

func (r *Redis) key(code, userID string) string {
	return fmt.Sprintf("%s:presence:%s:%s", r.prefix, code, userID)
}
