package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
)

const maxTxRetries = 50

// Redis stores each session as one JSON value, so a read never sees a partial write.
// Updates run under WATCH and are retried when another writer wins.
//
// Keys:
//
//	<prefix>:session:<id>  session JSON
//	<prefix>:code:<code>   id of the newest session using the code
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisConfig struct {
	Client redis.UniversalClient
	Prefix string
	// TTL expires session keys. Zero keeps them forever.
	TTL time.Duration
}

func NewRedis(c RedisConfig) *Redis {
	return &Redis{
		client: c.Client,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}
}

func (r *Redis) Create(ctx context.Context, s *domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	codeKey := r.codeKey(s.SessionCode)
	txf := func(tx *redis.Tx) error {
		id, err := tx.Get(ctx, codeKey).Result()
		switch {
		case err == nil:
			cur, err := r.load(ctx, tx, r.sessionKey(id))
			if err != nil && !stderrors.Is(err, ErrNotFound) {
				return err
			}
			if cur != nil && cur.Status != domain.StatusCompleted {
				return ErrCodeTaken
			}
		case !stderrors.Is(err, redis.Nil):
			return fmt.Errorf("get code: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.sessionKey(s.SessionID), b, r.ttl)
			p.Set(ctx, codeKey, s.SessionID, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, codeKey)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrContention
}

func (r *Redis) Get(ctx context.Context, code string) (*domain.Session, error) {
	id, err := r.idByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return r.load(ctx, r.client, r.sessionKey(id))
}

func (r *Redis) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.load(ctx, r.client, r.sessionKey(id))
}

func (r *Redis) Update(ctx context.Context, code string, fn UpdateFunc) (*domain.Session, error) {
	id, err := r.idByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	key := r.sessionKey(id)

	var next *domain.Session
	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}

		if err := fn(s); err != nil {
			return err
		}

		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		next = s
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}

	return nil, ErrContention
}

func (r *Redis) idByCode(ctx context.Context, code string) (string, error) {
	id, err := r.client.Get(ctx, r.codeKey(code)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get code: %w", err)
	}

	return id, nil
}

func (r *Redis) load(ctx context.Context, c getter, key string) (*domain.Session, error) {
	b, err := c.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &s, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *Redis) codeKey(code string) string {
	return fmt.Sprintf("%s:code:%s", r.prefix, code)
}
