package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPoolSize = 10000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

type Config struct {
	Logger *zap.Logger
	// PoolSize bounds the runs in flight per subscription, so a slow handler
	// only ever blocks its own deliveries.
	PoolSize int
	// Timeout bounds a single handler run.
	Timeout time.Duration
}

// Bus is an in-memory event bus.
type Bus struct {
	log      *zap.Logger
	timeout  time.Duration
	poolSize int
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	subs     map[string][]*subscription
}

type subscription struct {
	h    Handler
	pool chan struct{}
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(c Config) *Bus {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return &Bus{
		log:      c.Logger,
		timeout:  c.Timeout,
		poolSize: c.PoolSize,
		wg:       new(sync.WaitGroup),
		subs:     make(map[string][]*subscription),
	}
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[name] = append(b.subs[name], &subscription{
		h:    h,
		pool: make(chan struct{}, b.poolSize),
	})
}

// Publish an event. Handlers run asynchronously and never fail the publisher.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[e.Name()] {
		b.dispatch(ctx, sub, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, sub *subscription, e Event) {
	b.wg.Add(1)

	sub.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("event: handler panic",
					zap.String("event", e.Name()),
					zap.Error(fmt.Errorf("%v, stack: %s", r, debug.Stack())),
				)
			}

			cancel()
			<-sub.pool
			b.wg.Done()
		}()

		if err := sub.h(ctx, e); err != nil {
			b.log.Error("event: handle event failed",
				zap.String("event", e.Name()),
				zap.Error(err),
			)
		}
	}()
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
