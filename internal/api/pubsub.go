package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
)

const maxConcurrent = 100

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type NotifierConfig struct {
	Redis  Redis
	Prefix string
}

// Notifier mirrors domain events onto Redis channels so that other processes
// can push them to clients:
//
//	<prefix>:session:<code>  every event of a session
//	<prefix>:user:<userId>   the final standing of each participant
type Notifier struct {
	redis  Redis
	prefix string
}

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func NewNotifier(c NotifierConfig) *Notifier {
	return &Notifier{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (n *Notifier) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameSessionStarted, func(ctx context.Context, e event.Event) error {
		s := e.(domain.EventSessionStarted).Session
		return n.publishSession(ctx, s.SessionCode, e.Name(), map[string]any{
			"currentQuestionIndex": s.CurrentQuestionIndex,
			"questionCount":        len(s.Questions),
			"questionStartedAt":    s.QuestionStartedAt,
		})
	})

	eb.Subscribe(domain.EventNameParticipantJoined, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventParticipantJoined)
		return n.publishSession(ctx, ev.SessionCode, e.Name(), map[string]any{
			"userId":   ev.Participant.UserID,
			"username": ev.Participant.Username,
			"avatar":   ev.Participant.Avatar,
		})
	})

	eb.Subscribe(domain.EventNameAnswerSubmitted, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventAnswerSubmitted)
		// The answer itself stays private while the question is open.
		return n.publishSession(ctx, ev.SessionCode, e.Name(), map[string]any{
			"userId":     ev.UserID,
			"questionId": ev.Record.QuestionID,
		})
	})

	eb.Subscribe(domain.EventNameQuestionAdvanced, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventQuestionAdvanced)
		return n.publishSession(ctx, ev.SessionCode, e.Name(), map[string]any{
			"currentQuestionIndex": ev.CurrentQuestionIndex,
		})
	})

	eb.Subscribe(domain.EventNameSessionCompleted, func(ctx context.Context, e event.Event) error {
		return n.PublishSessionCompleted(ctx, e.(domain.EventSessionCompleted))
	})
}

// PublishSessionCompleted announces the final leaderboard to the session and
// sends every participant their own entry.
func (n *Notifier) PublishSessionCompleted(ctx context.Context, e domain.EventSessionCompleted) error {
	l := leaderboard.Build(e.Session)

	if err := n.publishSession(ctx, l.SessionCode, e.Name(), map[string]any{
		"forced":      e.Forced,
		"leaderboard": l.Entries,
	}); err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range l.Entries {
		eg.Go(func() error {
			return n.publish(ctx, fmt.Sprintf("%s:user:%s", n.prefix, entry.UserID), e.Name(), map[string]any{
				"sessionCode": l.SessionCode,
				"entry":       entry,
			})
		})
	}

	return eg.Wait()
}

func (n *Notifier) publishSession(ctx context.Context, code, event string, data any) error {
	return n.publish(ctx, fmt.Sprintf("%s:session:%s", n.prefix, code), event, data)
}

func (n *Notifier) publish(ctx context.Context, channel, event string, data any) error {
	b, err := json.Marshal(Notification{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return n.redis.Publish(ctx, channel, b).Err()
}
