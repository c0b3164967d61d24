package api_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

func TestNotifier_PublishSessionCompleted(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)

	ps := client.Subscribe(ctx, "quiz:session:123456", "quiz:user:u1", "quiz:user:u2")
	t.Cleanup(func() { _ = ps.Close() })
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	n := api.NewNotifier(api.NotifierConfig{Redis: client, Prefix: "quiz"})
	err = n.PublishSessionCompleted(ctx, domain.EventSessionCompleted{
		Session: &domain.Session{
			SessionCode: "123456",
			Status:      domain.StatusCompleted,
			Participants: map[string]*domain.Participant{
				"u1": {UserID: "u1", Username: "Ann", Score: 30},
				"u2": {UserID: "u2", Username: "Bob", Score: 10},
			},
		},
		Forced: true,
	})
	require.NoError(t, err)

	got := receive(t, ps, 3)

	session := got["quiz:session:123456"]
	assert.Equal(t, domain.EventNameSessionCompleted, session.Event)
	data := session.Data.(map[string]any)
	assert.Equal(t, true, data["forced"])
	assert.Len(t, data["leaderboard"], 2)

	for user, rank := range map[string]float64{"u1": 1, "u2": 2} {
		msg := got["quiz:user:"+user]
		entry := msg.Data.(map[string]any)["entry"].(map[string]any)
		assert.Equal(t, user, entry["userId"])
		assert.Equal(t, rank, entry["rank"])
	}
}

func TestNotifier_Subscribe(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)

	ps := client.Subscribe(ctx, "quiz:session:654321")
	t.Cleanup(func() { _ = ps.Close() })
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	eb := event.NewBus(event.Config{})
	t.Cleanup(eb.Stop)
	api.NewNotifier(api.NotifierConfig{Redis: client, Prefix: "quiz"}).Subscribe(eb)

	eb.Publish(ctx, domain.EventAnswerSubmitted{
		SessionCode: "654321",
		UserID:      "u1",
		Record:      domain.AnswerRecord{QuestionID: "q1", AnswerGiven: "secret", Correct: true},
	})

	got := receive(t, ps, 1)["quiz:session:654321"]
	assert.Equal(t, domain.EventNameAnswerSubmitted, got.Event)
	assert.Equal(t, map[string]any{"userId": "u1", "questionId": "q1"}, got.Data)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func receive(t *testing.T, ps *redis.PubSub, n int) map[string]api.Notification {
	t.Helper()

	got := make(map[string]api.Notification, n)
	ch := ps.Channel()
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case msg := <-ch:
			var no api.Notification
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &no))
			got[msg.Channel] = no
		case <-timeout:
			t.Fatalf("received %d of %d notifications", len(got), n)
		}
	}

	return got
}
