//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/auth"
	"github.com/victornm/livequiz/internal/domain"
)

// Run against `livequiz serve --config config.yaml` with Redis on localhost.
const (
	addr      = "http://localhost:8080"
	jwtSecret = "local-secret"
)

func TestQuiz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		c  = &client{http: &http.Client{Timeout: 5 * time.Second}, jwt: auth.NewJWTService(jwtSecret)}
		wg = new(sync.WaitGroup)
	)

	var (
		code    string
		host    = "quizmaster"
		users   = []string{"u1", "u2", "u3"}
		answers = map[string]string{"q1": "1", "q2": "true", "q3": "au"}
	)

	// Prepare Redis subscriber
	subscribeAsUser(t, makeRedis(t), wg, "u1")

	// Create new session
	{
		var resp struct {
			SessionCode string `json:"sessionCode"`
		}
		c.do(ctx, t, host, http.MethodPost, "/live/create", map[string]any{"quizId": "demo"}, &resp)
		code = resp.SessionCode
		t.Logf("Session %s created", code)
	}

	for _, u := range users {
		c.do(ctx, t, u, http.MethodPost, "/live/"+code+"/join", map[string]any{"username": "user " + u}, nil)
	}

	var q struct {
		Question struct {
			ID string `json:"id"`
		} `json:"question"`
	}
	c.do(ctx, t, host, http.MethodPost, "/live/"+code+"/start", nil, &q)

	// For each question, all users will submit answers concurrently
	for q.Question.ID != "" {
		qid := q.Question.ID
		t.Logf("Starting question %q", qid)

		var eg errgroup.Group
		for i, u := range users {
			answer := answers[qid]
			if i == len(users)-1 {
				answer = "wrong"
			}

			eg.Go(func() error {
				var resp struct {
					PointsAwarded int `json:"pointsAwarded"`
					TotalScore    int `json:"totalScore"`
				}
				if err := c.call(ctx, u, http.MethodPost, "/live/"+code+"/submit", map[string]any{"answer": answer, "questionId": qid}, &resp); err != nil {
					return fmt.Errorf("user %q submit answer: %w", u, err)
				}

				t.Logf("User %q submitted answer: points=%d, total_score=%d", u, resp.PointsAwarded, resp.TotalScore)
				return nil
			})
		}

		err := eg.Wait()
		require.NoError(t, err)

		time.Sleep(time.Second)
		q.Question.ID = ""
		c.do(ctx, t, host, http.MethodPost, "/live/"+code+"/next", nil, &q)
	}

	var results struct {
		Status      domain.Status             `json:"status"`
		Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	}
	c.do(ctx, t, users[0], http.MethodGet, "/live/"+code+"/results", nil, &results)
	require.Equal(t, domain.StatusCompleted, results.Status)
	t.Logf("Final leaderboard:\n%s", formatLeaderboard(results.Leaderboard))

	wg.Wait()
}

type client struct {
	http *http.Client
	jwt  *auth.JWTService
}

func (c *client) do(ctx context.Context, t *testing.T, user, method, path string, body, out any) {
	t.Helper()
	require.NoError(t, c.call(ctx, user, method, path, body, out))
}

func (c *client) call(ctx context.Context, user, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, addr+path, &buf)
	if err != nil {
		return err
	}

	tok, err := c.jwt.Generate(auth.Claims{UserID: user, Username: user}, time.Hour)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		api.Body
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	if !env.Success {
		return fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, env.Code, env.Error)
	}
	if out == nil {
		return nil
	}

	return json.Unmarshal(env.Data, out)
}

func subscribeAsUser(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, u string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, fmt.Sprintf("local:pubsub:user:%s", u))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n api.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			if n.Event == domain.EventNameSessionCompleted {
				t.Logf("%s final standing: %v", u, n.Data)
				return
			}
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, pattern string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	sub := rc.PSubscribe(ctx, pattern)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(entries []domain.LeaderboardEntry) string {
	var s string
	for _, e := range entries {
		s += fmt.Sprintf("%d. %s: %d\n", e.Rank, e.Username, e.Score)
	}
	return s
}
