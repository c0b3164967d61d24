package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/auth"
)

const quizzes = `
quizzes:
  - id: capitals
    title: Capitals
    questions:
      - id: q1
        text: Capital of Japan?
        type: SHORT_ANSWER
        correctAnswer: Tokyo
        points: 10
`

func TestInit_MemoryStore(t *testing.T) {
	file := filepath.Join(t.TempDir(), "quizzes.yaml")
	require.NoError(t, os.WriteFile(file, []byte(quizzes), 0o600))

	c := DefaultConfig()
	c.Log.Level = "error"
	c.Auth.JWTSecret = "secret"
	c.Content.File = file

	s, err := Init(c)
	require.NoError(t, err)
	t.Cleanup(s.eb.Stop)

	tests := map[string]struct {
		method, path, body string
		token              bool
		status             int
	}{
		"health": {
			method: http.MethodGet, path: "/healthz",
			status: http.StatusOK,
		},
		"metrics": {
			method: http.MethodGet, path: "/metrics",
			status: http.StatusOK,
		},
		"live routes require a token": {
			method: http.MethodPost, path: "/live/create", body: `{"quizId":"capitals"}`,
			status: http.StatusUnauthorized,
		},
		"create session from the quiz file": {
			method: http.MethodPost, path: "/live/create", body: `{"quizId":"capitals"}`, token: true,
			status: http.StatusCreated,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token {
				tok, err := auth.NewJWTService("secret").Generate(auth.Claims{UserID: "host"}, time.Minute)
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer "+tok)
			}

			w := httptest.NewRecorder()
			s.http.Handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestInit_UnknownDriver(t *testing.T) {
	c := DefaultConfig()
	c.Auth.JWTSecret = "secret"
	c.Content.Driver = "s3"

	_, err := Init(c)
	assert.ErrorContains(t, err, `unknown content driver "s3"`)
}

func TestInit_RequiresJWTSecret(t *testing.T) {
	_, err := Init(DefaultConfig())
	assert.ErrorContains(t, err, "auth.jwtSecret is required")
}
