package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/victornm/livequiz/internal/auth"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/session"
)

type Config struct {
	Session *session.Service
	JWT     *auth.JWTService
	Logger  *zap.Logger
}

// API serves the live session endpoints over HTTP.
type API struct {
	session *session.Service
	jwt     *auth.JWTService
	log     *zap.Logger
}

func New(c Config) *API {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &API{
		session: c.Session,
		jwt:     c.JWT,
		log:     c.Logger,
	}
}

// Register mounts the routes under /live. Every route requires a bearer token.
func (a *API) Register(r gin.IRouter) {
	live := r.Group("/live", a.authenticate)
	live.POST("/create", a.CreateSession)
	live.GET("/sessions/:id/results", a.GetResultsByID)

	code := live.Group("/:code")
	code.POST("/join", a.JoinSession)
	code.GET("/lobby", a.GetLobbyStatus)
	code.GET("/current", a.GetCurrentQuestion)
	code.POST("/start", a.StartSession)
	code.POST("/submit", a.SubmitAnswer)
	code.POST("/next", a.NextQuestion)
	code.GET("/leaderboard", a.GetLeaderboard)
	code.GET("/results", a.GetResults)
	code.POST("/end", a.EndSession)
}

type createSessionBody struct {
	QuizID   string                   `json:"quizId"`
	Settings *session.SettingsRequest `json:"settings"`
}

func (a *API) CreateSession(c *gin.Context) {
	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, errors.New(errors.CodeValidation, errors.WithMessagef("invalid body: %v", err)))
		return
	}

	resp, err := a.session.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		QuizID:     body.QuizID,
		HostUserID: caller(c).UserID,
		Settings:   body.Settings,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	created(c, resp)
}

type joinSessionBody struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

func (a *API) JoinSession(c *gin.Context) {
	var body joinSessionBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			a.fail(c, errors.New(errors.CodeValidation, errors.WithMessagef("invalid body: %v", err)))
			return
		}
	}

	who := caller(c)
	req := session.JoinSessionRequest{
		Code:     c.Param("code"),
		UserID:   who.UserID,
		Username: who.Username,
		Avatar:   who.Avatar,
	}
	if body.Username != "" {
		req.Username = body.Username
	}
	if body.Avatar != "" {
		req.Avatar = body.Avatar
	}

	resp, err := a.session.JoinSession(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func (a *API) GetLobbyStatus(c *gin.Context) {
	resp, err := a.session.GetLobbyStatus(c.Request.Context(), c.Param("code"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func (a *API) GetCurrentQuestion(c *gin.Context) {
	resp, err := a.session.GetCurrentQuestion(c.Request.Context(), c.Param("code"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func (a *API) StartSession(c *gin.Context) {
	resp, err := a.session.StartSession(c.Request.Context(), c.Param("code"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

type submitAnswerBody struct {
	// Answer is an option id, a free text answer, a number or a boolean.
	Answer      any    `json:"answer"`
	QuestionID  string `json:"questionId"`
	TimeSpentMs *int64 `json:"timeSpentMs"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var body submitAnswerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.fail(c, errors.New(errors.CodeValidation, errors.WithMessagef("invalid body: %v", err)))
		return
	}

	answer, valid := answerString(body.Answer)
	if !valid {
		a.fail(c, errors.New(errors.CodeValidation, errors.WithMessagef("answer must be a string, number or boolean")))
		return
	}

	resp, err := a.session.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		Code:              c.Param("code"),
		UserID:            caller(c).UserID,
		QuestionID:        body.QuestionID,
		Answer:            answer,
		ClientTimeSpentMs: body.TimeSpentMs,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func answerString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, strings.TrimSpace(v) != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func (a *API) NextQuestion(c *gin.Context) {
	resp, err := a.session.NextQuestion(c.Request.Context(), c.Param("code"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	resp, err := a.session.GetLeaderboard(c.Request.Context(), c.Param("code"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func (a *API) GetResults(c *gin.Context) {
	resp, err := a.session.GetResults(c.Request.Context(), c.Param("code"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func (a *API) GetResultsByID(c *gin.Context) {
	resp, err := a.session.GetResultsByID(c.Request.Context(), c.Param("id"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}

func (a *API) EndSession(c *gin.Context) {
	resp, err := a.session.EndSession(c.Request.Context(), c.Param("code"), caller(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	ok(c, resp)
}
