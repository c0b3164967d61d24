package session

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/victornm/livequiz/internal/content"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/presence"
	"github.com/victornm/livequiz/internal/scoring"
	"github.com/victornm/livequiz/internal/store"
)

const (
	defaultCodeAttempts = 20

	minQuestionTime = 5
	maxQuestionTime = 600
	maxSpeedBonus   = 10
)

// DefaultSettings are applied to every setting a host leaves unset.
var DefaultSettings = domain.Settings{
	QuestionTimeSeconds:  30,
	SpeedBonusMultiplier: 0.5,
	ShowLeaderboard:      true,
}

// errUnchanged aborts an update whose outcome is already recorded.
var errUnchanged = stderrors.New("unchanged")

type Config struct {
	Repo     store.Repository
	Content  *content.Loader
	EventBus *event.Bus
	// Presence is optional. Without it, participants stay connected once joined.
	Presence presence.Tracker
	Logger   *zap.Logger

	// Now and NewCode default to the wall clock and a random 6-digit code.
	Now     func() time.Time
	NewCode func() (string, error)

	MinParticipants int
	CodeAttempts    int
	Defaults        *domain.Settings
}

// Service is the session coordinator. All mutations of a session go through
// the repository's atomic update; events are published after it commits.
type Service struct {
	repo     store.Repository
	content  *content.Loader
	eb       *event.Bus
	presence presence.Tracker
	log      *zap.Logger

	now     func() time.Time
	newCode func() (string, error)

	minParticipants int
	codeAttempts    int
	defaults        domain.Settings
}

func NewService(c Config) *Service {
	s := &Service{
		repo:            c.Repo,
		content:         c.Content,
		eb:              c.EventBus,
		presence:        c.Presence,
		log:             c.Logger,
		now:             c.Now,
		newCode:         c.NewCode,
		minParticipants: c.MinParticipants,
		codeAttempts:    c.CodeAttempts,
		defaults:        DefaultSettings,
	}

	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.eb == nil {
		s.eb = event.NewBus(event.Config{Logger: s.log})
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCode == nil {
		s.newCode = RandomCode
	}
	if s.minParticipants <= 0 {
		s.minParticipants = 1
	}
	if s.codeAttempts <= 0 {
		s.codeAttempts = defaultCodeAttempts
	}
	if c.Defaults != nil {
		s.defaults = *c.Defaults
	}

	return s
}

// RandomCode returns a uniformly random 6-digit numeric code.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SettingsRequest holds the settings a host may override. Nil fields keep the default.
type SettingsRequest struct {
	QuestionTimeSeconds       *int     `json:"questionTimeSeconds"`
	PointsPerQuestionOverride *int     `json:"pointsPerQuestion"`
	SpeedBonusMultiplier      *float64 `json:"speedBonusMultiplier"`
	ShowLeaderboard           *bool    `json:"showLeaderboard"`
}

func (s *Service) settings(req *SettingsRequest) (domain.Settings, error) {
	st := s.defaults
	if st.PointsPerQuestionOverride != nil {
		v := *st.PointsPerQuestionOverride
		st.PointsPerQuestionOverride = &v
	}

	if req != nil {
		if req.QuestionTimeSeconds != nil {
			st.QuestionTimeSeconds = *req.QuestionTimeSeconds
		}
		if req.PointsPerQuestionOverride != nil {
			v := *req.PointsPerQuestionOverride
			st.PointsPerQuestionOverride = &v
		}
		if req.SpeedBonusMultiplier != nil {
			st.SpeedBonusMultiplier = *req.SpeedBonusMultiplier
		}
		if req.ShowLeaderboard != nil {
			st.ShowLeaderboard = *req.ShowLeaderboard
		}
	}

	switch {
	case st.QuestionTimeSeconds < minQuestionTime || st.QuestionTimeSeconds > maxQuestionTime:
		return st, errors.New(errors.CodeValidation,
			errors.WithMessagef("questionTimeSeconds must be between %d and %d", minQuestionTime, maxQuestionTime))
	case st.SpeedBonusMultiplier < 0 || st.SpeedBonusMultiplier > maxSpeedBonus:
		return st, errors.New(errors.CodeValidation,
			errors.WithMessagef("speedBonusMultiplier must be between 0 and %d", maxSpeedBonus))
	case st.PointsPerQuestionOverride != nil && *st.PointsPerQuestionOverride <= 0:
		return st, errors.New(errors.CodeValidation, errors.WithMessagef("pointsPerQuestion must be positive"))
	}

	return st, nil
}

type CreateSessionRequest struct {
	QuizID     string
	HostUserID string
	Settings   *SettingsRequest
}

// CreateSession snapshots the quiz and opens a session in LOBBY under a fresh code.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	if req.HostUserID == "" {
		return nil, errors.New(errors.CodeUnauthenticated)
	}
	if strings.TrimSpace(req.QuizID) == "" {
		return nil, errors.New(errors.CodeValidation, errors.WithMessagef("quizId is required"))
	}

	settings, err := s.settings(req.Settings)
	if err != nil {
		return nil, err
	}

	quiz, err := s.content.Snapshot(ctx, req.QuizID)
	switch {
	case stderrors.Is(err, content.ErrQuizNotFound), stderrors.Is(err, content.ErrNoQuestions):
		return nil, errors.New(errors.CodeContentNotFound,
			errors.WithMessagef("quiz %s has no questions", req.QuizID),
			errors.WithCause(err),
		)
	case err != nil:
		return nil, errors.Internal(fmt.Errorf("snapshot quiz %s: %w", req.QuizID, err))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate session ID: %w", err))
	}

	now := s.now()
	ss := &domain.Session{
		SessionID:    id.String(),
		QuizID:       quiz.ID,
		QuizTitle:    quiz.Title,
		HostUserID:   req.HostUserID,
		Status:       domain.StatusLobby,
		Settings:     settings,
		Questions:    quiz.Questions,
		CreatedAt:    now,
		Participants: make(map[string]*domain.Participant),
	}

	if err := s.insert(ctx, ss); err != nil {
		return nil, err
	}

	s.log.Info("session: created",
		zap.String("code", ss.SessionCode),
		zap.String("session_id", ss.SessionID),
		zap.String("quiz_id", ss.QuizID),
		zap.String("host", ss.HostUserID),
	)
	s.eb.Publish(ctx, domain.EventSessionCreated{Session: ss})

	return &CreateSessionResponse{
		SessionID:     ss.SessionID,
		SessionCode:   ss.SessionCode,
		QuizID:        ss.QuizID,
		QuizTitle:     ss.QuizTitle,
		QuestionCount: len(ss.Questions),
		HostID:        ss.HostUserID,
		Status:        ss.Status,
		Settings:      ss.Settings,
	}, nil
}

// insert assigns a code, regenerating it while it collides with a live session.
func (s *Service) insert(ctx context.Context, ss *domain.Session) error {
	for i := 0; i < s.codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return errors.Internal(fmt.Errorf("generate session code: %w", err))
		}

		ss.SessionCode = code
		err = s.repo.Create(ctx, ss)
		if stderrors.Is(err, store.ErrCodeTaken) {
			s.log.Debug("session: code collision", zap.String("code", code))
			continue
		}
		if err != nil {
			return errors.Internal(fmt.Errorf("create session: %w", err))
		}

		return nil
	}

	return errors.Internal(fmt.Errorf("no free session code after %d attempts", s.codeAttempts))
}

type JoinSessionRequest struct {
	Code     string
	UserID   string
	Username string
	Avatar   string
}

// JoinSession adds the caller to a LOBBY or ACTIVE session. Joining again returns
// the existing participant untouched.
func (s *Service) JoinSession(ctx context.Context, req JoinSessionRequest) (*JoinSessionResponse, error) {
	if req.UserID == "" {
		return nil, errors.New(errors.CodeUnauthenticated)
	}

	var rejoined bool
	ss, err := s.update(ctx, req.Code, func(ss *domain.Session) error {
		if ss.Status == domain.StatusCompleted {
			return errors.New(errors.CodeConflict, errors.WithMessagef("session %s has ended", ss.SessionCode))
		}

		if _, ok := ss.Participant(req.UserID); ok {
			rejoined = true
			return errUnchanged
		}

		username := req.Username
		if username == "" {
			username = req.UserID
		}

		rejoined = false
		ss.Participants[req.UserID] = &domain.Participant{
			UserID:    req.UserID,
			Username:  username,
			Avatar:    req.Avatar,
			JoinedAt:  s.now(),
			Connected: true,
			Answers:   make(map[string]domain.AnswerRecord),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.touch(ctx, ss.SessionCode, req.UserID)

	p, _ := ss.Participant(req.UserID)
	if !rejoined {
		s.log.Info("session: participant joined",
			zap.String("code", ss.SessionCode),
			zap.String("user_id", p.UserID),
			zap.String("status", string(ss.Status)),
		)
		s.eb.Publish(ctx, domain.EventParticipantJoined{SessionCode: ss.SessionCode, Participant: *p})
	}

	return &JoinSessionResponse{
		SessionID:        ss.SessionID,
		SessionCode:      ss.SessionCode,
		QuizTitle:        ss.QuizTitle,
		QuestionCount:    len(ss.Questions),
		ParticipantCount: len(ss.Participants),
		HostID:           ss.HostUserID,
		Status:           ss.Status,
		Participant:      participantView(p, p.Connected),
		Rejoined:         rejoined,
	}, nil
}

// StartSession moves a LOBBY session to ACTIVE on its first question. Host only.
func (s *Service) StartSession(ctx context.Context, code, callerID string) (*QuestionView, error) {
	ss, err := s.update(ctx, code, func(ss *domain.Session) error {
		if err := requireHost(ss, callerID); err != nil {
			return err
		}
		if ss.Status != domain.StatusLobby {
			return errors.New(errors.CodeConflict, errors.WithMessagef("session %s is %s, not %s", ss.SessionCode, ss.Status, domain.StatusLobby))
		}
		if len(ss.Participants) < s.minParticipants {
			return errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("at least %d participant(s) required to start", s.minParticipants))
		}

		now := s.now()
		ss.Status = domain.StatusActive
		ss.CurrentQuestionIndex = 0
		ss.QuestionStartedAt = now
		ss.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session: started",
		zap.String("code", ss.SessionCode),
		zap.Int("participants", len(ss.Participants)),
	)
	s.eb.Publish(ctx, domain.EventSessionStarted{Session: ss})

	v := questionView(ss, callerID)
	return &v, nil
}

type SubmitAnswerRequest struct {
	Code   string
	UserID string
	// QuestionID defaults to the current question when empty.
	QuestionID string
	Answer     string
	// ClientTimeSpentMs is the client's own measurement. It can only lower the
	// server measurement, never raise it.
	ClientTimeSpentMs *int64
}

// SubmitAnswer records and scores the caller's answer to the current question.
// A repeated submission returns the recorded result without scoring again.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return nil, errors.New(errors.CodeValidation, errors.WithMessagef("answer is required"))
	}

	var resp SubmitAnswerResponse
	ss, err := s.update(ctx, req.Code, func(ss *domain.Session) error {
		p, ok := ss.Participant(req.UserID)
		if !ok {
			return errors.New(errors.CodeForbidden, errors.WithMessagef("user %s has not joined session %s", req.UserID, ss.SessionCode))
		}

		q, ok := ss.CurrentQuestion()
		if !ok {
			return errors.New(errors.CodeStale, errors.WithMessagef("session %s is not accepting answers", ss.SessionCode))
		}
		if req.QuestionID != "" && req.QuestionID != q.ID {
			return errors.New(errors.CodeStale, errors.WithMessagef("question %s is not current", req.QuestionID))
		}

		if rec, ok := p.Answers[q.ID]; ok {
			resp = submitResponse(rec, p.Score, true)
			return errUnchanged
		}

		now := s.now()
		spent := scoring.TimeSpent(req.ClientTimeSpentMs, now.Sub(ss.QuestionStartedAt), ss.Settings.QuestionWindow())
		res := scoring.Score(q, ss.Settings, req.Answer, spent)

		rec := domain.AnswerRecord{
			QuestionID:    q.ID,
			AnswerGiven:   req.Answer,
			Correct:       res.Correct,
			PointsAwarded: res.PointsAwarded,
			SpeedBonus:    res.SpeedBonus,
			TimeSpentMs:   spent,
			SubmittedAt:   now,
		}
		if p.Answers == nil {
			p.Answers = make(map[string]domain.AnswerRecord)
		}
		p.Answers[q.ID] = rec
		p.Score += rec.PointsAwarded

		resp = submitResponse(rec, p.Score, false)
		return nil
	})
	if err == nil || errors.Is(err, errors.CodeStale) {
		s.touch(ctx, req.Code, req.UserID)
	}
	if errors.Is(err, errors.CodeStale) {
		s.log.Debug("session: stale submission",
			zap.String("code", req.Code),
			zap.String("user_id", req.UserID),
			zap.String("question_id", req.QuestionID),
		)
	}
	if err != nil {
		return nil, err
	}

	if !resp.Duplicate {
		s.eb.Publish(ctx, domain.EventAnswerSubmitted{
			SessionCode: ss.SessionCode,
			UserID:      req.UserID,
			Record:      ss.Participants[req.UserID].Answers[resp.QuestionID],
			TotalScore:  resp.TotalScore,
		})
	}

	return &resp, nil
}

func submitResponse(rec domain.AnswerRecord, total int, duplicate bool) SubmitAnswerResponse {
	return SubmitAnswerResponse{
		QuestionID:    rec.QuestionID,
		Correct:       rec.Correct,
		PointsAwarded: rec.PointsAwarded,
		SpeedBonus:    rec.SpeedBonus,
		TimeSpentMs:   rec.TimeSpentMs,
		TotalScore:    total,
		Duplicate:     duplicate,
	}
}

// NextQuestion advances an ACTIVE session, completing it after the last question. Host only.
func (s *Service) NextQuestion(ctx context.Context, code, callerID string) (*QuestionView, error) {
	ss, err := s.update(ctx, code, func(ss *domain.Session) error {
		if err := requireHost(ss, callerID); err != nil {
			return err
		}
		if ss.Status != domain.StatusActive {
			return errors.New(errors.CodeConflict, errors.WithMessagef("session %s is %s, not %s", ss.SessionCode, ss.Status, domain.StatusActive))
		}

		now := s.now()
		ss.CurrentQuestionIndex++
		if ss.CurrentQuestionIndex < len(ss.Questions) {
			ss.QuestionStartedAt = now
			return nil
		}

		ss.Status = domain.StatusCompleted
		ss.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ss.Status == domain.StatusCompleted {
		s.log.Info("session: completed", zap.String("code", ss.SessionCode), zap.Bool("forced", false))
		s.eb.Publish(ctx, domain.EventSessionCompleted{Session: ss})
	} else {
		s.eb.Publish(ctx, domain.EventQuestionAdvanced{SessionCode: ss.SessionCode, CurrentQuestionIndex: ss.CurrentQuestionIndex})
	}

	v := questionView(ss, callerID)
	return &v, nil
}

// EndSession completes a session from any live state. Answers not yet given
// for the open question stay absent. Host only.
func (s *Service) EndSession(ctx context.Context, code, callerID string) (*ResultsView, error) {
	ss, err := s.update(ctx, code, func(ss *domain.Session) error {
		if err := requireHost(ss, callerID); err != nil {
			return err
		}
		if ss.Status == domain.StatusCompleted {
			return errors.New(errors.CodeConflict, errors.WithMessagef("session %s has already ended", ss.SessionCode))
		}

		now := s.now()
		ss.Status = domain.StatusCompleted
		ss.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session: completed", zap.String("code", ss.SessionCode), zap.Bool("forced", true))
	s.eb.Publish(ctx, domain.EventSessionCompleted{Session: ss, Forced: true})

	v := resultsView(ss)
	return &v, nil
}

func (s *Service) GetLobbyStatus(ctx context.Context, code, callerID string) (*LobbyView, error) {
	ss, err := s.read(ctx, code, callerID)
	if err != nil {
		return nil, err
	}

	ps := ss.ParticipantsByJoinOrder()
	connected := s.connected(ctx, ss, ps)

	v := &LobbyView{
		SessionID:        ss.SessionID,
		SessionCode:      ss.SessionCode,
		Status:           ss.Status,
		QuizTitle:        ss.QuizTitle,
		QuestionCount:    len(ss.Questions),
		HostID:           ss.HostUserID,
		Settings:         ss.Settings,
		ParticipantCount: len(ps),
		Participants:     make([]ParticipantView, 0, len(ps)),
	}
	for _, p := range ps {
		v.Participants = append(v.Participants, participantView(p, connected[p.UserID]))
	}

	return v, nil
}

// GetCurrentQuestion never includes the answer key.
func (s *Service) GetCurrentQuestion(ctx context.Context, code, callerID string) (*QuestionView, error) {
	ss, err := s.read(ctx, code, callerID)
	if err != nil {
		return nil, err
	}

	v := questionView(ss, callerID)
	return &v, nil
}

func (s *Service) GetLeaderboard(ctx context.Context, code, callerID string) (*LeaderboardView, error) {
	ss, err := s.read(ctx, code, callerID)
	if err != nil {
		return nil, err
	}

	v := leaderboardView(ss)
	return &v, nil
}

// GetResults returns the results of the newest session using the code. Before
// completion the view is provisional and carries no answer key.
func (s *Service) GetResults(ctx context.Context, code, callerID string) (*ResultsView, error) {
	ss, err := s.read(ctx, code, callerID)
	if err != nil {
		return nil, err
	}

	v := resultsView(ss)
	return &v, nil
}

// GetResultsByID reaches any session, including completed ones whose code was reused.
func (s *Service) GetResultsByID(ctx context.Context, sessionID, callerID string) (*ResultsView, error) {
	notFound := errors.New(errors.CodeNotFound, errors.WithMessagef("session %s not found", sessionID))
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, notFound
	}

	ss, err := s.repo.GetByID(ctx, sessionID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("get session %s: %w", sessionID, err))
	}
	if err := requireMember(ss, callerID); err != nil {
		return nil, err
	}

	v := resultsView(ss)
	return &v, nil
}

// touch records a presence heartbeat. Callers must have checked membership.
func (s *Service) touch(ctx context.Context, code, userID string) {
	if s.presence == nil || userID == "" {
		return
	}

	if err := s.presence.Touch(ctx, code, userID); err != nil {
		s.log.Warn("session: touch presence failed", zap.String("code", code), zap.Error(err))
	}
}

func (s *Service) connected(ctx context.Context, ss *domain.Session, ps []*domain.Participant) map[string]bool {
	out := make(map[string]bool, len(ps))
	for _, p := range ps {
		out[p.UserID] = p.Connected
	}
	if s.presence == nil {
		return out
	}

	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.UserID)
	}

	live, err := s.presence.Connected(ctx, ss.SessionCode, ids)
	if err != nil {
		s.log.Warn("session: read presence failed", zap.String("code", ss.SessionCode), zap.Error(err))
		return out
	}

	return live
}

// update runs fn under the session's exclusive boundary and maps storage errors.
func (s *Service) update(ctx context.Context, code string, fn store.UpdateFunc) (*domain.Session, error) {
	var seen *domain.Session
	ss, err := s.repo.Update(ctx, code, func(ss *domain.Session) error {
		seen = ss
		return fn(ss)
	})

	switch {
	case err == nil:
		return ss, nil
	case stderrors.Is(err, errUnchanged):
		return seen, nil
	case stderrors.Is(err, store.ErrNotFound):
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session %s not found", code))
	}

	var e *errors.Error
	if stderrors.As(err, &e) {
		return nil, e
	}

	s.log.Error("session: update failed", zap.String("code", code), zap.Error(err))
	return nil, errors.Internal(err)
}

// read returns the last committed snapshot without taking the writer boundary.
func (s *Service) read(ctx context.Context, code, callerID string) (*domain.Session, error) {
	ss, err := s.repo.Get(ctx, code)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session %s not found", code))
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("get session %s: %w", code, err))
	}

	if err := requireMember(ss, callerID); err != nil {
		return nil, err
	}
	s.touch(ctx, ss.SessionCode, callerID)

	return ss, nil
}

func requireHost(ss *domain.Session, userID string) error {
	if !ss.IsHost(userID) {
		return errors.New(errors.CodeForbidden, errors.WithMessagef("only the host can do this"))
	}
	return nil
}

func requireMember(ss *domain.Session, userID string) error {
	if ss.IsHost(userID) {
		return nil
	}
	if _, ok := ss.Participant(userID); ok {
		return nil
	}

	return errors.New(errors.CodeForbidden, errors.WithMessagef("user %s is not part of session %s", userID, ss.SessionCode))
}

func participantView(p *domain.Participant, connected bool) ParticipantView {
	return ParticipantView{
		UserID:    p.UserID,
		Username:  p.Username,
		Avatar:    p.Avatar,
		JoinedAt:  p.JoinedAt,
		Connected: connected,
		Score:     p.Score,
	}
}
