package session

import (
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/leaderboard"
)

// PublicQuestion is a question as participants see it, without the answer key.
type PublicQuestion struct {
	ID      string              `json:"id"`
	Text    string              `json:"text"`
	Type    domain.QuestionType `json:"type"`
	Options []domain.Option     `json:"options,omitempty"`
	Points  int                 `json:"points"`
}

func publicQuestion(q domain.Question, s domain.Settings) *PublicQuestion {
	pq := &PublicQuestion{
		ID:     q.ID,
		Text:   q.Text,
		Type:   q.Type,
		Points: q.Points,
	}
	if s.PointsPerQuestionOverride != nil {
		pq.Points = *s.PointsPerQuestionOverride
	}
	if len(q.Options) > 0 {
		pq.Options = append([]domain.Option(nil), q.Options...)
	}
	return pq
}

type ParticipantView struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	JoinedAt  time.Time `json:"joinedAt"`
	Connected bool      `json:"connected"`
	Score     int       `json:"score"`
}

type CreateSessionResponse struct {
	SessionID     string          `json:"sessionId"`
	SessionCode   string          `json:"sessionCode"`
	QuizID        string          `json:"quizId"`
	QuizTitle     string          `json:"quizTitle"`
	QuestionCount int             `json:"questionCount"`
	HostID        string          `json:"hostId"`
	Status        domain.Status   `json:"status"`
	Settings      domain.Settings `json:"settings"`
}

type JoinSessionResponse struct {
	SessionID        string          `json:"sessionId"`
	SessionCode      string          `json:"sessionCode"`
	QuizTitle        string          `json:"quizTitle"`
	QuestionCount    int             `json:"questionCount"`
	ParticipantCount int             `json:"participantCount"`
	HostID           string          `json:"hostId"`
	Status           domain.Status   `json:"status"`
	Participant      ParticipantView `json:"participant"`
	// Rejoined is true when the caller had already joined.
	Rejoined bool `json:"rejoined"`
}

type LobbyView struct {
	SessionID        string            `json:"sessionId"`
	SessionCode      string            `json:"sessionCode"`
	Status           domain.Status     `json:"status"`
	QuizTitle        string            `json:"quizTitle"`
	QuestionCount    int               `json:"questionCount"`
	HostID           string            `json:"hostId"`
	Settings         domain.Settings   `json:"settings"`
	ParticipantCount int               `json:"participantCount"`
	Participants     []ParticipantView `json:"participants"`
}

// QuestionView describes where a session is. Question is nil outside ACTIVE.
type QuestionView struct {
	SessionCode          string          `json:"sessionCode"`
	Status               domain.Status   `json:"status"`
	HostID               string          `json:"hostId"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	QuestionCount        int             `json:"questionCount"`
	TimeLimit            int             `json:"timeLimit"`
	Question             *PublicQuestion `json:"question"`
	QuestionStartedAt    *time.Time      `json:"questionStartedAt,omitempty"`
	// Answered reports whether the caller already answered the current question.
	Answered bool `json:"answered"`
}

func questionView(s *domain.Session, userID string) QuestionView {
	v := QuestionView{
		SessionCode:          s.SessionCode,
		Status:               s.Status,
		HostID:               s.HostUserID,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionCount:        len(s.Questions),
		TimeLimit:            s.Settings.QuestionTimeSeconds,
	}

	q, ok := s.CurrentQuestion()
	if !ok {
		return v
	}

	startedAt := s.QuestionStartedAt
	v.Question = publicQuestion(q, s.Settings)
	v.QuestionStartedAt = &startedAt
	if p, ok := s.Participant(userID); ok {
		_, v.Answered = p.Answers[q.ID]
	}

	return v
}

type SubmitAnswerResponse struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"correct"`
	PointsAwarded int    `json:"pointsAwarded"`
	SpeedBonus    int    `json:"speedBonus"`
	TimeSpentMs   int64  `json:"timeSpentMs"`
	TotalScore    int    `json:"totalScore"`
	// Duplicate is true when the answer had already been recorded by an earlier call.
	Duplicate bool `json:"duplicate"`
}

type LeaderboardView struct {
	SessionCode       string                    `json:"sessionCode"`
	Status            domain.Status             `json:"status"`
	Leaderboard       []domain.LeaderboardEntry `json:"leaderboard"`
	TotalParticipants int                       `json:"totalParticipants"`
	// CurrentQuestion is 1-based.
	CurrentQuestion int  `json:"currentQuestion"`
	TotalQuestions  int  `json:"totalQuestions"`
	ShowLeaderboard bool `json:"showLeaderboard"`
}

func leaderboardView(s *domain.Session) LeaderboardView {
	current := 0
	if s.Status != domain.StatusLobby {
		current = min(s.CurrentQuestionIndex+1, len(s.Questions))
	}

	return LeaderboardView{
		SessionCode:       s.SessionCode,
		Status:            s.Status,
		Leaderboard:       leaderboard.Build(s).Entries,
		TotalParticipants: len(s.Participants),
		CurrentQuestion:   current,
		TotalQuestions:    len(s.Questions),
		ShowLeaderboard:   s.Settings.ShowLeaderboard,
	}
}

// ResultsView is final once Status is COMPLETED. Questions, with their answers,
// are only included then.
type ResultsView struct {
	SessionID   string                    `json:"sessionId"`
	SessionCode string                    `json:"sessionCode"`
	QuizID      string                    `json:"quizId"`
	QuizTitle   string                    `json:"quizTitle"`
	Status      domain.Status             `json:"status"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	Stats       domain.SessionStats       `json:"stats"`
	Questions   []domain.Question         `json:"questions,omitempty"`
	StartedAt   *time.Time                `json:"startedAt,omitempty"`
	CompletedAt *time.Time                `json:"completedAt,omitempty"`
}

func resultsView(s *domain.Session) ResultsView {
	v := ResultsView{
		SessionID:   s.SessionID,
		SessionCode: s.SessionCode,
		QuizID:      s.QuizID,
		QuizTitle:   s.QuizTitle,
		Status:      s.Status,
		Leaderboard: leaderboard.Build(s).Entries,
		Stats:       leaderboard.Stats(s),
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
	if s.Status == domain.StatusCompleted {
		v.Questions = append([]domain.Question(nil), s.Questions...)
	}

	return v
}
