package domain

import (
	"sort"
	"time"
)

// Status is the lifecycle state of a live session.
type Status string

const (
	StatusLobby     Status = "LOBBY"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
)

type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Question is one entry of the frozen question snapshot, answer key included.
type Question struct {
	ID            string       `json:"id" yaml:"id"`
	Text          string       `json:"text" yaml:"text"`
	Type          QuestionType `json:"type" yaml:"type"`
	Options       []Option     `json:"options,omitempty" yaml:"options"`
	CorrectAnswer string       `json:"correctAnswer" yaml:"correctAnswer"`
	Points        int          `json:"points" yaml:"points"`
}

// Quiz is the authored content a session is created from.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

type Settings struct {
	QuestionTimeSeconds       int     `json:"questionTimeSeconds"`
	PointsPerQuestionOverride *int    `json:"pointsPerQuestionOverride,omitempty"`
	SpeedBonusMultiplier      float64 `json:"speedBonusMultiplier"`
	ShowLeaderboard           bool    `json:"showLeaderboard"`
}

// QuestionWindow returns the configured answer window.
func (s Settings) QuestionWindow() time.Duration {
	return time.Duration(s.QuestionTimeSeconds) * time.Second
}

// AnswerRecord is created exactly once per (participant, question) and never mutated.
type AnswerRecord struct {
	QuestionID    string    `json:"questionId"`
	AnswerGiven   string    `json:"answerGiven"`
	Correct       bool      `json:"correct"`
	PointsAwarded int       `json:"pointsAwarded"`
	SpeedBonus    int       `json:"speedBonus"`
	TimeSpentMs   int64     `json:"timeSpentMs"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

type Participant struct {
	UserID    string                  `json:"userId"`
	Username  string                  `json:"username"`
	Avatar    string                  `json:"avatar,omitempty"`
	JoinedAt  time.Time               `json:"joinedAt"`
	Connected bool                    `json:"connected"`
	Score     int                     `json:"score"`
	Answers   map[string]AnswerRecord `json:"answers"`
}

// TotalTimeSpentMs sums the time spent across answered questions.
func (p *Participant) TotalTimeSpentMs() int64 {
	var total int64
	for _, a := range p.Answers {
		total += a.TimeSpentMs
	}
	return total
}

func (p *Participant) CorrectAnswers() int {
	n := 0
	for _, a := range p.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

func (p *Participant) clone() *Participant {
	c := *p
	c.Answers = make(map[string]AnswerRecord, len(p.Answers))
	for k, v := range p.Answers {
		c.Answers[k] = v
	}
	return &c
}

// Session is the aggregate root of a live quiz run.
type Session struct {
	SessionID            string                  `json:"sessionId"`
	SessionCode          string                  `json:"sessionCode"`
	QuizID               string                  `json:"quizId"`
	QuizTitle            string                  `json:"quizTitle"`
	HostUserID           string                  `json:"hostUserId"`
	Status               Status                  `json:"status"`
	Settings             Settings                `json:"settings"`
	Questions            []Question              `json:"questions"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	QuestionStartedAt    time.Time               `json:"questionStartedAt"`
	CreatedAt            time.Time               `json:"createdAt"`
	StartedAt            *time.Time              `json:"startedAt,omitempty"`
	CompletedAt          *time.Time              `json:"completedAt,omitempty"`
	Participants         map[string]*Participant `json:"participants"`
}

// Clone returns a deep copy that shares nothing mutable with s.
// The question snapshot is shared since it is never written after creation.
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		c.Participants[id] = p.clone()
	}
	if s.Settings.PointsPerQuestionOverride != nil {
		v := *s.Settings.PointsPerQuestionOverride
		c.Settings.PointsPerQuestionOverride = &v
	}
	return &c
}

func (s *Session) IsHost(userID string) bool {
	return userID != "" && s.HostUserID == userID
}

func (s *Session) Participant(userID string) (*Participant, bool) {
	p, ok := s.Participants[userID]
	return p, ok
}

// CurrentQuestion returns the question accepting submissions, if any.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.Status != StatusActive || s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// ParticipantsByJoinOrder returns participants sorted by join time, then user id.
func (s *Session) ParticipantsByJoinOrder() []*Participant {
	ps := make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].UserID < ps[j].UserID
	})
	return ps
}

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	Rank             int    `json:"rank"`
	UserID           string `json:"userId"`
	Username         string `json:"username"`
	Avatar           string `json:"avatar,omitempty"`
	Score            int    `json:"score"`
	CorrectAnswers   int    `json:"correctAnswers"`
	TotalAnswers     int    `json:"totalAnswers"`
	Accuracy         int    `json:"accuracy"`
	TotalTimeSpentMs int64  `json:"totalTimeSpentMs"`
}

// Leaderboard is a total order over the participants of a session.
type Leaderboard struct {
	SessionCode string             `json:"sessionCode"`
	Entries     []LeaderboardEntry `json:"leaderboard"`
}

type SessionStats struct {
	TotalParticipants int `json:"totalParticipants"`
	TotalAnswers      int `json:"totalAnswers"`
	CorrectAnswers    int `json:"correctAnswers"`
	AverageAccuracy   int `json:"averageAccuracy"`
}
