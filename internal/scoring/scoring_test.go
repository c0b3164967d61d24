package scoring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/scoring"
)

func TestScore(t *testing.T) {
	ten := 10
	settings := domain.Settings{
		QuestionTimeSeconds:       20,
		PointsPerQuestionOverride: &ten,
		SpeedBonusMultiplier:      0.5,
	}
	mc := domain.Question{
		ID:   "q1",
		Type: domain.QuestionTypeMultipleChoice,
		Options: []domain.Option{
			{ID: "0", Text: "3"},
			{ID: "1", Text: "4"},
		},
		CorrectAnswer: "1",
		Points:        1000,
	}

	tests := map[string]struct {
		question  domain.Question
		settings  domain.Settings
		answer    string
		timeSpent int64
		want      scoring.Result
	}{
		"correct answer at 5s earns base plus floored bonus": {
			question:  mc,
			settings:  settings,
			answer:    "1",
			timeSpent: 5000,
			want:      scoring.Result{Correct: true, BasePoints: 10, SpeedBonus: 3, PointsAwarded: 13},
		},
		"instant correct answer earns the full bonus": {
			question:  mc,
			settings:  settings,
			answer:    "1",
			timeSpent: 0,
			want:      scoring.Result{Correct: true, BasePoints: 10, SpeedBonus: 5, PointsAwarded: 15},
		},
		"correct answer at the window end earns no bonus": {
			question:  mc,
			settings:  settings,
			answer:    "1",
			timeSpent: 20000,
			want:      scoring.Result{Correct: true, BasePoints: 10, SpeedBonus: 0, PointsAwarded: 10},
		},
		"wrong answer earns nothing": {
			question:  mc,
			settings:  settings,
			answer:    "0",
			timeSpent: 0,
			want:      scoring.Result{Correct: false, BasePoints: 10},
		},
		"question points apply without override": {
			question:  mc,
			settings:  domain.Settings{QuestionTimeSeconds: 30, SpeedBonusMultiplier: 0.5},
			answer:    "1",
			timeSpent: 15000,
			want:      scoring.Result{Correct: true, BasePoints: 1000, SpeedBonus: 250, PointsAwarded: 1250},
		},
		"multiple choice compares numeric identifiers as integers": {
			question:  mc,
			settings:  settings,
			answer:    " 01 ",
			timeSpent: 20000,
			want:      scoring.Result{Correct: true, BasePoints: 10, PointsAwarded: 10},
		},
		"short answer ignores case and surrounding space": {
			question: domain.Question{
				Type:          domain.QuestionTypeShortAnswer,
				CorrectAnswer: "Paris",
				Points:        5,
			},
			settings:  domain.Settings{QuestionTimeSeconds: 10},
			answer:    "  pARIS ",
			timeSpent: 1000,
			want:      scoring.Result{Correct: true, BasePoints: 5, PointsAwarded: 5},
		},
		"true false accepts boolean spellings": {
			question: domain.Question{
				Type:          domain.QuestionTypeTrueFalse,
				CorrectAnswer: "true",
				Points:        2,
			},
			settings:  domain.Settings{QuestionTimeSeconds: 10},
			answer:    "TRUE",
			timeSpent: 1000,
			want:      scoring.Result{Correct: true, BasePoints: 2, PointsAwarded: 2},
		},
		"multiplier without exact binary form does not lose a point": {
			question: domain.Question{
				Type:          domain.QuestionTypeShortAnswer,
				CorrectAnswer: "x",
				Points:        10,
			},
			settings:  domain.Settings{QuestionTimeSeconds: 10, SpeedBonusMultiplier: 0.3},
			answer:    "x",
			timeSpent: 0,
			want:      scoring.Result{Correct: true, BasePoints: 10, SpeedBonus: 3, PointsAwarded: 13},
		},
		"empty answer is never correct": {
			question: domain.Question{
				Type:          domain.QuestionTypeShortAnswer,
				CorrectAnswer: "",
				Points:        10,
			},
			settings:  domain.Settings{QuestionTimeSeconds: 10},
			answer:    "  ",
			timeSpent: 0,
			want:      scoring.Result{Correct: false, BasePoints: 10},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := scoring.Score(tt.question, tt.settings, tt.answer, tt.timeSpent)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScore_WrongAnswersNeverEarnPoints(t *testing.T) {
	q := domain.Question{Type: domain.QuestionTypeMultipleChoice, CorrectAnswer: "2", Points: 100}

	for _, mult := range []float64{0, 0.5, 1, 2.5} {
		for _, spent := range []int64{0, 1, 999, 10000, 30000} {
			for _, answer := range []string{"0", "1", "3", "b", ""} {
				s := domain.Settings{QuestionTimeSeconds: 30, SpeedBonusMultiplier: mult}
				r := scoring.Score(q, s, answer, spent)
				require.False(t, r.Correct)
				require.Zero(t, r.PointsAwarded, "mult=%v spent=%d answer=%q", mult, spent, answer)
				require.Zero(t, r.SpeedBonus)
			}
		}
	}
}

func TestTimeSpent(t *testing.T) {
	ms := func(v int64) *int64 { return &v }
	window := 20 * time.Second

	tests := map[string]struct {
		client  *int64
		elapsed time.Duration
		want    int64
	}{
		"client report lower than server time wins":    {ms(5000), 6 * time.Second, 5000},
		"forged high latency is capped by server time": {ms(15000), 6 * time.Second, 6000},
		"missing client report uses server time":       {nil, 7 * time.Second, 7000},
		"negative client report is clamped to zero":    {ms(-50), 7 * time.Second, 0},
		"late answer is clamped to the window":         {nil, 45 * time.Second, 20000},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoring.TimeSpent(tt.client, tt.elapsed, window))
		})
	}
}
