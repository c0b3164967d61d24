package scoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/livequiz/internal/domain"
)

// Result is the outcome of scoring one validated submission.
type Result struct {
	Correct       bool
	BasePoints    int
	SpeedBonus    int
	PointsAwarded int
}

// TimeSpent returns the server-authoritative time spent on a question in milliseconds:
// the smaller of the client report and the server-measured elapsed time, clamped to the window.
// A nil client report means the server measurement is used as-is.
func TimeSpent(clientMs *int64, elapsed, window time.Duration) int64 {
	t := elapsed.Milliseconds()
	if clientMs != nil && *clientMs < t {
		t = *clientMs
	}

	if t < 0 {
		t = 0
	}
	if w := window.Milliseconds(); t > w {
		t = w
	}

	return t
}

// BasePoints returns the points a correct answer is worth before the speed bonus.
func BasePoints(q domain.Question, s domain.Settings) int {
	if s.PointsPerQuestionOverride != nil {
		return *s.PointsPerQuestionOverride
	}

	return q.Points
}

// Score computes correctness and points for an answer given after timeSpentMs.
// Wrong answers never earn points.
func Score(q domain.Question, s domain.Settings, answer string, timeSpentMs int64) Result {
	base := BasePoints(q, s)
	r := Result{
		Correct:    IsCorrect(q, answer),
		BasePoints: base,
	}
	if !r.Correct {
		return r
	}

	r.SpeedBonus = speedBonus(base, s, timeSpentMs)
	r.PointsAwarded = base + r.SpeedBonus
	return r
}

// speedBonus is floor(base * multiplier * (1 - t/window)), never negative.
// Decimal arithmetic keeps exact cases such as 3.75 from drifting across an integer boundary.
func speedBonus(base int, s domain.Settings, timeSpentMs int64) int {
	window := int64(s.QuestionTimeSeconds) * 1000
	if window <= 0 || base <= 0 || s.SpeedBonusMultiplier <= 0 {
		return 0
	}

	remaining := window - timeSpentMs
	if remaining <= 0 {
		return 0
	}
	if remaining > window {
		remaining = window
	}

	bonus := decimal.NewFromInt(int64(base)).
		Mul(decimal.NewFromFloat(s.SpeedBonusMultiplier)).
		Mul(decimal.NewFromInt(remaining)).
		Div(decimal.NewFromInt(window)).
		Floor().
		IntPart()

	return int(max(0, bonus))
}

// IsCorrect compares the normalized answer with the question's answer key.
func IsCorrect(q domain.Question, answer string) bool {
	given, want := Normalize(q.Type, answer), Normalize(q.Type, q.CorrectAnswer)
	if given == "" {
		return false
	}

	if q.Type == domain.QuestionTypeMultipleChoice {
		gi, errG := strconv.Atoi(given)
		wi, errW := strconv.Atoi(want)
		if errG == nil && errW == nil {
			return gi == wi
		}
	}

	return given == want
}

// Normalize lower-cases and trims an answer. Multiple choice answers are option
// identifiers, so only surrounding whitespace and case are ignored.
func Normalize(t domain.QuestionType, answer string) string {
	switch t {
	case domain.QuestionTypeTrueFalse:
		s := strings.ToLower(strings.TrimSpace(answer))
		switch s {
		case "t", "1", "yes":
			return "true"
		case "f", "0", "no":
			return "false"
		}
		return s
	default:
		return strings.ToLower(strings.TrimSpace(answer))
	}
}
