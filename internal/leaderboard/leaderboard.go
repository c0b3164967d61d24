package leaderboard

import (
	"math"
	"sort"

	"github.com/victornm/livequiz/internal/domain"
)

// Build ranks the participants of a session. The order is total: score descending,
// then aggregate answer time ascending, then join time ascending, then user id.
// Ranks are 1-based and never shared.
func Build(s *domain.Session) domain.Leaderboard {
	ps := make([]*domain.Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		ps = append(ps, p)
	}

	return domain.Leaderboard{
		SessionCode: s.SessionCode,
		Entries:     Rank(ps),
	}
}

// Rank sorts participants and turns them into leaderboard entries.
func Rank(ps []*domain.Participant) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(ps))
	joined := make(map[string]int64, len(ps))
	for _, p := range ps {
		correct, total := p.CorrectAnswers(), len(p.Answers)
		entries = append(entries, domain.LeaderboardEntry{
			UserID:           p.UserID,
			Username:         p.Username,
			Avatar:           p.Avatar,
			Score:            p.Score,
			CorrectAnswers:   correct,
			TotalAnswers:     total,
			Accuracy:         Accuracy(correct, total),
			TotalTimeSpentMs: p.TotalTimeSpentMs(),
		})
		joined[p.UserID] = p.JoinedAt.UnixNano()
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalTimeSpentMs != b.TotalTimeSpentMs {
			return a.TotalTimeSpentMs < b.TotalTimeSpentMs
		}
		if joined[a.UserID] != joined[b.UserID] {
			return joined[a.UserID] < joined[b.UserID]
		}
		return a.UserID < b.UserID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries
}

// Accuracy is correct/total as a rounded percentage. Unanswered questions are not counted.
func Accuracy(correct, total int) int {
	if total <= 0 {
		return 0
	}

	return int(math.Round(float64(correct) / float64(total) * 100))
}

// Stats aggregates answer counts across every participant of a session.
func Stats(s *domain.Session) domain.SessionStats {
	st := domain.SessionStats{TotalParticipants: len(s.Participants)}
	for _, p := range s.Participants {
		st.TotalAnswers += len(p.Answers)
		st.CorrectAnswers += p.CorrectAnswers()
	}
	st.AverageAccuracy = Accuracy(st.CorrectAnswers, st.TotalAnswers)

	return st
}
