package app

import (
	"sort"
	"time"

	"team-quiz-service/internal/domain"
)

// BuildLeaderboard ranks teams by score, then by who submitted first, then by name.
func BuildLeaderboard(teams []domain.Team, totalQuestions int, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(teams))
	for _, t := range teams {
		entries = append(entries, domain.LeaderboardEntry{
			TeamID:      t.ID,
			TeamName:    t.TeamName,
			Members:     t.Members,
			IPAddress:   t.IPAddress,
			Score:       t.Score,
			Submitted:   t.Submitted,
			SubmittedAt: t.SubmittedAt,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Submitted != b.Submitted {
			return a.Submitted
		}
		if a.Submitted && !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.TeamName < b.TeamName
	})

	return domain.Leaderboard{
		Entries:   entries,
		Total:     totalQuestions,
		UpdatedAt: now,
	}
}
