package app

import (
	"sort"

	"quiz-gateway/internal/domain"
)

// Rank orders progress rows for display: score desc, then whoever reached the score earlier, then user id.
func Rank(progress []domain.UserProgress) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(progress))
	for _, p := range progress {
		entries = append(entries, domain.EntryFromProgress(p))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

// Top truncates a ranking to at most n entries.
func Top(entries []domain.LeaderboardEntry, n int) []domain.LeaderboardEntry {
	if n >= 0 && len(entries) > n {
		return entries[:n]
	}
	return entries
}

// mergeFresh substitutes the just-written row for a possibly older read of the same user. Scores never
// decrease, so the higher score is the newer one.
func mergeFresh(rows []domain.UserProgress, fresh domain.UserProgress) []domain.UserProgress {
	for i := range rows {
		if rows[i].UserID != fresh.UserID {
			continue
		}
		if rows[i].Score < fresh.Score {
			rows[i] = fresh
		}
		return rows
	}
	return append(rows, fresh)
}

func rankOf(entries []domain.LeaderboardEntry, userID string) int {
	for i, e := range entries {
		if e.UserID == userID {
			return i
		}
	}
	return -1
}
