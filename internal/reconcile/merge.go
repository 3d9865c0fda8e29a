// Package reconcile folds two progress snapshots into one. Every field has a
// join rule (max, later date, set union or multiset union), so merging is
// commutative and idempotent and never moves a monotonic counter backwards.
package reconcile

import (
	"slices"

	"github.com/example/progress-sync/internal/progress"
)

// Merge combines the local and remote views of the same user's progress.
func Merge(local, remote progress.Snapshot) progress.Snapshot {
	a := local.Normalize()
	b := remote.Normalize()

	out := progress.New()
	out.XP = max(a.XP, b.XP)
	out.LongestStreak = max(a.LongestStreak, b.LongestStreak)
	out.CurrentStage = max(a.CurrentStage, b.CurrentStage)
	out.TotalLogins = max(a.TotalLogins, b.TotalLogins)

	out.LastActivity = progress.LaterDate(a.LastActivity, b.LastActivity)
	out.LastLogin = progress.LaterDate(a.LastLogin, b.LastLogin)
	out.CurrentStreak = mergeStreak(a, b)

	out.CompletedLessons = a.CompletedLessons.Union(b.CompletedLessons)
	out.CompletedScenarios = a.CompletedScenarios.Union(b.CompletedScenarios)
	out.SubmittedProblems = a.SubmittedProblems.Union(b.SubmittedProblems)
	out.ClaimedWeeklyRewards = a.ClaimedWeeklyRewards.Union(b.ClaimedWeeklyRewards)
	out.QuizScores = mergeQuizLog(a.QuizScores, b.QuizScores)

	out.DailyCycleStart, out.WeeklyProgress, out.ClaimedDailyRewards = mergeDailyCycle(a, b)

	return out.Normalize()
}

// MergeOptional merges when either side may be missing. A missing remote
// leaves local untouched; a missing local adopts the remote.
func MergeOptional(local, remote *progress.Snapshot) progress.Snapshot {
	switch {
	case local == nil && remote == nil:
		return progress.New()
	case remote == nil:
		return local.Normalize()
	case local == nil:
		return remote.Normalize()
	default:
		return Merge(*local, *remote)
	}
}

// mergeStreak keeps the streak belonging to the most recent activity. On a tie
// both sides counted the same day, so the larger count wins.
func mergeStreak(a, b progress.Snapshot) int {
	switch {
	case a.LastActivity.Before(b.LastActivity):
		return b.CurrentStreak
	case b.LastActivity.Before(a.LastActivity):
		return a.CurrentStreak
	default:
		return max(a.CurrentStreak, b.CurrentStreak)
	}
}

// mergeQuizLog merges the attempt logs as multisets: each distinct attempt
// appears as often as on the side that recorded it most. Repeated identical
// attempts on one day survive; a replayed push adds nothing.
func mergeQuizLog(a, b []progress.QuizScore) []progress.QuizScore {
	seen := make(map[progress.QuizScore]int, len(a))
	for _, q := range a {
		seen[q]++
	}
	out := make([]progress.QuizScore, 0, len(a)+len(b))
	out = append(out, a...)
	fromB := make(map[progress.QuizScore]int, len(b))
	for _, q := range b {
		fromB[q]++
		if fromB[q] > seen[q] {
			out = append(out, q)
		}
	}
	slices.SortStableFunc(out, progress.QuizScore.Compare)
	return out
}

// mergeDailyCycle treats the daily-reward state as one register keyed by the
// cycle epoch. Within the same cycle claims accumulate; a newer cycle replaces
// an older one outright so stale claims never leak into a fresh cycle.
func mergeDailyCycle(a, b progress.Snapshot) (start, position int, claimed progress.IntSet) {
	switch {
	case a.DailyCycleStart == b.DailyCycleStart:
		return a.DailyCycleStart, max(a.WeeklyProgress, b.WeeklyProgress), a.ClaimedDailyRewards.Union(b.ClaimedDailyRewards)
	case a.DailyCycleStart > b.DailyCycleStart:
		return a.DailyCycleStart, a.WeeklyProgress, a.ClaimedDailyRewards.Union(nil)
	default:
		return b.DailyCycleStart, b.WeeklyProgress, b.ClaimedDailyRewards.Union(nil)
	}
}
