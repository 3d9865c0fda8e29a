package engine

import (
	"context"

	"github.com/example/progress-sync/internal/catalog"
	"github.com/example/progress-sync/internal/progress"
)

// Claimable lists the reward indices that can be claimed right now.
type Claimable struct {
	Daily  []int `json:"daily"`
	Weekly []int `json:"weekly"`
}

// RecordLogin counts today's session start. The first login of a day advances
// the consecutive-login position; a missed day or a completed cycle starts a
// new cycle, which clears the daily claims. It reports false when today was
// already counted.
func (e *Engine) RecordLogin(ctx context.Context) (progress.Snapshot, bool) {
	var counted bool
	s, _ := e.apply(ctx, "record_login", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if today.IsZero() || !s.LastLogin.Before(today) {
			return false, nil
		}

		s.TotalLogins++
		if s.LastLogin == today.AddDays(-1) && s.WeeklyProgress > 0 && s.WeeklyProgress < progress.DailyCycleLength {
			s.WeeklyProgress++
		} else {
			s.DailyCycleStart = s.TotalLogins
			s.WeeklyProgress = 1
			s.ClaimedDailyRewards = progress.IntSet{}
		}
		s.LastLogin = today
		counted = true
		return true, nil
	})
	return s, counted
}

// ClaimDaily claims the reward for a day of the running cycle. It does
// nothing and reports false when the day has not been reached, was already
// claimed, or has no reward.
func (e *Engine) ClaimDaily(ctx context.Context, day int) (catalog.Reward, bool) {
	var granted catalog.Reward
	var ok bool
	_, _ = e.apply(ctx, "claim_daily", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if day < 1 || day > progress.DailyCycleLength || day > s.WeeklyProgress || s.ClaimedDailyRewards.Has(day) {
			return false, nil
		}
		reward, found := e.catalog.DailyReward(day)
		if !found {
			return false, nil
		}
		s.ClaimedDailyRewards = s.ClaimedDailyRewards.With(day)
		if reward.GrantsXP() {
			awardXP(s, reward.Amount, today)
		}
		granted, ok = reward, true
		return true, nil
	})
	if ok {
		rewardClaims.WithLabelValues("daily").Inc()
		e.logger.Info().Int("day", day).Str("kind", string(granted.Kind)).Msg("daily reward claimed")
	}
	return granted, ok
}

// ClaimWeekly claims the reward for a completed block of seven logins.
// Weeks are numbered from 1.
func (e *Engine) ClaimWeekly(ctx context.Context, week int) (catalog.Reward, bool) {
	var granted catalog.Reward
	var ok bool
	_, _ = e.apply(ctx, "claim_weekly", func(s *progress.Snapshot, today progress.Date) (bool, error) {
		if week < 1 || week > weeksCompleted(*s) || s.ClaimedWeeklyRewards.Has(week) {
			return false, nil
		}
		reward, found := e.catalog.WeeklyReward(week)
		if !found {
			return false, nil
		}
		s.ClaimedWeeklyRewards = s.ClaimedWeeklyRewards.With(week)
		if reward.GrantsXP() {
			awardXP(s, reward.Amount, today)
		}
		granted, ok = reward, true
		return true, nil
	})
	if ok {
		rewardClaims.WithLabelValues("weekly").Inc()
		e.logger.Info().Int("week", week).Str("kind", string(granted.Kind)).Msg("weekly reward claimed")
	}
	return granted, ok
}

// Claimable derives the rewards that ClaimDaily and ClaimWeekly would grant.
func (e *Engine) Claimable() Claimable {
	s := e.Snapshot()
	out := Claimable{Daily: []int{}, Weekly: []int{}}

	for day := 1; day <= s.WeeklyProgress; day++ {
		if _, found := e.catalog.DailyReward(day); found && !s.ClaimedDailyRewards.Has(day) {
			out.Daily = append(out.Daily, day)
		}
	}
	for week := 1; week <= weeksCompleted(s); week++ {
		if _, found := e.catalog.WeeklyReward(week); found && !s.ClaimedWeeklyRewards.Has(week) {
			out.Weekly = append(out.Weekly, week)
		}
	}
	return out
}

func weeksCompleted(s progress.Snapshot) int {
	return s.TotalLogins / progress.DailyCycleLength
}
