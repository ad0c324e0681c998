package analytics

import (
	"context"
	"math"
	"time"

	"github.com/strideworks/stride/pkg/store"
)

// GetAnalytics returns the derived summary. It never fails: a storage read
// error yields the all-zero empty result.
func (a *Aggregator) GetAnalytics(ctx context.Context) *Summary {
	if cached, ok := a.cache.Get(summaryCacheKey); ok {
		return cached
	}

	recs, err := a.store.ListDailyRecords(ctx)
	if err != nil {
		a.swallow("get_analytics", err)
		return EmptySummary()
	}

	summary := a.summarize(recs)
	a.cache.Add(summaryCacheKey, summary)
	return summary
}

func (a *Aggregator) summarize(recs []*store.DailyRecord) *Summary {
	summary := EmptySummary()
	if len(recs) == 0 {
		return summary
	}

	now := a.nowFn().UTC()
	today := now.Format(store.DateFormat)

	byDate := make(map[string]*store.DailyRecord, len(recs))
	for _, rec := range recs {
		byDate[rec.Date] = rec

		summary.TotalSessions += rec.SessionCount
		summary.TotalExercises += rec.ExerciseCount
		for kind, count := range rec.Breakdown {
			summary.Distribution[kind] += count
		}

		if summary.FirstActivity == nil || rec.LastActivity.Before(*summary.FirstActivity) {
			t := rec.LastActivity
			summary.FirstActivity = &t
		}
		if summary.LastActivity == nil || rec.LastActivity.After(*summary.LastActivity) {
			t := rec.LastActivity
			summary.LastActivity = &t
		}
	}

	summary.ActiveDays = len(recs)
	summary.AveragePerActiveDay = float64(summary.TotalExercises) / float64(len(recs))

	summary.CurrentStreak = currentStreak(byDate, now)
	summary.LongestStreak = longestStreak(recs, summary.CurrentStreak)

	summary.FavoriteExercise = favoriteExercise(summary.Distribution)

	weekStart := mondayOf(now)
	summary.ThisWeekTotal = weekTotal(recs, weekStart)
	summary.LastWeekTotal = weekTotal(recs, weekStart.AddDate(0, 0, -7))
	if summary.LastWeekTotal > 0 {
		summary.WeekOverWeekGrowth = float64(summary.ThisWeekTotal-summary.LastWeekTotal) /
			float64(summary.LastWeekTotal) * 100
	}

	if rec, ok := byDate[today]; ok {
		summary.DailyGoalMet = rec.ExerciseCount >= DailyGoal
	}
	summary.WeeklyGoalPercent = math.Min(float64(summary.ThisWeekTotal)/float64(WeeklyGoal)*100, 100)

	return summary
}

// currentStreak counts consecutive active days ending today, or ending
// yesterday when today has no record yet. The anchor day counts as day one
// either way: an active yesterday with nothing today is still a streak of 1,
// not a day behind. Each existing predecessor extends the streak by one, so
// a run is worth the same length whether today's session has happened yet
// or not.
func currentStreak(byDate map[string]*store.DailyRecord, now time.Time) int {
	day := now.Truncate(24 * time.Hour)

	if _, ok := byDate[day.Format(store.DateFormat)]; !ok {
		day = day.AddDate(0, 0, -1)
		if _, ok := byDate[day.Format(store.DateFormat)]; !ok {
			return 0
		}
	}

	streak := 1
	for {
		day = day.AddDate(0, 0, -1)
		if _, ok := byDate[day.Format(store.DateFormat)]; !ok {
			return streak
		}
		streak++
	}
}

// longestStreak scans dates in ascending order: a gap of exactly one day
// extends the running streak, any other gap resets it. The result is never
// below the current streak, and at least 1 when any record exists.
func longestStreak(recs []*store.DailyRecord, current int) int {
	longest := 0
	if len(recs) > 0 {
		longest = 1
	}
	if current > longest {
		longest = current
	}

	run := 1
	for i := 1; i < len(recs); i++ {
		prev, err1 := time.Parse(store.DateFormat, recs[i-1].Date)
		cur, err2 := time.Parse(store.DateFormat, recs[i].Date)
		if err1 != nil || err2 != nil {
			run = 1
			continue
		}
		if cur.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// favoriteExercise picks the kind with the highest cumulative total. Ties
// break to the first kind in declaration order. When no exercise units have
// been recorded at all there is no favorite and the zero value is returned,
// which the summary encoding omits.
func favoriteExercise(dist map[store.ExerciseKind]int) store.ExerciseKind {
	var favorite store.ExerciseKind
	best := 0
	for _, kind := range store.ExerciseKinds() {
		if dist[kind] > best {
			best = dist[kind]
			favorite = kind
		}
	}
	return favorite
}

// mondayOf returns 00:00 UTC of the Monday starting t's week. Weeks run
// Monday through Sunday.
func mondayOf(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

// weekTotal sums exercise counts for records falling in the seven days
// starting at weekStart.
func weekTotal(recs []*store.DailyRecord, weekStart time.Time) int {
	weekEnd := weekStart.AddDate(0, 0, 7)
	total := 0
	for _, rec := range recs {
		day, err := time.Parse(store.DateFormat, rec.Date)
		if err != nil {
			continue
		}
		if !day.Before(weekStart) && day.Before(weekEnd) {
			total += rec.ExerciseCount
		}
	}
	return total
}
