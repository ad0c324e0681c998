package analytics

import (
	"time"

	"github.com/strideworks/stride/pkg/store"
)

// Goal thresholds. DailyGoal is the fixed per-day exercise target; the
// weekly goal is its seven-day equivalent.
const (
	DailyGoal  = 10
	WeeklyGoal = 7 * DailyGoal
)

// Summary is the read-only analytics rollup returned by GetAnalytics.
type Summary struct {
	TotalSessions       int                        `json:"total_sessions"`
	TotalExercises      int                        `json:"total_exercises"`
	ActiveDays          int                        `json:"active_days"`
	AveragePerActiveDay float64                    `json:"average_per_active_day"`
	FirstActivity       *time.Time                 `json:"first_activity,omitempty"`
	LastActivity        *time.Time                 `json:"last_activity,omitempty"`
	CurrentStreak       int                        `json:"current_streak"`
	LongestStreak       int                        `json:"longest_streak"`
	FavoriteExercise    store.ExerciseKind         `json:"favorite_exercise,omitempty"`
	ThisWeekTotal       int                        `json:"this_week_total"`
	LastWeekTotal       int                        `json:"last_week_total"`
	WeekOverWeekGrowth  float64                    `json:"week_over_week_growth"`
	Distribution        map[store.ExerciseKind]int `json:"distribution"`
	DailyGoalMet        bool                       `json:"daily_goal_met"`
	WeeklyGoalPercent   float64                    `json:"weekly_goal_percent"`
}

// EmptySummary returns the well-defined all-zero result used when no data
// exists or a storage read fails.
func EmptySummary() *Summary {
	dist := make(map[store.ExerciseKind]int, len(store.ExerciseKinds()))
	for _, kind := range store.ExerciseKinds() {
		dist[kind] = 0
	}
	return &Summary{Distribution: dist}
}
