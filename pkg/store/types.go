package store

import "time"

// DateFormat is the canonical key format for daily records (ISO calendar day).
const DateFormat = "2006-01-02"

// ExerciseKind identifies one entry in the fixed set of tracked exercises.
type ExerciseKind string

const (
	ExerciseSquats     ExerciseKind = "squats"
	ExercisePushups    ExerciseKind = "pushups"
	ExercisePlank      ExerciseKind = "plank"
	ExerciseStretching ExerciseKind = "stretching"
	ExerciseCardio     ExerciseKind = "cardio"
)

// ExerciseKinds returns the full kind set in declaration order. Declaration
// order doubles as the deterministic tie-break order for derived stats and
// the CSV column order.
func ExerciseKinds() []ExerciseKind {
	return []ExerciseKind{
		ExerciseSquats,
		ExercisePushups,
		ExercisePlank,
		ExerciseStretching,
		ExerciseCardio,
	}
}

// Valid reports whether k is a member of the fixed kind set.
func (k ExerciseKind) Valid() bool {
	for _, known := range ExerciseKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// DailyRecord is the per-day counter entity. There is at most one record per
// calendar day; counts only grow within a day unless the whole table is
// cleared or bulk-replaced by a restore.
type DailyRecord struct {
	Date          string               `json:"date"`
	SessionCount  int                  `json:"session_count"`
	ExerciseCount int                  `json:"exercise_count"`
	LastActivity  time.Time            `json:"last_activity"`
	Breakdown     map[ExerciseKind]int `json:"exercise_breakdown"`
}

// NewDailyRecord returns a zero record for the given day with an initialized
// breakdown map.
func NewDailyRecord(date string) *DailyRecord {
	return &DailyRecord{
		Date:      date,
		Breakdown: make(map[ExerciseKind]int),
	}
}

// ActivityEvent is one row of the raw activity log kept alongside the
// aggregated counters. The log is append-only and exported in snapshots.
type ActivityEvent struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"` // "session_start" or "exercise"
	Kind       string    `json:"kind,omitempty"`
	Amount     int       `json:"amount,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Event types recorded in the activity log.
const (
	ActivitySessionStart = "session_start"
	ActivityExercise     = "exercise"
)
