package backup

import (
	"fmt"
	"time"

	"github.com/strideworks/stride/pkg/store"
)

// FormatVersion is the snapshot document version written by this build.
// Restore accepts documents sharing the same major version only.
const FormatVersion = "2.0.0"

// Snapshot is an immutable, versioned export of all persisted state.
type Snapshot struct {
	FormatVersion string          `json:"formatVersion"`
	CreatedAt     time.Time       `json:"createdAt"`
	Data          *SnapshotData   `json:"data"`
	Summary       SnapshotSummary `json:"summary"`
}

// SnapshotData holds one array per persisted table.
type SnapshotData struct {
	DailyRecords []*store.DailyRecord  `json:"dailyRecords"`
	ActivityLog  []store.ActivityEvent `json:"activityLog"`
	Settings     *Settings             `json:"settings,omitempty"`
}

// SnapshotSummary is derived metadata stored redundantly so a snapshot can
// be displayed without re-aggregating its contents.
type SnapshotSummary struct {
	TotalSessions  int    `json:"total_sessions"`
	TotalExercises int    `json:"total_exercises"`
	ActiveDays     int    `json:"active_days"`
	CurrentStreak  int    `json:"current_streak"`
	Device         string `json:"device"`
}

// SnapshotInfo describes one locally held snapshot.
type SnapshotInfo struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Frequency is the automatic backup cadence.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is a known cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Threshold returns the minimum elapsed time since the last automatic
// backup before another one is due.
func (f Frequency) Threshold() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Settings is the persisted backup configuration.
type Settings struct {
	AutoBackupEnabled bool       `json:"auto_backup_enabled"`
	BackupFrequency   Frequency  `json:"backup_frequency"`
	MaxBackupFiles    int        `json:"max_backup_files"`
	LastBackupDate    *time.Time `json:"last_backup_date,omitempty"`
}

// DefaultSettings returns the documented defaults used when the settings
// slot is absent or corrupt.
func DefaultSettings() Settings {
	return Settings{
		AutoBackupEnabled: true,
		BackupFrequency:   FrequencyWeekly,
		MaxBackupFiles:    3,
	}
}

// Validate checks user-supplied settings.
func (s Settings) Validate() error {
	if !s.BackupFrequency.Valid() {
		return fmt.Errorf("invalid backup frequency %q", s.BackupFrequency)
	}
	if s.MaxBackupFiles < 1 {
		return fmt.Errorf("max backup files must be at least 1, got %d", s.MaxBackupFiles)
	}
	return nil
}
