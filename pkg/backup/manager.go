package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/strideworks/stride/pkg/analytics"
	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/store"
)

// Restore errors callers branch on. Both are descriptive hard stops: a
// format error means the document is unusable, an incomplete restore means
// the destination tables were cleared but not fully repopulated.
var (
	ErrUnsupportedFormat = errors.New("unsupported backup format version")
	ErrMissingData       = errors.New("backup is missing its data block")
	ErrRestoreIncomplete = errors.New("restore incomplete, local data may be inconsistent")
)

const (
	snapshotPrefix = "stride-backup-"
	snapshotSuffix = ".json"
)

// SummarySource supplies derived analytics for the snapshot summary block.
// Satisfied by *analytics.Aggregator.
type SummarySource interface {
	GetAnalytics(ctx context.Context) *analytics.Summary
	InvalidateCache()
}

// RemoteUploader pushes a persisted snapshot to a remote target. Uploads
// are best-effort; a failure never fails the local backup.
type RemoteUploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Manager produces snapshots, rotates the local snapshot set and restores
// from snapshot documents.
type Manager struct {
	store     store.Store
	summaries SummarySource
	dir       string
	device    string
	uploader  RemoteUploader
	logger    *observability.Logger
	metrics   *observability.Metrics
	nowFn     func() time.Time
}

// NewManager creates a backup manager writing local snapshots into dir.
// device is free-text device identification embedded in snapshot summaries.
func NewManager(st store.Store, summaries SummarySource, dir, device string,
	logger *observability.Logger, metrics *observability.Metrics) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Manager{
		store:     st,
		summaries: summaries,
		dir:       dir,
		device:    device,
		logger:    logger.WithField("component", "backup"),
		metrics:   metrics,
		nowFn:     time.Now,
	}, nil
}

// SetRemoteUploader configures an optional remote target for automatic
// backups.
func (m *Manager) SetRemoteUploader(u RemoteUploader) {
	m.uploader = u
}

// CreateSnapshot reads every persisted table plus the derived summary into
// a new immutable snapshot. Any underlying read failure propagates: a
// broken backup must never be silently produced.
//
// The store has no multi-table read transaction, so a concurrent aggregator
// write while the tables are being read may or may not be captured. That
// weak-consistency window is accepted: snapshots are taken on a coarse
// schedule, not at mutation boundaries.
func (m *Manager) CreateSnapshot(ctx context.Context) (*Snapshot, error) {
	recs, err := m.store.ListDailyRecords(ctx)
	if err != nil {
		m.countFailure("create")
		return nil, fmt.Errorf("failed to read daily records: %w", err)
	}
	log, err := m.store.ListActivity(ctx)
	if err != nil {
		m.countFailure("create")
		return nil, fmt.Errorf("failed to read activity log: %w", err)
	}
	settings, err := m.loadSettings(ctx)
	if err != nil {
		m.countFailure("create")
		return nil, fmt.Errorf("failed to read backup settings: %w", err)
	}

	// An empty store lists nil slices, which would encode as JSON null and
	// read back as an absent table. Normalize so empty snapshots stay
	// restorable.
	if recs == nil {
		recs = []*store.DailyRecord{}
	}
	if log == nil {
		log = []store.ActivityEvent{}
	}

	summary := m.summaries.GetAnalytics(ctx)

	snap := &Snapshot{
		FormatVersion: FormatVersion,
		CreatedAt:     m.nowFn().UTC(),
		Data: &SnapshotData{
			DailyRecords: recs,
			ActivityLog:  log,
			Settings:     &settings,
		},
		Summary: SnapshotSummary{
			TotalSessions:  summary.TotalSessions,
			TotalExercises: summary.TotalExercises,
			ActiveDays:     summary.ActiveDays,
			CurrentStreak:  summary.CurrentStreak,
			Device:         m.device,
		},
	}

	if m.metrics != nil {
		m.metrics.SnapshotsCreatedTotal.Inc()
	}
	return snap, nil
}

// Encode renders a snapshot as the downloadable JSON document.
func (m *Manager) Encode(snap *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// ParseSnapshot decodes an uploaded snapshot document.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot document: %w", err)
	}
	return &snap, nil
}

// PersistSnapshotLocally writes the snapshot into the rotation directory
// under a key embedding its creation time, then evicts the oldest files
// beyond the configured maximum.
func (m *Manager) PersistSnapshotLocally(ctx context.Context, snap *Snapshot) (string, error) {
	data, err := m.Encode(snap)
	if err != nil {
		m.countFailure("persist")
		return "", err
	}

	key := fmt.Sprintf("%s%020d%s", snapshotPrefix, snap.CreatedAt.UnixNano(), snapshotSuffix)
	if err := os.WriteFile(filepath.Join(m.dir, key), data, 0644); err != nil {
		m.countFailure("persist")
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}

	settings, err := m.loadSettings(ctx)
	if err != nil {
		settings = DefaultSettings()
	}
	if err := m.evictOldest(settings.MaxBackupFiles); err != nil {
		m.logger.WithError(err).Warn("snapshot eviction failed")
	}

	m.logger.WithField("key", key).Info("snapshot persisted locally")
	return key, nil
}

// ListLocalSnapshots returns metadata for all locally held snapshots,
// newest first. Ordering relies solely on the creation stamp embedded in
// the key.
func (m *Manager) ListLocalSnapshots() ([]SnapshotInfo, error) {
	keys, err := m.snapshotKeys()
	if err != nil {
		return nil, err
	}
	// ascending by stamp; flip to newest first
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	infos := make([]SnapshotInfo, 0, len(keys))
	for _, key := range keys {
		fi, err := os.Stat(filepath.Join(m.dir, key))
		if err != nil {
			return nil, fmt.Errorf("failed to stat snapshot %s: %w", key, err)
		}
		infos = append(infos, SnapshotInfo{
			Key:       key,
			CreatedAt: stampOf(key),
			SizeBytes: fi.Size(),
		})
	}

	if m.metrics != nil {
		m.metrics.LocalSnapshotsHeld.Set(float64(len(infos)))
	}
	return infos, nil
}

// LoadLocalSnapshot reads one snapshot from the rotation set by key.
func (m *Manager) LoadLocalSnapshot(key string) (*Snapshot, error) {
	if !strings.HasPrefix(key, snapshotPrefix) || strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("invalid snapshot key %q", key)
	}
	data, err := os.ReadFile(filepath.Join(m.dir, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	return ParseSnapshot(data)
}

// Restore validates the snapshot and bulk-replaces every destination table
// with its contents. Validation failures leave existing tables untouched;
// a failure after the tables were cleared surfaces ErrRestoreIncomplete.
func (m *Manager) Restore(ctx context.Context, snap *Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		m.countFailure("restore")
		return err
	}

	if err := m.store.ClearDailyRecords(ctx); err != nil {
		m.countFailure("restore")
		return fmt.Errorf("failed to clear daily records: %w", err)
	}
	if err := m.store.BulkInsertDailyRecords(ctx, snap.Data.DailyRecords); err != nil {
		m.countFailure("restore")
		return fmt.Errorf("%w: daily records: %v", ErrRestoreIncomplete, err)
	}
	if err := m.store.ClearActivity(ctx); err != nil {
		m.countFailure("restore")
		return fmt.Errorf("%w: activity log: %v", ErrRestoreIncomplete, err)
	}
	if err := m.store.BulkInsertActivity(ctx, snap.Data.ActivityLog); err != nil {
		m.countFailure("restore")
		return fmt.Errorf("%w: activity log: %v", ErrRestoreIncomplete, err)
	}
	if snap.Data.Settings != nil {
		if err := m.storeSettings(ctx, *snap.Data.Settings); err != nil {
			m.countFailure("restore")
			return fmt.Errorf("%w: settings: %v", ErrRestoreIncomplete, err)
		}
	}

	m.summaries.InvalidateCache()
	if m.metrics != nil {
		m.metrics.SnapshotsRestoredTotal.Inc()
	}
	m.logger.WithField("created_at", snap.CreatedAt).Info("snapshot restored")
	return nil
}

// ShouldAutoBackup reports whether an automatic backup is due under the
// current settings.
func (m *Manager) ShouldAutoBackup(ctx context.Context) bool {
	settings := m.Settings(ctx)
	if !settings.AutoBackupEnabled {
		return false
	}
	if settings.LastBackupDate == nil {
		return true
	}
	return m.nowFn().Sub(*settings.LastBackupDate) >= settings.BackupFrequency.Threshold()
}

// RunAutoBackup creates and persists one snapshot, pushes it to the remote
// target when one is configured, and records the successful backup time.
func (m *Manager) RunAutoBackup(ctx context.Context) error {
	snap, err := m.CreateSnapshot(ctx)
	if err != nil {
		return err
	}
	key, err := m.PersistSnapshotLocally(ctx, snap)
	if err != nil {
		return err
	}

	if m.uploader != nil {
		data, err := m.Encode(snap)
		if err == nil {
			err = m.uploader.Upload(ctx, key, data)
		}
		if err != nil {
			m.countFailure("upload")
			m.logger.WithError(err).WithField("key", key).Warn("remote snapshot upload failed")
		}
	}

	settings := m.Settings(ctx)
	now := m.nowFn().UTC()
	settings.LastBackupDate = &now
	if err := m.storeSettings(ctx, settings); err != nil {
		return fmt.Errorf("failed to record backup time: %w", err)
	}
	return nil
}

// Settings returns the persisted backup settings, falling back to the
// documented defaults on absence or corruption.
func (m *Manager) Settings(ctx context.Context) Settings {
	settings, err := m.loadSettings(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("falling back to default backup settings")
		return DefaultSettings()
	}
	return settings
}

// UpdateSettings validates and persists user-supplied settings. The last
// backup time is carried over; callers cannot rewrite it.
func (m *Manager) UpdateSettings(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	current := m.Settings(ctx)
	settings.LastBackupDate = current.LastBackupDate
	return m.storeSettings(ctx, settings)
}

func (m *Manager) loadSettings(ctx context.Context) (Settings, error) {
	raw, err := m.store.GetSlot(ctx, store.SlotBackupSettings)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, err
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Settings{}, fmt.Errorf("corrupt backup settings slot: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("corrupt backup settings slot: %w", err)
	}
	return settings, nil
}

func (m *Manager) storeSettings(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal backup settings: %w", err)
	}
	return m.store.SetSlot(ctx, store.SlotBackupSettings, raw)
}

// snapshotKeys lists rotation-set filenames in ascending stamp order.
func (m *Manager) snapshotKeys() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

// stampOf recovers the creation time encoded in a snapshot key. Keys that
// fail to parse report the zero time.
func stampOf(key string) time.Time {
	stamp := strings.TrimSuffix(strings.TrimPrefix(key, snapshotPrefix), snapshotSuffix)
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// evictOldest deletes the oldest snapshots beyond max, oldest first by the
// stamp embedded in the key.
func (m *Manager) evictOldest(max int) error {
	keys, err := m.snapshotKeys()
	if err != nil {
		return err
	}
	for len(keys) > max {
		key := keys[0]
		keys = keys[1:]
		if err := os.Remove(filepath.Join(m.dir, key)); err != nil {
			return fmt.Errorf("failed to evict snapshot %s: %w", key, err)
		}
		m.logger.WithField("key", key).Info("evicted oldest snapshot")
	}
	if m.metrics != nil {
		m.metrics.LocalSnapshotsHeld.Set(float64(len(keys)))
	}
	return nil
}

func (m *Manager) countFailure(operation string) {
	if m.metrics != nil {
		m.metrics.SnapshotFailuresTotal.WithLabelValues(operation).Inc()
	}
}

// validateSnapshot checks the document before any destination table is
// touched.
func validateSnapshot(snap *Snapshot) error {
	if snap.FormatVersion == "" {
		return fmt.Errorf("%w: version missing", ErrUnsupportedFormat)
	}
	if majorOf(snap.FormatVersion) != majorOf(FormatVersion) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, snap.FormatVersion, FormatVersion)
	}
	if snap.Data == nil || snap.Data.DailyRecords == nil {
		return ErrMissingData
	}
	return nil
}

func majorOf(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return -1
	}
	return n
}
