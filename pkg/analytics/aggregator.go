package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/store"
)

// Validation errors returned by RecordExercise. Storage errors are never
// returned; see the package doc.
var (
	ErrUnknownKind   = errors.New("unknown exercise kind")
	ErrInvalidAmount = errors.New("amount must be at least 1")
)

const summaryCacheKey = "summary"

// Aggregator maintains per-day counters and derives rollups.
type Aggregator struct {
	store   store.Store
	logger  *observability.Logger
	metrics *observability.Metrics

	// Summaries are recomputed on every dashboard render, so the latest
	// result is memoized briefly and dropped on any mutation.
	cache *lru.LRU[string, *Summary]

	mu       sync.Mutex
	dayLocks map[string]*sync.Mutex

	nowFn func() time.Time
}

// NewAggregator creates a new aggregator over the given store. metrics may
// be nil (useful in tests).
func NewAggregator(st store.Store, logger *observability.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		store:    st,
		logger:   logger.WithField("component", "analytics"),
		metrics:  metrics,
		cache:    lru.NewLRU[string, *Summary](4, nil, 30*time.Second),
		dayLocks: make(map[string]*sync.Mutex),
		nowFn:    time.Now,
	}
}

// dayLock returns the mutex serializing read-modify-write sequences for one
// day key.
func (a *Aggregator) dayLock(date string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	mu, ok := a.dayLocks[date]
	if !ok {
		mu = &sync.Mutex{}
		a.dayLocks[date] = mu
	}
	return mu
}

// RecordSessionStart increments today's session counter. Callers always
// observe success; storage failures are logged and swallowed.
func (a *Aggregator) RecordSessionStart(ctx context.Context) {
	if err := a.recordSessionStart(ctx); err != nil {
		a.swallow("record_session_start", err)
		return
	}
	if a.metrics != nil {
		a.metrics.SessionsRecordedTotal.Inc()
	}
}

func (a *Aggregator) recordSessionStart(ctx context.Context) error {
	now := a.nowFn().UTC()
	date := now.Format(store.DateFormat)

	mu := a.dayLock(date)
	mu.Lock()
	defer mu.Unlock()

	rec, err := a.loadOrZero(ctx, date)
	if err != nil {
		return err
	}
	rec.SessionCount++
	rec.LastActivity = now

	if err := a.store.PutDailyRecord(ctx, rec); err != nil {
		return err
	}
	if err := a.store.AppendActivity(ctx, store.ActivityEvent{
		Type:       store.ActivitySessionStart,
		RecordedAt: now,
	}); err != nil {
		return err
	}

	a.cache.Remove(summaryCacheKey)
	return nil
}

// RecordExercise adds amount units of the given kind to today's counters.
// kind must be a member of the fixed set and amount must be >= 1; violations
// return a validation error and have no effect. Storage failures are logged
// and swallowed.
func (a *Aggregator) RecordExercise(ctx context.Context, kind store.ExerciseKind, amount int) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if amount < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	if err := a.recordExercise(ctx, kind, amount); err != nil {
		a.swallow("record_exercise", err)
		return nil
	}
	if a.metrics != nil {
		a.metrics.ExercisesRecordedTotal.WithLabelValues(string(kind)).Add(float64(amount))
	}
	return nil
}

func (a *Aggregator) recordExercise(ctx context.Context, kind store.ExerciseKind, amount int) error {
	now := a.nowFn().UTC()
	date := now.Format(store.DateFormat)

	mu := a.dayLock(date)
	mu.Lock()
	defer mu.Unlock()

	rec, err := a.loadOrZero(ctx, date)
	if err != nil {
		return err
	}
	rec.ExerciseCount += amount
	rec.Breakdown[kind] += amount
	rec.LastActivity = now

	if err := a.store.PutDailyRecord(ctx, rec); err != nil {
		return err
	}
	if err := a.store.AppendActivity(ctx, store.ActivityEvent{
		Type:       store.ActivityExercise,
		Kind:       string(kind),
		Amount:     amount,
		RecordedAt: now,
	}); err != nil {
		return err
	}

	a.cache.Remove(summaryCacheKey)
	return nil
}

// Clear deletes all daily records and the raw activity log. Same swallow
// contract as the counter mutations.
func (a *Aggregator) Clear(ctx context.Context) {
	if err := a.store.ClearDailyRecords(ctx); err != nil {
		a.swallow("clear", err)
		return
	}
	if err := a.store.ClearActivity(ctx); err != nil {
		a.swallow("clear", err)
	}
	a.cache.Remove(summaryCacheKey)
}

// InvalidateCache drops the memoized summary. Called after a restore bulk-
// replaces the underlying tables outside the aggregator.
func (a *Aggregator) InvalidateCache() {
	a.cache.Remove(summaryCacheKey)
}

// loadOrZero reads the record for date, treating absence as a zero record.
func (a *Aggregator) loadOrZero(ctx context.Context, date string) (*store.DailyRecord, error) {
	rec, err := a.store.GetDailyRecord(ctx, date)
	if errors.Is(err, store.ErrNotFound) {
		return store.NewDailyRecord(date), nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// swallow applies the storage-error policy: log, count, carry on.
func (a *Aggregator) swallow(operation string, err error) {
	a.logger.WithError(err).WithField("operation", operation).Warn("storage error swallowed")
	if a.metrics != nil {
		a.metrics.StorageErrorsTotal.WithLabelValues(operation).Inc()
	}
}
