package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/stride/pkg/async"
	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/store"
)

// DefaultMaxAttempts is the per-item retry budget before abandonment.
const DefaultMaxAttempts = 5

const drainTimeout = 2 * time.Minute

// Deliverer attempts to replay one mutation against the remote counterpart.
type Deliverer interface {
	Deliver(ctx context.Context, item *Item) error
}

// FailureReporter is told about each permanently failed item exactly once.
type FailureReporter interface {
	ReportAbandoned(item *Item, lastErr error)
}

// Queue is the durable, offline-tolerant synchronization queue.
type Queue struct {
	store       store.Store
	deliverer   Deliverer
	reporter    FailureReporter
	maxAttempts int
	logger      *observability.Logger
	metrics     *observability.Metrics
	nowFn       func() time.Time

	mu     sync.Mutex
	items  []*Item
	online bool

	draining  atomic.Bool
	abandoned atomic.Int64
}

// NewQueue creates a queue, reloading any persisted items from the store.
// A missing or corrupt queue slot falls back to an empty queue. The queue
// starts offline; callers flip it with SetOnline. reporter may be nil.
func NewQueue(st store.Store, deliverer Deliverer, reporter FailureReporter, maxAttempts int,
	logger *observability.Logger, metrics *observability.Metrics) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	q := &Queue{
		store:       st,
		deliverer:   deliverer,
		reporter:    reporter,
		maxAttempts: maxAttempts,
		logger:      logger.WithField("component", "syncqueue"),
		metrics:     metrics,
		nowFn:       time.Now,
	}
	q.reload()
	return q
}

func (q *Queue) reload() {
	raw, err := q.store.GetSlot(context.Background(), store.SlotSyncQueue)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		q.logger.WithError(err).Warn("failed to load sync queue, starting empty")
		return
	}

	var items []*Item
	if err := json.Unmarshal(raw, &items); err != nil {
		q.logger.WithError(err).Warn("corrupt sync queue slot, starting empty")
		return
	}
	q.items = items
	q.gaugePending(len(items))
}

// Enqueue records a pending mutation and, when online, triggers an
// asynchronous drain. It never fails from the caller's perspective: a
// persistence error is logged and the item is still queued in memory.
func (q *Queue) Enqueue(ctx context.Context, kind ItemKind, action Action, payload json.RawMessage) *Item {
	item := &Item{
		ID:         uuid.NewString(),
		Kind:       kind,
		Action:     action,
		Payload:    payload,
		EnqueuedAt: q.nowFn().UTC(),
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	pending := len(q.items)
	online := q.online
	if err := q.persistLocked(ctx); err != nil {
		q.logger.WithError(err).Warn("failed to persist sync queue")
	}
	q.mu.Unlock()

	q.gaugePending(pending)
	q.logger.WithFields(map[string]interface{}{
		"id":   item.ID,
		"kind": string(kind),
	}).Debug("mutation enqueued")

	if online {
		async.SafeGo(context.Background(), drainTimeout, "sync queue drain", func(ctx context.Context) error {
			q.Drain(ctx)
			return nil
		})
	}
	return item
}

// SetOnline updates connectivity. The offline-to-online transition triggers
// a drain.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	q.mu.Unlock()

	if q.metrics != nil {
		if online {
			q.metrics.SyncOnline.Set(1)
		} else {
			q.metrics.SyncOnline.Set(0)
		}
	}

	if online && !wasOnline {
		q.logger.Info("connectivity restored, draining sync queue")
		async.SafeGo(context.Background(), drainTimeout, "sync queue drain", func(ctx context.Context) error {
			q.Drain(ctx)
			return nil
		})
	}
}

// Drain attempts delivery of all queued items in insertion order. It is a
// no-op when offline, when the queue is empty, or when another drain is
// already in progress. The queue is persisted once after the pass.
func (q *Queue) Drain(ctx context.Context) {
	if !q.draining.CompareAndSwap(false, true) {
		return
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	online := q.online
	batch := make([]*Item, len(q.items))
	copy(batch, q.items)
	q.mu.Unlock()

	if !online || len(batch) == 0 {
		return
	}

	var remaining []*Item
	for _, item := range batch {
		err := q.deliverer.Deliver(ctx, item)
		if err == nil {
			q.countDelivery("success")
			q.logger.WithField("id", item.ID).Debug("item delivered")
			continue
		}

		q.countDelivery("failure")
		item.AttemptCount++
		if item.AttemptCount >= q.maxAttempts {
			q.abandon(item, err)
			continue
		}
		q.logger.WithError(err).WithFields(map[string]interface{}{
			"id":       item.ID,
			"attempts": item.AttemptCount,
		}).Warn("delivery failed, will retry")
		remaining = append(remaining, item)
	}

	q.mu.Lock()
	// Items enqueued while this drain ran sit past the processed batch;
	// they stay queued for the next pass.
	tail := q.items[len(batch):]
	q.items = append(remaining, tail...)
	pending := len(q.items)
	if err := q.persistLocked(ctx); err != nil {
		q.logger.WithError(err).Warn("failed to persist sync queue")
	}
	q.mu.Unlock()

	q.gaugePending(pending)
}

// abandon removes an item permanently and reports it exactly once.
func (q *Queue) abandon(item *Item, lastErr error) {
	q.abandoned.Add(1)
	if q.metrics != nil {
		q.metrics.SyncAbandonedTotal.Inc()
	}
	q.logger.WithError(lastErr).WithFields(map[string]interface{}{
		"id":       item.ID,
		"attempts": item.AttemptCount,
	}).Error("item abandoned after exhausting retries")
	if q.reporter != nil {
		q.reporter.ReportAbandoned(item, lastErr)
	}
}

// GetStatus returns the connectivity state and pending contents.
func (q *Queue) GetStatus() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]Item, len(q.items))
	for i, item := range q.items {
		items[i] = *item
	}
	return Status{
		Online:    q.online,
		Pending:   len(items),
		Abandoned: int(q.abandoned.Load()),
		Items:     items,
	}
}

// persistLocked writes the queue slot. Callers hold q.mu.
func (q *Queue) persistLocked(ctx context.Context) error {
	items := q.items
	if items == nil {
		items = []*Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal sync queue: %w", err)
	}
	return q.store.SetSlot(ctx, store.SlotSyncQueue, raw)
}

func (q *Queue) gaugePending(n int) {
	if q.metrics != nil {
		q.metrics.SyncPendingItems.Set(float64(n))
	}
}

func (q *Queue) countDelivery(result string) {
	if q.metrics != nil {
		q.metrics.SyncDeliveriesTotal.WithLabelValues(result).Inc()
	}
}

// LogReporter is the default FailureReporter: abandoned items surface in
// the log and in the queue status so the UI can show how many items could
// not be synced.
type LogReporter struct {
	logger *observability.Logger
}

// NewLogReporter creates a reporter writing to the given logger.
func NewLogReporter(logger *observability.Logger) *LogReporter {
	return &LogReporter{logger: logger.WithField("component", "syncqueue")}
}

// ReportAbandoned implements FailureReporter.
func (r *LogReporter) ReportAbandoned(item *Item, lastErr error) {
	r.logger.WithError(lastErr).WithFields(map[string]interface{}{
		"id":   item.ID,
		"kind": string(item.Kind),
	}).Error("mutation could not be synced")
}
