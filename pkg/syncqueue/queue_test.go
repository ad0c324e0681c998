package syncqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/store"
)

// fakeDeliverer scripts per-call outcomes and records every attempt.
type fakeDeliverer struct {
	mu       sync.Mutex
	err      error
	attempts []string
	block    chan struct{} // when set, Deliver waits until closed
}

func (d *fakeDeliverer) Deliver(ctx context.Context, item *Item) error {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, item.ID)
	return d.err
}

func (d *fakeDeliverer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

type captureReporter struct {
	mu    sync.Mutex
	items []*Item
}

func (r *captureReporter) ReportAbandoned(item *Item, lastErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	st, err := store.NewWithDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestQueue(t *testing.T, st store.Store, d Deliverer, r FailureReporter, maxAttempts int) *Queue {
	t.Helper()
	return NewQueue(st, d, r, maxAttempts, observability.NopLogger(), nil)
}

// setOnlineQuiet flips connectivity without the drain SetOnline triggers,
// so tests control drain timing themselves.
func setOnlineQuiet(q *Queue, online bool) {
	q.mu.Lock()
	q.online = online
	q.mu.Unlock()
}

func TestEnqueueAssignsIdentity(t *testing.T) {
	st := newTestStore(t)
	q := newTestQueue(t, st, &fakeDeliverer{}, nil, 3)

	a := q.Enqueue(context.Background(), KindRecordUpdate, ActionUpdate, json.RawMessage(`{"date":"2024-01-15"}`))
	b := q.Enqueue(context.Background(), KindSettingsUpdate, ActionUpdate, nil)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.EnqueuedAt.IsZero())
	assert.Zero(t, a.AttemptCount)

	status := q.GetStatus()
	assert.False(t, status.Online)
	assert.Equal(t, 2, status.Pending)
}

func TestQueueSurvivesRestart(t *testing.T) {
	st := newTestStore(t)
	q := newTestQueue(t, st, &fakeDeliverer{}, nil, 3)
	q.Enqueue(context.Background(), KindRecordUpdate, ActionCreate, json.RawMessage(`{}`))
	q.Enqueue(context.Background(), KindRecordUpdate, ActionUpdate, json.RawMessage(`{}`))

	// A fresh queue over the same store reloads the persisted items.
	q2 := newTestQueue(t, st, &fakeDeliverer{}, nil, 3)
	status := q2.GetStatus()
	assert.Equal(t, 2, status.Pending)
	assert.Equal(t, KindRecordUpdate, status.Items[0].Kind)
}

func TestCorruptSlotFallsBackToEmpty(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SetSlot(context.Background(), store.SlotSyncQueue, []byte("not json")))

	q := newTestQueue(t, st, &fakeDeliverer{}, nil, 3)
	assert.Zero(t, q.GetStatus().Pending)
}

func TestDrainDeliversInInsertionOrder(t *testing.T) {
	st := newTestStore(t)
	d := &fakeDeliverer{}
	q := newTestQueue(t, st, d, nil, 3)

	first := q.Enqueue(context.Background(), KindRecordUpdate, ActionCreate, nil)
	second := q.Enqueue(context.Background(), KindRecordUpdate, ActionUpdate, nil)

	q.SetOnline(true)
	require.Eventually(t, func() bool { return q.GetStatus().Pending == 0 }, time.Second, 5*time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, []string{first.ID, second.ID}, d.attempts)
}

func TestDrainIsNoOpOffline(t *testing.T) {
	st := newTestStore(t)
	d := &fakeDeliverer{}
	q := newTestQueue(t, st, d, nil, 3)
	q.Enqueue(context.Background(), KindRecordUpdate, ActionCreate, nil)

	q.Drain(context.Background())
	assert.Zero(t, d.attemptCount())
	assert.Equal(t, 1, q.GetStatus().Pending)
}

func TestFailedDeliveryRetriesUntilAbandoned(t *testing.T) {
	st := newTestStore(t)
	d := &fakeDeliverer{err: errors.New("endpoint down")}
	r := &captureReporter{}
	q := newTestQueue(t, st, d, r, 3)

	item := q.Enqueue(context.Background(), KindRecordUpdate, ActionUpdate, nil)
	setOnlineQuiet(q, true)

	// Three drains exhaust the budget of three attempts.
	q.Drain(context.Background())
	q.Drain(context.Background())
	assert.Equal(t, 1, q.GetStatus().Pending)
	q.Drain(context.Background())

	status := q.GetStatus()
	assert.Zero(t, status.Pending)
	assert.Equal(t, 1, status.Abandoned)
	assert.Equal(t, 3, d.attemptCount())

	// Reported exactly once, after the final attempt.
	r.mu.Lock()
	require.Len(t, r.items, 1)
	assert.Equal(t, item.ID, r.items[0].ID)
	assert.Equal(t, 3, r.items[0].AttemptCount)
	r.mu.Unlock()

	// Nothing left to deliver afterwards.
	q.Drain(context.Background())
	assert.Equal(t, 3, d.attemptCount())
}

func TestOverlappingDrainIsNoOp(t *testing.T) {
	st := newTestStore(t)
	block := make(chan struct{})
	d := &fakeDeliverer{block: block}
	q := newTestQueue(t, st, d, nil, 3)
	q.Enqueue(context.Background(), KindRecordUpdate, ActionCreate, nil)
	setOnlineQuiet(q, true)

	done := make(chan struct{})
	go func() {
		q.Drain(context.Background())
		close(done)
	}()

	// Wait until the first drain is inside Deliver, then trigger a second.
	require.Eventually(t, func() bool { return q.draining.Load() }, time.Second, time.Millisecond)
	q.Drain(context.Background()) // must return immediately as a no-op

	close(block)
	<-done

	assert.Equal(t, 1, d.attemptCount())
	assert.Zero(t, q.GetStatus().Pending)
}

func TestPartialFailureKeepsOrder(t *testing.T) {
	st := newTestStore(t)

	failFirst := &selectiveDeliverer{}
	q := newTestQueue(t, st, failFirst, nil, 5)
	a := q.Enqueue(context.Background(), KindRecordUpdate, ActionCreate, nil)
	q.Enqueue(context.Background(), KindRecordUpdate, ActionUpdate, nil)
	failFirst.failID = a.ID
	setOnlineQuiet(q, true)

	q.Drain(context.Background())

	status := q.GetStatus()
	require.Equal(t, 1, status.Pending)
	assert.Equal(t, a.ID, status.Items[0].ID)
	assert.Equal(t, 1, status.Items[0].AttemptCount)
}

// selectiveDeliverer fails exactly one item id.
type selectiveDeliverer struct {
	mu     sync.Mutex
	failID string
}

func (d *selectiveDeliverer) Deliver(ctx context.Context, item *Item) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if item.ID == d.failID {
		return errors.New("scripted failure")
	}
	return nil
}

func TestHTTPDeliverer(t *testing.T) {
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Stride-Item-ID")
		var item Item
		require.NoError(t, json.NewDecoder(r.Body).Decode(&item))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.URL, time.Second)
	item := &Item{ID: "item-1", Kind: KindRecordUpdate, Action: ActionUpdate}
	require.NoError(t, d.Deliver(context.Background(), item))
	assert.Equal(t, "item-1", gotID)
}

func TestHTTPDelivererRejectsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDeliverer(srv.URL, time.Second)
	err := d.Deliver(context.Background(), &Item{ID: "item-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
