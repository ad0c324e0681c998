package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a daily record or slot does not exist.
var ErrNotFound = errors.New("not found")

// Well-known slot names.
const (
	SlotBackupSettings = "backup_settings"
	SlotSyncQueue      = "sync_queue"
)

// Store is the contract consumed by the aggregator, the backup manager and
// the sync queue. It is a table-like key-value store: get-by-key, upsert,
// ordered scan, clear and bulk-insert on the record table, plus named JSON
// slots for small persisted state. Implementations are durable across
// process restarts.
type Store interface {
	// Daily record operations. GetDailyRecord returns ErrNotFound when no
	// record exists for the day. ListDailyRecords scans in ascending date
	// order. BulkInsertDailyRecords inserts all records in one transaction.
	GetDailyRecord(ctx context.Context, date string) (*DailyRecord, error)
	PutDailyRecord(ctx context.Context, rec *DailyRecord) error
	ListDailyRecords(ctx context.Context) ([]*DailyRecord, error)
	ClearDailyRecords(ctx context.Context) error
	BulkInsertDailyRecords(ctx context.Context, recs []*DailyRecord) error

	// Raw activity log operations.
	AppendActivity(ctx context.Context, ev ActivityEvent) error
	ListActivity(ctx context.Context) ([]ActivityEvent, error)
	ClearActivity(ctx context.Context) error
	BulkInsertActivity(ctx context.Context, evs []ActivityEvent) error

	// Slot operations for JSON-serialized state. GetSlot returns ErrNotFound
	// when the slot has never been written.
	GetSlot(ctx context.Context, name string) ([]byte, error)
	SetSlot(ctx context.Context, name string, value []byte) error

	Close() error
}
