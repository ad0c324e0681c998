// Package store provides the per-device persisted metrics store.
//
// # Overview
//
// The store is the single durable home for everything the data layer owns:
// one DailyRecord row per calendar day, the append-only raw activity log,
// and named JSON slots for small persisted state (backup settings, the sync
// queue). All other packages depend on the Store interface, never on the
// SQLite implementation directly.
//
// # Tables
//
// daily_records: date (PK), session_count, exercise_count, last_activity,
// breakdown (JSON object keyed by exercise kind)
//
// activity_log: append-only event rows (session starts, exercise entries)
//
// slots: name (PK) -> JSON blob
//
// # Usage Example
//
//	st, err := store.Open("/var/lib/stride/stride.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	rec, err := st.GetDailyRecord(ctx, "2024-01-15")
//	if errors.Is(err, store.ErrNotFound) {
//	    rec = store.NewDailyRecord("2024-01-15")
//	}
package store
