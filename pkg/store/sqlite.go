package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_records (
	date           TEXT PRIMARY KEY,
	session_count  INTEGER NOT NULL DEFAULT 0,
	exercise_count INTEGER NOT NULL DEFAULT 0,
	last_activity  TIMESTAMP NOT NULL,
	breakdown      TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS activity_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	type        TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	amount      INTEGER NOT NULL DEFAULT 0,
	recorded_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS slots (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore implements Store on a single local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the database at path and ensures the schema
// exists. The store assumes a single writer process per device, so the
// connection pool is capped at one connection to keep SQLite happy.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithDB wraps an existing database handle. The schema is still ensured.
// Intended for tests that open :memory: databases themselves.
func NewWithDB(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetDailyRecord implements Store.GetDailyRecord.
func (s *SQLiteStore) GetDailyRecord(ctx context.Context, date string) (*DailyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT date, session_count, exercise_count, last_activity, breakdown
		 FROM daily_records WHERE date = ?`, date)

	rec, err := scanDailyRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily record %s: %w", date, err)
	}
	return rec, nil
}

// PutDailyRecord implements Store.PutDailyRecord as an upsert keyed by date.
func (s *SQLiteStore) PutDailyRecord(ctx context.Context, rec *DailyRecord) error {
	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO daily_records (date, session_count, exercise_count, last_activity, breakdown)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
			session_count  = excluded.session_count,
			exercise_count = excluded.exercise_count,
			last_activity  = excluded.last_activity,
			breakdown      = excluded.breakdown`,
		rec.Date, rec.SessionCount, rec.ExerciseCount, rec.LastActivity.UTC(), string(breakdown))
	if err != nil {
		return fmt.Errorf("failed to put daily record %s: %w", rec.Date, err)
	}
	return nil
}

// ListDailyRecords implements Store.ListDailyRecords, ordered by date
// ascending.
func (s *SQLiteStore) ListDailyRecords(ctx context.Context) ([]*DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, session_count, exercise_count, last_activity, breakdown
		 FROM daily_records ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily records: %w", err)
	}
	defer rows.Close()

	var recs []*DailyRecord
	for rows.Next() {
		rec, err := scanDailyRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list daily records: %w", err)
	}
	return recs, nil
}

// ClearDailyRecords implements Store.ClearDailyRecords.
func (s *SQLiteStore) ClearDailyRecords(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_records`); err != nil {
		return fmt.Errorf("failed to clear daily records: %w", err)
	}
	return nil
}

// BulkInsertDailyRecords implements Store.BulkInsertDailyRecords. All rows
// are written inside one transaction so a failure inserts nothing.
func (s *SQLiteStore) BulkInsertDailyRecords(ctx context.Context, recs []*DailyRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_records (date, session_count, exercise_count, last_activity, breakdown)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		breakdown, err := json.Marshal(rec.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to marshal breakdown for %s: %w", rec.Date, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.Date, rec.SessionCount, rec.ExerciseCount, rec.LastActivity.UTC(), string(breakdown)); err != nil {
			return fmt.Errorf("failed to insert daily record %s: %w", rec.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk insert: %w", err)
	}
	return nil
}

// AppendActivity implements Store.AppendActivity.
func (s *SQLiteStore) AppendActivity(ctx context.Context, ev ActivityEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (type, kind, amount, recorded_at) VALUES (?, ?, ?, ?)`,
		ev.Type, ev.Kind, ev.Amount, ev.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append activity event: %w", err)
	}
	return nil
}

// ListActivity implements Store.ListActivity in insertion order.
func (s *SQLiteStore) ListActivity(ctx context.Context) ([]ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, kind, amount, recorded_at FROM activity_log ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity log: %w", err)
	}
	defer rows.Close()

	var evs []ActivityEvent
	for rows.Next() {
		var ev ActivityEvent
		var recordedAt time.Time
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Kind, &ev.Amount, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		ev.RecordedAt = recordedAt.UTC()
		evs = append(evs, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list activity log: %w", err)
	}
	return evs, nil
}

// ClearActivity implements Store.ClearActivity.
func (s *SQLiteStore) ClearActivity(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM activity_log`); err != nil {
		return fmt.Errorf("failed to clear activity log: %w", err)
	}
	return nil
}

// BulkInsertActivity implements Store.BulkInsertActivity in one transaction.
func (s *SQLiteStore) BulkInsertActivity(ctx context.Context, evs []ActivityEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO activity_log (type, kind, amount, recorded_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range evs {
		if _, err := stmt.ExecContext(ctx, ev.Type, ev.Kind, ev.Amount, ev.RecordedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert activity event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk insert: %w", err)
	}
	return nil
}

// GetSlot implements Store.GetSlot.
func (s *SQLiteStore) GetSlot(ctx context.Context, name string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", name, err)
	}
	return []byte(value), nil
}

// SetSlot implements Store.SetSlot as an upsert.
func (s *SQLiteStore) SetSlot(ctx context.Context, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, string(value))
	if err != nil {
		return fmt.Errorf("failed to set slot %s: %w", name, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDailyRecord(row rowScanner) (*DailyRecord, error) {
	var rec DailyRecord
	var lastActivity time.Time
	var breakdown string

	if err := row.Scan(&rec.Date, &rec.SessionCount, &rec.ExerciseCount, &lastActivity, &breakdown); err != nil {
		return nil, err
	}
	rec.LastActivity = lastActivity.UTC()

	rec.Breakdown = make(map[ExerciseKind]int)
	if breakdown != "" {
		if err := json.Unmarshal([]byte(breakdown), &rec.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
		}
	}
	return &rec, nil
}
