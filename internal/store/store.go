// Package store manages the SQLite database that caches vital readings and
// day-level aggregates pulled from the wearable and the backend.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. The connection pool is capped at one open
// connection, so overlapping batch writes for the same vital are serialized at
// the store rather than at each call site.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/vitalsync/internal/model"
	"github.com/njoerd114/vitalsync/internal/sleep"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
    vital_type TEXT    NOT NULL,
    ts         INTEGER NOT NULL,
    value      REAL    NOT NULL,
    value2     REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (vital_type, ts)
);

CREATE TABLE IF NOT EXISTS daily_aggregates (
    vital_type   TEXT    NOT NULL,
    date         TEXT    NOT NULL,
    value        REAL    NOT NULL,
    value2       REAL    NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL,
    PRIMARY KEY (vital_type, date)
);

CREATE INDEX IF NOT EXISTS idx_aggregates_date ON daily_aggregates (date);
`

// Store is the SQLite-backed local vital cache.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the cache database:
// ~/.local/share/vitalsync/vitals.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "vitalsync", "vitals.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// SaveNewBatch inserts readings that are not yet present, keyed by
// (vital_type, ts). Re-ingesting the same device payload is a no-op: existing
// rows are skipped, never overwritten, so the first accepted value for a
// timestamp wins. The whole batch is one transaction — on error nothing is
// persisted. Returns the number of newly inserted rows.
func (s *Store) SaveNewBatch(ctx context.Context, readings []model.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT OR IGNORE INTO readings (vital_type, ts, value, value2)
		VALUES (?, ?, ?, ?)`

	saved := 0
	for _, r := range readings {
		res, err := tx.ExecContext(ctx, q, string(r.VitalType), r.Timestamp, r.Value, r.Value2)
		if err != nil {
			return 0, fmt.Errorf("inserting %s reading at %d: %w", r.VitalType, r.Timestamp, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking insert result: %w", err)
		}
		saved += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing batch: %w", err)
	}
	return saved, nil
}

// GetByDateRange returns all readings of a vital with start <= ts < end,
// sorted ascending by timestamp.
func (s *Store) GetByDateRange(ctx context.Context, vital model.VitalType, start, end int64) ([]model.Reading, error) {
	const q = `
		SELECT vital_type, ts, value, value2
		FROM readings
		WHERE vital_type = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, q, string(vital), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying %s readings: %w", vital, err)
	}
	defer func() { _ = rows.Close() }()

	var readings []model.Reading
	for rows.Next() {
		var r model.Reading
		var vt string
		if err := rows.Scan(&vt, &r.Timestamp, &r.Value, &r.Value2); err != nil {
			return nil, fmt.Errorf("scanning reading row: %w", err)
		}
		r.VitalType = model.VitalType(vt)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// GetDay returns all readings of a vital for a calendar day, sorted ascending.
func (s *Store) GetDay(ctx context.Context, vital model.VitalType, date string) ([]model.Reading, error) {
	start, end, err := model.DayBounds(date)
	if err != nil {
		return nil, err
	}
	return s.GetByDateRange(ctx, vital, start, end)
}

// UpsertAggregates inserts or updates day rows in one transaction.
// last_updated strictly increases on every accepted write, even when the
// caller's clock has not moved past the stored value.
func (s *Store) UpsertAggregates(ctx context.Context, aggs []model.DailyAggregate) error {
	if len(aggs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning aggregate transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO daily_aggregates (vital_type, date, value, value2, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vital_type, date) DO UPDATE SET
		    value        = excluded.value,
		    value2       = excluded.value2,
		    last_updated = MAX(excluded.last_updated, daily_aggregates.last_updated + 1)`

	for _, a := range aggs {
		if _, err := tx.ExecContext(ctx, q, string(a.VitalType), a.Date, a.Value, a.Value2, a.LastUpdated); err != nil {
			return fmt.Errorf("upserting %s aggregate for %s: %w", a.VitalType, a.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing aggregates: %w", err)
	}
	return nil
}

// GetAggregateRange returns day rows of a vital with from <= date <= to,
// sorted ascending by date.
func (s *Store) GetAggregateRange(ctx context.Context, vital model.VitalType, from, to string) ([]model.DailyAggregate, error) {
	const q = `
		SELECT vital_type, date, value, value2, last_updated
		FROM daily_aggregates
		WHERE vital_type = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`
	rows, err := s.db.QueryContext(ctx, q, string(vital), from, to)
	if err != nil {
		return nil, fmt.Errorf("querying %s aggregates: %w", vital, err)
	}
	defer func() { _ = rows.Close() }()

	var aggs []model.DailyAggregate
	for rows.Next() {
		var a model.DailyAggregate
		var vt string
		if err := rows.Scan(&vt, &a.Date, &a.Value, &a.Value2, &a.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning aggregate row: %w", err)
		}
		a.VitalType = model.VitalType(vt)
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// RollupDay recomputes the day aggregate of a vital from its cached readings
// and upserts it. A day with no readings leaves the aggregate table untouched.
func (s *Store) RollupDay(ctx context.Context, profile model.Profile, date string, now int64) error {
	readings, err := s.GetDay(ctx, profile.Type, date)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return nil
	}

	agg := model.DailyAggregate{
		VitalType:   profile.Type,
		Date:        date,
		LastUpdated: now,
	}

	// Sleep readings are stage segments, not samples. Their day value is
	// total sleep minutes, computed from the stitched session.
	if profile.Type == model.VitalSleep {
		_, stats, ok := sleep.BuildDay(readings)
		if !ok {
			return nil
		}
		agg.Value = float64(stats.TotalSleepMinutes)
		return s.UpsertAggregates(ctx, []model.DailyAggregate{agg})
	}

	switch profile.Aggregate {
	case model.AggregateSum:
		for _, r := range readings {
			agg.Value += r.Value
			agg.Value2 += r.Value2
		}
	case model.AggregateLast:
		last := readings[len(readings)-1]
		agg.Value = last.Value
		agg.Value2 = last.Value2
	default:
		for _, r := range readings {
			agg.Value += r.Value
			agg.Value2 += r.Value2
		}
		agg.Value /= float64(len(readings))
		agg.Value2 /= float64(len(readings))
	}

	return s.UpsertAggregates(ctx, []model.DailyAggregate{agg})
}

// IsEmpty reports whether the cache holds no readings and no aggregates.
// Used by the first-run backfill to detect a fresh install.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM readings) + (SELECT COUNT(*) FROM daily_aggregates)`,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking if store is empty: %w", err)
	}
	return count == 0, nil
}

// Reset deletes all cached data. Called on logout.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"readings", "daily_aggregates"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}
	return nil
}
