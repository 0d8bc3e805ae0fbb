package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/metrics"
	"github.com/andy-wilson/thermostat_dashboard/reading"
)

// SQLiteStorage implements Backend using SQLite. Timestamps are stored as
// unix milliseconds so that ordering and window arithmetic happen in SQL.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewSQLiteStorage creates a new SQLite storage backend
func NewSQLiteStorage(dbPath string, logger *slog.Logger) *SQLiteStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStorage{dbPath: dbPath, logger: logger}
}

const selectReadings = `
	SELECT ts, current_temp, target_temp, humidity, energy_usage,
		   mode, occupancy, outside_temp
	FROM readings`

// Initialize sets up the SQLite database and creates tables
func (s *SQLiteStorage) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite3", s.dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	s.db = db

	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL UNIQUE,
		current_temp REAL NOT NULL,
		target_temp REAL NOT NULL,
		humidity REAL NOT NULL,
		energy_usage REAL NOT NULL,
		mode TEXT NOT NULL,
		occupancy INTEGER NOT NULL,
		outside_temp REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ts ON readings(ts);
	CREATE INDEX IF NOT EXISTS idx_mode ON readings(mode);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "failed to set pragma %q", pragma)
		}
	}

	s.logger.Debug("sqlite storage ready", "path", s.dbPath)
	return nil
}

// SaveReadings saves readings in one transaction. A reading whose timestamp
// already exists replaces the stored one.
func (s *SQLiteStorage) SaveReadings(ctx context.Context, readings []reading.Reading) error {
	for _, r := range readings {
		if err := reading.Validate(r); err != nil {
			return errors.Wrapf(err, "reading at %s", r.Timestamp.Format(time.RFC3339))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO readings (
			ts, current_temp, target_temp, humidity, energy_usage,
			mode, occupancy, outside_temp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	for _, r := range readings {
		_, err := stmt.ExecContext(ctx,
			r.Timestamp.UnixMilli(), r.CurrentTemp, r.TargetTemp, r.Humidity,
			r.EnergyUsage, r.Mode, r.Occupancy, r.OutsideTemp,
		)
		if err != nil {
			return errors.Wrap(err, "failed to insert reading")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (s *SQLiteStorage) query(ctx context.Context, query string, args ...interface{}) ([]reading.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query readings")
	}
	defer rows.Close()

	return scanReadings(rows)
}

// scanReadings is a helper to scan SQL rows into readings
func scanReadings(rows *sql.Rows) ([]reading.Reading, error) {
	readings := []reading.Reading{}
	for rows.Next() {
		var r reading.Reading
		var ts int64
		err := rows.Scan(
			&ts, &r.CurrentTemp, &r.TargetTemp, &r.Humidity, &r.EnergyUsage,
			&r.Mode, &r.Occupancy, &r.OutsideTemp,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan reading")
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating readings")
	}
	return readings, nil
}

// All returns every reading in ascending order
func (s *SQLiteStorage) All(ctx context.Context) ([]reading.Reading, error) {
	return s.query(ctx, selectReadings+` ORDER BY ts ASC`)
}

// Window returns the readings newer than the latest reading minus hours
func (s *SQLiteStorage) Window(ctx context.Context, hours int) ([]reading.Reading, error) {
	if hours <= 0 {
		return []reading.Reading{}, nil
	}
	if hours > reading.MaxWindowHours {
		return s.All(ctx)
	}
	span := (time.Duration(hours) * time.Hour).Milliseconds()
	return s.query(ctx, selectReadings+`
		WHERE ts > (SELECT MAX(ts) FROM readings) - ?
		ORDER BY ts ASC`, span)
}

// Range returns the readings between start and end inclusive
func (s *SQLiteStorage) Range(ctx context.Context, start, end time.Time) ([]reading.Reading, error) {
	return s.query(ctx, selectReadings+`
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts ASC`, start.UnixMilli(), end.UnixMilli())
}

// Latest returns the most recent reading
func (s *SQLiteStorage) Latest(ctx context.Context) (reading.Reading, error) {
	rs, err := s.query(ctx, selectReadings+` ORDER BY ts DESC LIMIT 1`)
	if err != nil {
		return reading.Reading{}, err
	}
	if len(rs) == 0 {
		return reading.Reading{}, errors.Wrap(metrics.ErrNoData, "latest reading")
	}
	return rs[0], nil
}

// Count returns total reading count
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count readings")
	}
	return count, nil
}

// HourlyAggregates groups readings per clock hour in SQL
func (s *SQLiteStorage) HourlyAggregates(ctx context.Context, from, to time.Time) ([]Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT
			(ts / 3600000) * 3600000 AS hour,
			AVG(current_temp), MIN(current_temp), MAX(current_temp),
			AVG(humidity), SUM(energy_usage), COUNT(*)
		FROM readings
		WHERE ts >= ? AND ts <= ?
		GROUP BY hour
		ORDER BY hour ASC
	`
	rows, err := s.db.QueryContext(ctx, query, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute aggregates")
	}
	defer rows.Close()

	aggregates := []Aggregate{}
	for rows.Next() {
		var a Aggregate
		var hour int64
		err := rows.Scan(&hour, &a.AvgTemp, &a.MinTemp, &a.MaxTemp, &a.AvgHumidity, &a.EnergyUsage, &a.Count)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan aggregate")
		}
		a.Hour = time.UnixMilli(hour).UTC()
		aggregates = append(aggregates, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating aggregates")
	}
	return aggregates, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
