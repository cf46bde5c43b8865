// SPDX-License-Identifier: MIT

// Package history keeps a SQLite log of wavemeter readings.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/jbqubit/ndsp-highfinesse/internal/monitor"
	"github.com/jbqubit/ndsp-highfinesse/internal/wlm"
)

// ErrInvalidLimit is returned for non-positive query limits.
var ErrInvalidLimit = errors.New("history: limit must be positive")

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// Entry is one stored frequency reading.
type Entry struct {
	Time    time.Time             `json:"time"`
	Channel int                   `json:"channel"`
	Status  wlm.MeasurementStatus `json:"status"`
	Hz      float64               `json:"frequency_hz"`
}

// Store persists snapshots. It implements monitor.Sink.
type Store struct {
	db   *sql.DB
	path string
}

var _ monitor.Sink = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS frequency_readings (
	ts INTEGER NOT NULL,
	channel INTEGER NOT NULL,
	status INTEGER NOT NULL CHECK(status BETWEEN 0 AND 3),
	hz REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_frequency_channel_ts ON frequency_readings(channel, ts);
CREATE INDEX IF NOT EXISTS idx_frequency_ts ON frequency_readings(ts);

CREATE TABLE IF NOT EXISTS environment_readings (
	ts INTEGER NOT NULL,
	temperature_c REAL,
	pressure_mbar REAL
);
CREATE INDEX IF NOT EXISTS idx_environment_ts ON environment_readings(ts);
`

// Open opens or creates the database at path. WAL mode and busy_timeout
// are set through the DSN so they apply to every pooled connection.
func Open(path string, cfg Config) (*Store, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Name implements monitor.Sink.
func (s *Store) Name() string { return "history" }

// Record stores a whole snapshot in one transaction.
func (s *Store) Record(ctx context.Context, snap monitor.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ts := snap.Time.UnixNano()
	for _, r := range snap.Readings {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO frequency_readings (ts, channel, status, hz) VALUES (?, ?, ?, ?)`,
			ts, r.Channel, int(r.Status), r.Hz); err != nil {
			return fmt.Errorf("history: insert reading: %w", err)
		}
	}
	if snap.TemperatureC != nil || snap.PressureMbar != nil {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO environment_readings (ts, temperature_c, pressure_mbar) VALUES (?, ?, ?)`,
			ts, nullFloat(snap.TemperatureC), nullFloat(snap.PressureMbar)); err != nil {
			return fmt.Errorf("history: insert environment: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// RecordFrequency stores a single reading.
func (s *Store) RecordFrequency(ctx context.Context, at time.Time, r wlm.Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO frequency_readings (ts, channel, status, hz) VALUES (?, ?, ?, ?)`,
		at.UnixNano(), r.Channel, int(r.Status), r.Hz)
	if err != nil {
		return fmt.Errorf("history: insert reading: %w", err)
	}
	return nil
}

// RecordEnvironment stores temperature and pressure; either may be nil.
func (s *Store) RecordEnvironment(ctx context.Context, at time.Time, tempC, pressureMbar *float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO environment_readings (ts, temperature_c, pressure_mbar) VALUES (?, ?, ?)`,
		at.UnixNano(), nullFloat(tempC), nullFloat(pressureMbar))
	if err != nil {
		return fmt.Errorf("history: insert environment: %w", err)
	}
	return nil
}

// RecentFrequency returns up to limit readings of a channel, newest first.
func (s *Store) RecentFrequency(ctx context.Context, channel, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, channel, status, hz FROM frequency_readings
		 WHERE channel = ? ORDER BY ts DESC, rowid DESC LIMIT ?`,
		channel, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			ts     int64
			e      Entry
			status int
		)
		if err := rows.Scan(&ts, &e.Channel, &status, &e.Hz); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Time = time.Unix(0, ts).UTC()
		e.Status = wlm.MeasurementStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return entries, nil
}

// Prune deletes rows older than cutoff and returns the number removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"frequency_readings", "environment_readings"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE ts < ?", cutoff.UnixNano())
		if err != nil {
			return total, fmt.Errorf("history: prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Verify runs an integrity check. Mode "full" uses integrity_check, anything
// else quick_check. It returns the diagnostic rows, or nil when healthy.
func (s *Store) Verify(ctx context.Context, mode string) ([]string, error) {
	pragma := "PRAGMA quick_check;"
	if mode == "full" {
		pragma = "PRAGMA integrity_check;"
	}
	rows, err := s.db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("history: integrity pragma failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("history: scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return results, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
