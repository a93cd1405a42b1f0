// Package store is the persistence layer: schema creation, the embedded
// SQLite connection, and typed read-path fetches. Measurement, Metric and
// Parameter rows are written through the single background writer in the
// writequeue subpackage. Store itself performs two writes on its own
// connection: InsertExperiment and ClearMetricsByExperiment; its other
// methods are read-only. Store's methods are safe to call from any number
// of goroutines concurrently.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/compressa-ai/compressa-perf/internal/data"
	"github.com/compressa-ai/compressa-perf/internal/errs"
	"strings"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS Experiments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_name TEXT,
	experiment_date DATETIME,
	description TEXT
);

CREATE TABLE IF NOT EXISTS Parameters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id INTEGER NOT NULL REFERENCES Experiments(id),
	key TEXT,
	value TEXT
);

CREATE TABLE IF NOT EXISTS Metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id INTEGER NOT NULL REFERENCES Experiments(id),
	metric_name TEXT,
	metric_value REAL,
	timestamp DATETIME
);

CREATE TABLE IF NOT EXISTS Measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id INTEGER NOT NULL REFERENCES Experiments(id),
	n_input INTEGER,
	n_output INTEGER,
	ttft REAL,
	start_time REAL,
	end_time REAL,
	status TEXT
);
`

const timeLayout = "2006-01-02 15:04:05"

// Store is the read-path handle on the embedded relational store, which
// also creates Experiment rows and clears Metric rows. Exactly one Store and
// one writequeue.Writer should be constructed per database file — Store
// never opens a second connection of its own for writing.
type Store struct {
	db *sql.DB
}

// Open creates the schema (if absent) and returns a Store backed by path.
// A second *sql.DB should be opened by the caller for the writequeue.Writer.
// Store's connection is not opened read-only: besides the schema DDL it
// executes the INSERT of InsertExperiment and the DELETE of
// ClearMetricsByExperiment.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertExperiment creates a new Experiment row and returns its id. It is
// one of Store's two direct writes (with ClearMetricsByExperiment) —
// experiment creation happens
// once, synchronously, before any measurement can be enqueued, so there is
// no contention to serialize against.
func (s *Store) InsertExperiment(ctx context.Context, name, description string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO Experiments (experiment_name, experiment_date, description) VALUES (?, ?, ?)`,
		name, time.Now().UTC().Format(timeLayout), description)
	if err != nil {
		return 0, fmt.Errorf("%w: insert experiment: %v", errs.ErrStoreWrite, err)
	}
	return res.LastInsertId()
}

// Measurements fetches every Measurement row for experimentID, retrying on
// lock contention.
func (s *Store) Measurements(ctx context.Context, experimentID int64) ([]data.Measurement, error) {
	var out []data.Measurement
	err := retryOnBusy(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, experiment_id, n_input, n_output, ttft, start_time, end_time, status
			 FROM Measurements WHERE experiment_id = ?`, experimentID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m data.Measurement
			var status string
			if err := rows.Scan(&m.ID, &m.ExperimentID, &m.NInput, &m.NOutput, &m.TTFT, &m.StartTime, &m.EndTime, &status); err != nil {
				return err
			}
			m.Status = data.Status(status)
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch measurements: %v", errs.ErrStoreRead, err)
	}
	return out, nil
}

// Metrics fetches every Metric row for experimentID.
func (s *Store) Metrics(ctx context.Context, experimentID int64) ([]data.Metric, error) {
	var out []data.Metric
	err := retryOnBusy(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, experiment_id, metric_name, metric_value, timestamp
			 FROM Metrics WHERE experiment_id = ?`, experimentID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m data.Metric
			var ts string
			if err := rows.Scan(&m.ID, &m.ExperimentID, &m.Name, &m.Value, &ts); err != nil {
				return err
			}
			m.Timestamp, _ = time.Parse(timeLayout, ts)
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch metrics: %v", errs.ErrStoreRead, err)
	}
	return out, nil
}

// Parameters fetches every Parameter row for experimentID.
func (s *Store) Parameters(ctx context.Context, experimentID int64) ([]data.Parameter, error) {
	var out []data.Parameter
	err := retryOnBusy(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, experiment_id, key, value FROM Parameters WHERE experiment_id = ?`, experimentID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p data.Parameter
			if err := rows.Scan(&p.ID, &p.ExperimentID, &p.Key, &p.Value); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch parameters: %v", errs.ErrStoreRead, err)
	}
	return out, nil
}

// ClearMetricsByExperiment deletes every Metric row owned by experimentID,
// the "clear" half of the clear-and-recompute cycle the analyzer uses
// before writing a fresh metric set.
func (s *Store) ClearMetricsByExperiment(ctx context.Context, experimentID int64) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM Metrics WHERE experiment_id = ?`, experimentID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: clear metrics: %v", errs.ErrStoreWrite, err)
	}
	return nil
}

// DB exposes Store's own underlying *sql.DB. A writequeue.Writer given this
// handle shares Store's connection pool rather than using a separate one.
func (s *Store) DB() *sql.DB {
	return s.db
}

const (
	retryBaseDelay = 100 * time.Millisecond
	retryFactor    = 2
	retryMaxTries  = 5
)

// retryOnBusy retries fn on sqlite's "database is locked" condition with
// exponential backoff (base 100ms, factor 2, up to 5 attempts). Any other
// error is returned immediately without retry.
func retryOnBusy(ctx context.Context, fn func() error) error {
	delay := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt < retryMaxTries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isBusyErr(lastErr) {
			return lastErr
		}
		jitter := time.Duration(rand.Int63n(int64(delay / 4)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= retryFactor
	}
	return lastErr
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
