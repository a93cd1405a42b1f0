package writequeue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/compressa-ai/compressa-perf/internal/data"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE Experiments (id INTEGER PRIMARY KEY AUTOINCREMENT, experiment_name TEXT, experiment_date DATETIME, description TEXT);
	CREATE TABLE Parameters (id INTEGER PRIMARY KEY AUTOINCREMENT, experiment_id INTEGER, key TEXT, value TEXT);
	CREATE TABLE Metrics (id INTEGER PRIMARY KEY AUTOINCREMENT, experiment_id INTEGER, metric_name TEXT, metric_value REAL, timestamp DATETIME);
	CREATE TABLE Measurements (id INTEGER PRIMARY KEY AUTOINCREMENT, experiment_id INTEGER, n_input INTEGER, n_output INTEGER, ttft REAL, start_time REAL, end_time REAL, status TEXT);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func TestWriterBatchesAndDrains(t *testing.T) {
	db := openTestDB(t)
	w := New(db, nil, Config{BatchSize: 2, FlushInterval: 10 * time.Millisecond})

	for i := 0; i < 5; i++ {
		ok := w.EnqueueMeasurement(data.Succeeded(1, 0, 1.0, 1, 1, 0.1))
		if !ok {
			t.Fatalf("enqueue %d rejected", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.WaitForWrite(ctx, time.Second); err != nil {
		t.Fatalf("WaitForWrite: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM Measurements`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 measurements persisted, got %d", count)
	}
}

func TestEnqueueRejectedAfterClose(t *testing.T) {
	db := openTestDB(t)
	w := New(db, nil, Config{BatchSize: 2, FlushInterval: 10 * time.Millisecond})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ok := w.EnqueueMeasurement(data.Succeeded(1, 0, 1.0, 1, 1, 0.1)); ok {
		t.Fatalf("expected enqueue to be rejected after close")
	}
}
