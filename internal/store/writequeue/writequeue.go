// Package writequeue implements the serialized write pipeline: a single
// background goroutine owns the one write connection to the embedded
// store, and every producer — experiment setup, inference runners, the
// analyzer — enqueues tagged items here instead of writing directly. This
// is the one place in the system that funnels concurrent producers through
// a single writer, eliminating "database is locked" contention under high
// worker concurrency.
//
// The queue/goroutine shape (mutex-guarded slice, batched dequeue on a
// ticker) is carried over from the project's bounded telemetry queue; the
// tier-based backpressure/shedding behavior of that queue does not apply
// here — this queue is unbounded and never drops an item once accepted.
package writequeue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/compressa-ai/compressa-perf/internal/config"
	"github.com/compressa-ai/compressa-perf/internal/data"
)

// ItemKind tags which entity a QueueItem carries.
type ItemKind int

const (
	KindMeasurement ItemKind = iota
	KindMetric
	KindParameter
)

// Item is the tagged-union value placed on the queue. Exactly one of
// Measurement/Metric/Parameter is populated, selected by Kind.
type Item struct {
	Kind        ItemKind
	Measurement data.Measurement
	Metric      data.Metric
	Parameter   data.Parameter
}

// Writer owns the sole write connection and drains Items in batches,
// committing each batch inside one transaction.
type Writer struct {
	db            *sql.DB
	log           *zap.Logger
	batchSize     int
	flushInterval time.Duration

	mu     sync.Mutex
	items  []Item
	closed bool

	wg sync.WaitGroup
}

// Config controls batching behavior.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// New constructs a Writer against db (a dedicated connection, distinct from
// any read-path *sql.DB) and starts its background consumer goroutine. The
// caller owns db's lifecycle and should not close it until after Close
// returns.
func New(db *sql.DB, log *zap.Logger, cfg Config) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultWriteBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = config.DefaultWriteFlushInterval
	}

	w := &Writer{
		db:            db,
		log:           log,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}

	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue adds item to the queue. It never blocks and never drops the item
// (the queue is unbounded); it returns false only once the writer has been
// closed.
func (w *Writer) Enqueue(item Item) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.items = append(w.items, item)
	return true
}

// EnqueueMeasurement is a convenience wrapper around Enqueue.
func (w *Writer) EnqueueMeasurement(m data.Measurement) bool {
	return w.Enqueue(Item{Kind: KindMeasurement, Measurement: m})
}

// EnqueueMetric is a convenience wrapper around Enqueue.
func (w *Writer) EnqueueMetric(m data.Metric) bool {
	return w.Enqueue(Item{Kind: KindMetric, Metric: m})
}

// EnqueueParameter is a convenience wrapper around Enqueue.
func (w *Writer) EnqueueParameter(p data.Parameter) bool {
	return w.Enqueue(Item{Kind: KindParameter, Parameter: p})
}

// run is the single background consumer. It polls every flushInterval,
// committing whatever has accumulated (up to batchSize items per
// transaction, repeated until the backlog is drained), the same
// poll-timeout-then-flush cadence as the batching scheme this is grounded
// on.
func (w *Writer) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for range ticker.C {
		if w.flushAvailable() == 0 && w.isClosed() {
			return
		}
	}
}

// flushAvailable drains and commits whatever is queued, in batches of at
// most batchSize, returning the total number of items flushed.
func (w *Writer) flushAvailable() int {
	total := 0
	for {
		batch := w.takeBatch()
		if len(batch) == 0 {
			return total
		}
		w.commit(batch)
		total += len(batch)
		if len(batch) < w.batchSize {
			return total
		}
	}
}

func (w *Writer) takeBatch() []Item {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.items) == 0 {
		return nil
	}
	n := w.batchSize
	if n > len(w.items) {
		n = len(w.items)
	}
	batch := make([]Item, n)
	copy(batch, w.items[:n])
	w.items = w.items[n:]
	return batch
}

func (w *Writer) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Writer) commit(batch []Item) {
	tx, err := w.db.Begin()
	if err != nil {
		w.log.Warn("write queue: begin transaction failed", zap.Error(err))
		return
	}

	for _, item := range batch {
		if err := execItem(tx, item); err != nil {
			w.log.Warn("write queue: item commit failed, item dropped", zap.Error(err))
		}
	}

	if err := tx.Commit(); err != nil {
		w.log.Warn("write queue: commit failed", zap.Error(err))
	}
}

func execItem(tx *sql.Tx, item Item) error {
	switch item.Kind {
	case KindMeasurement:
		m := item.Measurement
		_, err := tx.Exec(
			`INSERT INTO Measurements (experiment_id, n_input, n_output, ttft, start_time, end_time, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ExperimentID, m.NInput, m.NOutput, m.TTFT, m.StartTime, m.EndTime, string(m.Status))
		return err
	case KindMetric:
		m := item.Metric
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		_, err := tx.Exec(
			`INSERT INTO Metrics (experiment_id, metric_name, metric_value, timestamp) VALUES (?, ?, ?, ?)`,
			m.ExperimentID, m.Name, m.Value, ts.Format("2006-01-02 15:04:05"))
		return err
	case KindParameter:
		p := item.Parameter
		_, err := tx.Exec(
			`INSERT INTO Parameters (experiment_id, key, value) VALUES (?, ?, ?)`,
			p.ExperimentID, p.Key, p.Value)
		return err
	default:
		return fmt.Errorf("write queue: unknown item kind %d", item.Kind)
	}
}

// WaitForWrite blocks until the queue is fully drained or timeout elapses.
// Callers poll this between phase transitions (task completion -> analysis
// -> report) to ensure prior writes are visible before reading them back.
func (w *Writer) WaitForWrite(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		w.mu.Lock()
		empty := len(w.items) == 0
		w.mu.Unlock()
		if empty {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("write queue: wait_for_write timed out after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Close signals the writer to flush remaining items and stop. It blocks
// until the background goroutine has exited.
func (w *Writer) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
	// Final flush in case the last tick raced the closed flag.
	w.flushAvailable()
	return nil
}
