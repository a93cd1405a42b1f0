// Package runner drives the two experiment shapes against the inference
// engine: BoundedRunner dispatches exactly num_tasks requests across
// num_runners worker goroutines and stops, while StressRunner (in
// stress.go) paces an unbounded request stream until cancelled. Both
// funnel completed Measurements into a writequeue.Writer.
package runner

import (
	"context"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/compressa-ai/compressa-perf/internal/clientpool"
	"github.com/compressa-ai/compressa-perf/internal/data"
	"github.com/compressa-ai/compressa-perf/internal/inference"
	"github.com/compressa-ai/compressa-perf/internal/metrics"
	"github.com/compressa-ai/compressa-perf/internal/store/writequeue"
)

// Config bundles the fixed parameters a bounded or stress run shares.
type Config struct {
	Endpoint     string
	Model        string
	MaxTokens    int
	ExperimentID int64
	Seed         int64

	Pool    *clientpool.Pool
	Writer  *writequeue.Writer
	Log     *zap.Logger
	Signing SigningMode

	// Counters is optional; when set, live request counts are exposed via
	// a Prometheus collector in addition to the final analyzer pass.
	Counters *metrics.Counters
}

// SigningMode is the subset of inference.SigningMode the runner needs to
// thread through to each worker.
type SigningMode = inference.SigningMode

// BoundedRunner dispatches exactly NumTasks requests across NumRunners
// worker goroutines, each consuming from a shared closed task-index
// channel, and returns once every dispatched task has completed.
type BoundedRunner struct {
	cfg        Config
	numRunners int
	numTasks   int
	prompts    []string
}

// NewBounded constructs a BoundedRunner. Each task's prompt is drawn from
// prompts by a per-worker RNG seeded from cfg.Seed plus the worker index.
func NewBounded(cfg Config, numRunners, numTasks int, prompts []string) *BoundedRunner {
	if numRunners < 1 {
		numRunners = 1
	}
	return &BoundedRunner{cfg: cfg, numRunners: numRunners, numTasks: numTasks, prompts: prompts}
}

// Run spawns numRunners goroutines reading from a shared, pre-filled and
// closed task-index channel — the same bounded-fan-out-over-a-closed-
// channel idiom as a worker pool with a fixed amount of work. It blocks
// until every task has produced a Measurement (successful or failed) and
// been enqueued for persistence, or, once ctx is cancelled, until each
// worker has finished its current task; remaining tasks are then not run.
func (b *BoundedRunner) Run(ctx context.Context) {
	if b.numTasks <= 0 || len(b.prompts) == 0 {
		return
	}

	tasks := make(chan int, b.numTasks)
	for i := 0; i < b.numTasks; i++ {
		tasks <- i
	}
	close(tasks)

	var wg sync.WaitGroup
	for w := 0; w < b.numRunners; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			b.worker(ctx, workerID, tasks)
		}(w)
	}
	wg.Wait()
}

func (b *BoundedRunner) worker(ctx context.Context, workerID int, tasks <-chan int) {
	client := b.cfg.Pool.Get()
	inf := inference.New(client, b.cfg.ExperimentID, b.cfg.Log, b.cfg.Seed+int64(workerID))
	promptRng := rand.New(rand.NewSource(b.cfg.Seed + int64(workerID)))

	if b.cfg.Counters != nil {
		b.cfg.Counters.ActiveWorkers.Add(1)
		defer b.cfg.Counters.ActiveWorkers.Add(-1)
	}

	for idx := range tasks {
		select {
		case <-ctx.Done():
			return
		default:
		}

		prompt := b.prompts[promptRng.Intn(len(b.prompts))]
		req := inference.Request{
			Endpoint:  b.cfg.Endpoint,
			Model:     b.cfg.Model,
			Prompt:    prompt,
			MaxTokens: b.cfg.MaxTokens,
		}

		m, err := inf.Run(ctx, req, b.cfg.Signing)
		if err != nil {
			b.logger().Warn("worker: inference run failed to execute", zap.Int("task", idx), zap.Error(err))
			continue
		}
		b.cfg.Writer.EnqueueMeasurement(m)
		if b.cfg.Counters != nil {
			if m.Status == data.StatusSuccess {
				b.cfg.Counters.RecordSuccess(m.NInput, m.NOutput)
			} else {
				b.cfg.Counters.RecordFailure()
			}
		}
	}
}

func (b *BoundedRunner) logger() *zap.Logger {
	if b.cfg.Log == nil {
		return zap.NewNop()
	}
	return b.cfg.Log
}
