package runner

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/compressa-ai/compressa-perf/internal/analysis"
	"github.com/compressa-ai/compressa-perf/internal/config"
	"github.com/compressa-ai/compressa-perf/internal/data"
	"github.com/compressa-ai/compressa-perf/internal/inference"
	"github.com/compressa-ai/compressa-perf/internal/store"
)

// StressState is the continuous stress runner's lifecycle state.
type StressState int32

const (
	StateRunning StressState = iota
	StateStopping
	StateTerminated
)

// pacerInterval is the fixed dispatch cadence; the stress runner paces a
// flat interval rather than targeting a rate, so a plain ticker suffices
// in place of a token-bucket limiter.
const pacerInterval = config.DefaultPacerInterval

// StressRunner drives an unbounded request stream across NumRunners worker
// goroutines, each paced by a fixed ticker, until its context is cancelled.
// A second goroutine periodically computes cumulative windowed metrics
// over the experiment's measurements so far and enqueues them for
// persistence.
type StressRunner struct {
	cfg        Config
	numRunners int
	prompts    []string
	reportFreq time.Duration

	state atomic.Int32

	experimentStart time.Time
	storeReader     *store.Store
}

// NewStress constructs a StressRunner. storeReader is used by the window
// thread to read back persisted measurements; it may be nil if window
// reporting is not needed (the dispatch loop still runs).
func NewStress(cfg Config, numRunners int, prompts []string, reportFreq time.Duration, storeReader *store.Store) *StressRunner {
	if numRunners < 1 {
		numRunners = 1
	}
	if reportFreq <= 0 {
		reportFreq = config.DefaultReportFrequency
	}
	return &StressRunner{
		cfg:         cfg,
		numRunners:  numRunners,
		prompts:     prompts,
		reportFreq:  reportFreq,
		storeReader: storeReader,
	}
}

// State returns the runner's current lifecycle state.
func (s *StressRunner) State() StressState {
	return StressState(s.state.Load())
}

// Run drives the stress experiment until ctx is cancelled, then drains
// in-flight workers before returning. Run is synchronous; callers that
// want Ctrl-C-driven graceful shutdown should cancel ctx from a
// signal.Notify handler and let Run return on its own.
func (s *StressRunner) Run(ctx context.Context) {
	s.state.Store(int32(StateRunning))
	s.experimentStart = time.Now()

	var wg sync.WaitGroup

	windowCtx, stopWindow := context.WithCancel(ctx)
	defer stopWindow()
	if s.storeReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.windowThread(windowCtx)
		}()
	}

	for w := 0; w < s.numRunners; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(w)
	}

	<-ctx.Done()
	s.state.Store(int32(StateStopping))
	wg.Wait()
	s.state.Store(int32(StateTerminated))
}

func (s *StressRunner) worker(ctx context.Context, workerID int) {
	if len(s.prompts) == 0 {
		return
	}
	client := s.cfg.Pool.Get()
	inf := inference.New(client, s.cfg.ExperimentID, s.cfg.Log, s.cfg.Seed+int64(workerID))
	promptRng := rand.New(rand.NewSource(s.cfg.Seed + int64(workerID)))

	if s.cfg.Counters != nil {
		s.cfg.Counters.ActiveWorkers.Add(1)
		defer s.cfg.Counters.ActiveWorkers.Add(-1)
	}

	ticker := time.NewTicker(pacerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		prompt := s.prompts[promptRng.Intn(len(s.prompts))]

		req := inference.Request{
			Endpoint:  s.cfg.Endpoint,
			Model:     s.cfg.Model,
			Prompt:    prompt,
			MaxTokens: s.cfg.MaxTokens,
		}

		m, err := inf.Run(ctx, req, s.cfg.Signing)
		if err != nil {
			s.logger().Warn("stress worker: inference run failed to execute", zap.Error(err))
			continue
		}
		s.cfg.Writer.EnqueueMeasurement(m)
		if s.cfg.Counters != nil {
			if m.Status == data.StatusSuccess {
				s.cfg.Counters.RecordSuccess(m.NInput, m.NOutput)
			} else {
				s.cfg.Counters.RecordFailure()
			}
		}
	}
}

// windowThread periodically computes cumulative windowed metrics
// [experimentStart, experimentStart+k*reportFreq] and enqueues them as
// Metric rows suffixed "_window_<k>". A window with zero measurements is
// logged and skipped, not treated as an error.
func (s *StressRunner) windowThread(ctx context.Context) {
	ticker := time.NewTicker(s.reportFreq)
	defer ticker.Stop()

	k := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		k++
		s.computeWindow(ctx, k)
	}
}

func (s *StressRunner) computeWindow(ctx context.Context, k int) {
	if err := s.cfg.Writer.WaitForWrite(ctx, s.reportFreq); err != nil {
		s.logger().Warn("stress window: wait_for_write timed out before window compute", zap.Int("window", k))
	}

	measurements, err := s.storeReader.Measurements(ctx, s.cfg.ExperimentID)
	if err != nil {
		s.logger().Warn("stress window: read measurements failed", zap.Int("window", k), zap.Error(err))
		return
	}

	res, err := analysis.ComputeWindow(measurements, s.experimentStart, s.reportFreq.Seconds(), k)
	if err != nil {
		s.logger().Info("stress window: no measurements in window, skipping", zap.Int("window", k))
		return
	}

	now := time.Now().UTC()
	for name, value := range res.Metrics {
		s.cfg.Writer.EnqueueMetric(data.Metric{
			ExperimentID: s.cfg.ExperimentID,
			Name:         name.WindowSuffix(k),
			Value:        value,
			Timestamp:    now,
		})
	}
}

func (s *StressRunner) logger() *zap.Logger {
	if s.cfg.Log == nil {
		return zap.NewNop()
	}
	return s.cfg.Log
}
