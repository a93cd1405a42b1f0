// Package harness wires the store, write queue, client pool, signer, and
// runner together from a RunConfig. It is the in-process equivalent of the
// out-of-scope CLI/YAML collaborator: cmd/perfcore constructs a RunConfig
// from flags and hands it to a Harness to execute one experiment.
package harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/compressa-ai/compressa-perf/internal/analysis"
	"github.com/compressa-ai/compressa-perf/internal/clientpool"
	"github.com/compressa-ai/compressa-perf/internal/config"
	"github.com/compressa-ai/compressa-perf/internal/data"
	"github.com/compressa-ai/compressa-perf/internal/errs"
	"github.com/compressa-ai/compressa-perf/internal/metrics"
	"github.com/compressa-ai/compressa-perf/internal/runner"
	"github.com/compressa-ai/compressa-perf/internal/signing"
	"github.com/compressa-ai/compressa-perf/internal/store"
	"github.com/compressa-ai/compressa-perf/internal/store/writequeue"
)

// openWriteConnection opens a second *sql.DB against the same database
// file, dedicated to the writequeue.Writer. The sqlite3 driver is already
// registered via internal/store's blank import.
func openWriteConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SigningConfig controls request signing.
type SigningConfig struct {
	Enabled          bool
	OldSign          bool
	PrivateKeyHex    string
	RequesterAddress string
}

// RunConfig is the full set of parameters needed to execute one experiment.
// NumTasks == 0 selects continuous stress mode; any positive value selects
// the bounded runner.
type RunConfig struct {
	ExperimentName string
	Description    string

	Endpoint   string
	ModelName  string
	NumRunners int
	NumTasks   int
	Prompts    []string
	MaxTokens  int
	ReportFreq time.Duration
	Signing    SigningConfig
	Seed       int64

	DBPath string
}

// Harness owns the store and write queue for the lifetime of one
// experiment and drives either BoundedRunner or StressRunner depending on
// RunConfig.NumTasks.
type Harness struct {
	log      *zap.Logger
	store    *store.Store
	write    *writequeue.Writer
	pool     *clientpool.Pool
	counters *metrics.Counters
}

// Collector exposes the harness's live request counters as a
// prometheus.Collector, for callers that want to register it against a
// scrape endpoint alongside the final per-experiment analysis.
func (h *Harness) Collector() *metrics.Collector {
	return metrics.NewCollector(h.counters)
}

// New opens the store (creating the schema if absent), a dedicated write
// connection for the writequeue, and an HTTP client pool sized from
// cfg.NumRunners. The caller must call Close when done.
func New(cfg RunConfig, log *zap.Logger) (*Harness, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", errs.ErrConfig)
	}
	if cfg.Signing.Enabled && cfg.Signing.PrivateKeyHex == "" {
		return nil, fmt.Errorf("%w: signing enabled but no private key configured", errs.ErrConfig)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("harness: open store: %w", err)
	}

	writeDB, err := openWriteConnection(cfg.DBPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("harness: open write connection: %w", err)
	}

	writer := writequeue.New(writeDB, log, writequeue.Config{})
	pool := clientpool.New(clientpool.Config{NumRunners: cfg.NumRunners})

	return &Harness{log: log, store: s, write: writer, pool: pool, counters: &metrics.Counters{}}, nil
}

// Close drains the write queue and releases the store connections.
func (h *Harness) Close() error {
	if err := h.write.Close(); err != nil {
		return err
	}
	return h.store.Close()
}

// Run executes one experiment end to end: creates the Experiment row,
// persists the configuration as Parameters, runs the configured runner,
// waits for the write queue to drain, and computes final metrics (bounded
// mode only — stress mode reports cumulative windows as it runs and has
// no single final computation).
func (h *Harness) Run(ctx context.Context, cfg RunConfig) (int64, error) {
	runID := uuid.NewString()
	h.log.Info("harness: starting experiment", zap.String("run_id", runID), zap.String("name", cfg.ExperimentName))

	expID, err := h.store.InsertExperiment(ctx, cfg.ExperimentName, cfg.Description)
	if err != nil {
		return 0, fmt.Errorf("harness: create experiment: %w", err)
	}

	h.write.EnqueueParameter(data.Parameter{ExperimentID: expID, Key: "run_id", Value: runID})
	h.recordParameters(expID, cfg)

	mode, err := signingMode(cfg.Signing)
	if err != nil {
		return expID, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}

	runnerCfg := runner.Config{
		Endpoint:     cfg.Endpoint,
		Model:        cfg.ModelName,
		MaxTokens:    cfg.MaxTokens,
		ExperimentID: expID,
		Seed:         seedOrDefault(cfg.Seed),
		Pool:         h.pool,
		Writer:       h.write,
		Log:          h.log,
		Signing:      mode,
		Counters:     h.counters,
	}

	if cfg.NumTasks > 0 {
		b := runner.NewBounded(runnerCfg, cfg.NumRunners, cfg.NumTasks, cfg.Prompts)
		b.Run(ctx)
	} else {
		sr := runner.NewStress(runnerCfg, cfg.NumRunners, cfg.Prompts, cfg.ReportFreq, h.store)
		sr.Run(ctx)
	}

	if err := h.write.WaitForWrite(context.Background(), config.DefaultWaitForWriteTimeout); err != nil {
		h.log.Warn("harness: write queue did not drain before final analysis", zap.Error(err))
	}

	if cfg.NumTasks > 0 {
		if err := h.computeFinalMetrics(context.Background(), expID); err != nil {
			h.log.Warn("harness: final metrics computation failed", zap.Error(err))
		}
	}

	h.log.Info("harness: experiment complete", zap.String("run_id", runID), zap.Int64("experiment_id", expID))
	return expID, nil
}

func (h *Harness) recordParameters(expID int64, cfg RunConfig) {
	params := map[string]string{
		"endpoint":    cfg.Endpoint,
		"model":       cfg.ModelName,
		"num_runners": fmt.Sprintf("%d", cfg.NumRunners),
		"num_tasks":   fmt.Sprintf("%d", cfg.NumTasks),
		"max_tokens":  fmt.Sprintf("%d", cfg.MaxTokens),
		"seed":        fmt.Sprintf("%d", seedOrDefault(cfg.Seed)),
	}
	for k, v := range params {
		h.write.EnqueueParameter(data.Parameter{ExperimentID: expID, Key: k, Value: v})
	}
}

func (h *Harness) computeFinalMetrics(ctx context.Context, expID int64) error {
	measurements, err := h.store.Measurements(ctx, expID)
	if err != nil {
		return err
	}

	res, err := analysis.Compute(measurements)
	if err != nil {
		return err
	}

	if err := h.store.ClearMetricsByExperiment(ctx, expID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for name, value := range res.Metrics {
		h.write.EnqueueMetric(data.Metric{ExperimentID: expID, Name: string(name), Value: value, Timestamp: now})
	}
	h.write.EnqueueParameter(data.Parameter{ExperimentID: expID, Key: "avg_n_input", Value: fmt.Sprintf("%f", res.AvgNInput)})
	h.write.EnqueueParameter(data.Parameter{ExperimentID: expID, Key: "std_n_input", Value: fmt.Sprintf("%f", res.StdNInput)})
	h.write.EnqueueParameter(data.Parameter{ExperimentID: expID, Key: "avg_n_output", Value: fmt.Sprintf("%f", res.AvgNOutput)})
	h.write.EnqueueParameter(data.Parameter{ExperimentID: expID, Key: "std_n_output", Value: fmt.Sprintf("%f", res.StdNOutput)})

	return h.write.WaitForWrite(ctx, config.DefaultWaitForWriteTimeout)
}

func signingMode(cfg SigningConfig) (runner.SigningMode, error) {
	if !cfg.Enabled {
		return runner.SigningMode{}, nil
	}
	signer, err := signing.NewSigner(cfg.PrivateKeyHex, cfg.RequesterAddress)
	if err != nil {
		return runner.SigningMode{}, err
	}
	return runner.SigningMode{Signer: signer, OldSign: cfg.OldSign}, nil
}

func seedOrDefault(seed int64) int64 {
	if seed == 0 {
		return config.DefaultSeed
	}
	return seed
}
