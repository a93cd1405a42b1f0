// Package config holds the cross-package default constants for the load
// generator: write-queue batching, the pacing knobs the runner and harness
// packages fall back to when a RunConfig field is left at its zero value,
// and the file-descriptor headroom multiplier of the system-limits check.
package config

import "time"

const (
	// DefaultWriteBatchSize is the maximum number of items the write queue
	// commits in one transaction. Reaching it does not trigger a flush by
	// itself; flushes happen only on the DefaultWriteFlushInterval tick.
	DefaultWriteBatchSize = 2
	// DefaultWriteFlushInterval is the write queue's periodic flush: on each
	// tick the whole backlog is committed, DefaultWriteBatchSize items per
	// transaction.
	DefaultWriteFlushInterval = 100 * time.Millisecond
	// DefaultWaitForWriteTimeout bounds how long a caller waits for the
	// write queue to drain before giving up and logging a warning.
	DefaultWaitForWriteTimeout = 10 * time.Second

	// DefaultPacerInterval is the stress runner's fixed per-worker dispatch
	// cadence.
	DefaultPacerInterval = 10 * time.Millisecond
	// DefaultReportFrequency is the stress runner's windowed-metrics
	// reporting cadence when RunConfig.ReportFreq is unset.
	DefaultReportFrequency = 60 * time.Second

	// DefaultSeed is the prompt generator and per-worker RNG seed used when
	// RunConfig.Seed is unset.
	DefaultSeed = 42

	// MinFileDescriptorHeadroom is the multiplier applied to a run's expected
	// connection count (pooled clients times connections per client): the
	// system-limits check warns when the process's unused file descriptors
	// (soft limit minus open count) fall below that product.
	MinFileDescriptorHeadroom = 2
)
