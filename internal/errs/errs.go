// Package errs holds the sentinel errors used across the performance-
// measurement engine, matched with errors.Is at call sites rather than by
// comparing strings.
package errs

import "errors"

var (
	// ErrConfig marks a fatal configuration problem detected at startup
	// (missing endpoint, missing auth material when signing is enabled,
	// an invalid report mode). Never recorded as a measurement.
	ErrConfig = errors.New("configuration error")

	// ErrTransport marks a connection-level failure (reset, timeout, DNS).
	// Recorded as a failed Measurement; the experiment continues.
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks an HTTP or SSE-level failure: non-2xx status,
	// malformed event, missing usage on an otherwise complete stream, or a
	// stream with zero content chunks.
	ErrProtocol = errors.New("protocol error")

	// ErrStoreRead marks a read-path store failure that was not resolved by
	// the retry-on-busy helper.
	ErrStoreRead = errors.New("store read error")

	// ErrStoreWrite marks a write-path store failure. The writer logs and
	// continues; the item is not retried.
	ErrStoreWrite = errors.New("store write error")

	// ErrEmptyAnalysis is returned when the analyzer is asked to compute
	// metrics for an experiment with zero measurements.
	ErrEmptyAnalysis = errors.New("no measurements for experiment")
)
