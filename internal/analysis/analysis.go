// Package analysis reduces a set of measurements to the fixed metric
// catalog described by the performance-measurement engine: TTFT/latency
// statistics, throughput, RPS, failure counts, and the side-output token
// statistics, either over an experiment's full measurement set or over a
// stress-mode time window.
package analysis

import (
	"time"

	"github.com/compressa-ai/compressa-perf/internal/data"
	"github.com/compressa-ai/compressa-perf/internal/errs"
)

// Result is one computed run of the metric catalog, ready to be persisted
// as a set of data.Metric rows (and, for the token statistics, data.Parameter
// rows).
type Result struct {
	Metrics map[data.MetricName]float64

	AvgNInput  float64
	StdNInput  float64
	AvgNOutput float64
	StdNOutput float64
}

// Compute reduces measurements to the full metric catalog. It returns
// errs.ErrEmptyAnalysis if measurements is empty, matching the source
// system's behavior of raising when asked to analyze zero measurements.
func Compute(measurements []data.Measurement) (Result, error) {
	if len(measurements) == 0 {
		return Result{}, errs.ErrEmptyAnalysis
	}

	var (
		successes []data.Measurement
		failed    int
	)
	for _, m := range measurements {
		if m.Status == data.StatusSuccess {
			successes = append(successes, m)
		} else {
			failed++
		}
	}

	res := Result{Metrics: make(map[data.MetricName]float64)}

	ttfts := make([]float64, len(successes))
	latencies := make([]float64, len(successes))
	nInputs := make([]float64, len(successes))
	nOutputs := make([]float64, len(successes))

	var (
		sumLatency float64
		sumNInput  float64
		sumNOutput float64
		minStart   float64
		maxEnd     float64
		haveBounds bool
	)

	for i, m := range successes {
		ttfts[i] = m.TTFT
		lat := m.EndTime - m.StartTime
		latencies[i] = lat
		nInputs[i] = float64(m.NInput)
		nOutputs[i] = float64(m.NOutput)

		sumLatency += lat
		sumNInput += float64(m.NInput)
		sumNOutput += float64(m.NOutput)

		if !haveBounds || m.StartTime < minStart {
			minStart = m.StartTime
		}
		if !haveBounds || m.EndTime > maxEnd {
			maxEnd = m.EndTime
		}
		haveBounds = true
	}

	duration := maxEnd - minStart

	// FAILED_REQUESTS_PER_HOUR spans the all-measurements set, not just
	// successes: an all-failed experiment still has a nonzero duration to
	// divide by.
	var (
		allMinStart   float64
		allMaxEnd     float64
		allHaveBounds bool
	)
	for _, m := range measurements {
		if !allHaveBounds || m.StartTime < allMinStart {
			allMinStart = m.StartTime
		}
		if !allHaveBounds || m.EndTime > allMaxEnd {
			allMaxEnd = m.EndTime
		}
		allHaveBounds = true
	}
	allDuration := allMaxEnd - allMinStart

	res.Metrics[data.MetricTTFT] = mean(ttfts)
	res.Metrics[data.MetricTTFT95] = percentile95(ttfts)
	res.Metrics[data.MetricTop5TTFT] = top5Mean(ttfts)

	res.Metrics[data.MetricLatency] = mean(latencies)
	res.Metrics[data.MetricLatency95] = percentile95(latencies)
	res.Metrics[data.MetricTop5Latency] = top5Mean(latencies)

	res.Metrics[data.MetricTPOT] = safeDiv(sumLatency, sumNOutput)

	res.Metrics[data.MetricThroughput] = safeDiv(sumNInput+sumNOutput, duration)
	res.Metrics[data.MetricThroughputInputTokens] = safeDiv(sumNInput, duration)
	res.Metrics[data.MetricThroughputOutputTokens] = safeDiv(sumNOutput, duration)

	res.Metrics[data.MetricRPS] = safeDiv(float64(len(successes)), duration)

	res.Metrics[data.MetricLongerThan60Latency] = countLongerThan(latencies, 60)
	res.Metrics[data.MetricLongerThan120Latency] = countLongerThan(latencies, 120)
	res.Metrics[data.MetricLongerThan180Latency] = countLongerThan(latencies, 180)

	res.Metrics[data.MetricFailedRequests] = float64(failed)
	res.Metrics[data.MetricFailedRequestsPerHour] = safeDiv(float64(failed), allDuration/3600.0)

	res.AvgNInput = mean(nInputs)
	res.StdNInput = stddev(nInputs)
	res.AvgNOutput = mean(nOutputs)
	res.StdNOutput = stddev(nOutputs)

	return res, nil
}

// ComputeWindow computes the catalog over the measurements that both start
// and end within [experimentStart, experimentStart+windowSeconds*k], the
// cumulative window used by the continuous stress runner. A measurement
// that started in-window but is still in flight past the cutoff is
// excluded — it belongs to a later window once it completes. It returns
// errs.ErrEmptyAnalysis (not a panic) when no measurements fall in range so
// the caller can log "no measurements in window k" and continue.
func ComputeWindow(all []data.Measurement, experimentStart time.Time, windowSeconds float64, k int) (Result, error) {
	cutoff := float64(experimentStart.Unix()) + windowSeconds*float64(k)
	startTS := float64(experimentStart.Unix())

	var windowed []data.Measurement
	for _, m := range all {
		if m.StartTime >= startTS && m.StartTime <= cutoff && m.EndTime <= cutoff {
			windowed = append(windowed, m)
		}
	}
	return Compute(windowed)
}

func safeDiv(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

func countLongerThan(latencies []float64, thresholdSeconds float64) float64 {
	var n float64
	for _, l := range latencies {
		if l > thresholdSeconds {
			n++
		}
	}
	return n
}
