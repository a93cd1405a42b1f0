package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/compressa-ai/compressa-perf/internal/data"
)

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestComputeEmptyReturnsErrEmptyAnalysis(t *testing.T) {
	_, err := Compute(nil)
	if err == nil {
		t.Fatalf("expected error for empty measurement set")
	}
}

// S1 — deterministic four-measurement analysis.
func TestComputeFourMeasurements(t *testing.T) {
	ms := []data.Measurement{
		data.Succeeded(1, 0, 1.0, 10, 20, 0.1),
		data.Succeeded(1, 0, 2.0, 10, 30, 0.2),
		data.Succeeded(1, 0, 3.0, 10, 40, 0.3),
		data.Succeeded(1, 0, 4.0, 10, 50, 0.4),
	}

	res, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !closeEnough(res.Metrics[data.MetricTTFT], 0.25) {
		t.Errorf("TTFT = %v, want 0.25", res.Metrics[data.MetricTTFT])
	}
	if !closeEnough(res.Metrics[data.MetricLatency], 2.5) {
		t.Errorf("LATENCY = %v, want 2.5", res.Metrics[data.MetricLatency])
	}
	if !closeEnough(res.Metrics[data.MetricThroughput], 45.0) {
		t.Errorf("THROUGHPUT = %v, want 45.0", res.Metrics[data.MetricThroughput])
	}
	if !closeEnough(res.Metrics[data.MetricRPS], 1.0) {
		t.Errorf("RPS = %v, want 1.0", res.Metrics[data.MetricRPS])
	}
	if !closeEnough(res.Metrics[data.MetricTPOT], 10.0/140.0) {
		t.Errorf("TPOT = %v, want %v", res.Metrics[data.MetricTPOT], 10.0/140.0)
	}
}

// S5 — percentile at boundaries.
func TestLatencyPercentileBoundaries(t *testing.T) {
	ms := []data.Measurement{
		data.Succeeded(1, 0, 1.0, 1, 1, 0),
		data.Succeeded(1, 0, 1.0, 1, 1, 0),
		data.Succeeded(1, 0, 1.0, 1, 1, 0),
		data.Succeeded(1, 0, 1.0, 1, 1, 0),
		data.Succeeded(1, 0, 10.0, 1, 1, 0),
	}

	res, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !closeEnough(res.Metrics[data.MetricLatency95], 8.2) {
		t.Errorf("LATENCY_95 = %v, want 8.2", res.Metrics[data.MetricLatency95])
	}
	if !closeEnough(res.Metrics[data.MetricTop5Latency], 10.0) {
		t.Errorf("TOP_5_LATENCY = %v, want 10.0", res.Metrics[data.MetricTop5Latency])
	}
}

// Invariant 10 — the canonical percentile fixture.
func TestPercentile95Fixture(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := percentile95(values)
	if !closeEnough(got, 9.55) {
		t.Errorf("percentile95 = %v, want 9.55", got)
	}
}

// Invariant 3 — FAILED_REQUESTS equals the count of failed measurements.
func TestFailedRequestsCount(t *testing.T) {
	ms := []data.Measurement{
		data.Succeeded(1, 0, 1.0, 1, 1, 0.1),
		data.Failed(1, 0, 1.0, 0, 0, 0),
		data.Failed(1, 0, 1.0, 0, 0, 0),
	}
	res, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Metrics[data.MetricFailedRequests] != 2 {
		t.Errorf("FAILED_REQUESTS = %v, want 2", res.Metrics[data.MetricFailedRequests])
	}
}

// Invariant 5 — the LONGER_THAN_* counts are monotonically non-increasing.
func TestLongerThanMonotonic(t *testing.T) {
	ms := []data.Measurement{
		data.Succeeded(1, 0, 50, 1, 1, 0),
		data.Succeeded(1, 0, 90, 1, 1, 0),
		data.Succeeded(1, 0, 150, 1, 1, 0),
		data.Succeeded(1, 0, 200, 1, 1, 0),
	}
	res, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	g60 := res.Metrics[data.MetricLongerThan60Latency]
	g120 := res.Metrics[data.MetricLongerThan120Latency]
	g180 := res.Metrics[data.MetricLongerThan180Latency]
	if !(g60 >= g120 && g120 >= g180) {
		t.Errorf("expected g60 >= g120 >= g180, got %v >= %v >= %v", g60, g120, g180)
	}
}

// Invariant 7 — THROUGHPUT = THROUGHPUT_INPUT_TOKENS + THROUGHPUT_OUTPUT_TOKENS.
func TestThroughputDecomposition(t *testing.T) {
	ms := []data.Measurement{
		data.Succeeded(1, 0, 1.0, 10, 20, 0.1),
		data.Succeeded(1, 0, 2.0, 15, 25, 0.1),
	}
	res, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	sum := res.Metrics[data.MetricThroughputInputTokens] + res.Metrics[data.MetricThroughputOutputTokens]
	if !closeEnough(sum, res.Metrics[data.MetricThroughput]) {
		t.Errorf("THROUGHPUT_INPUT+OUTPUT = %v, want %v", sum, res.Metrics[data.MetricThroughput])
	}
}

// Invariant 8 — recompute is idempotent given the same input set.
func TestComputeIdempotent(t *testing.T) {
	ms := []data.Measurement{
		data.Succeeded(1, 0, 1.0, 10, 20, 0.1),
		data.Succeeded(1, 0, 2.0, 10, 30, 0.2),
	}
	r1, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	r2, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for name, v1 := range r1.Metrics {
		if !closeEnough(v1, r2.Metrics[name]) {
			t.Errorf("metric %s not idempotent: %v vs %v", name, v1, r2.Metrics[name])
		}
	}
}

func TestAllFailedYieldsZeroLatencyMetrics(t *testing.T) {
	ms := []data.Measurement{
		data.Failed(1, 0, 1.0, 0, 0, 0),
		data.Failed(1, 0, 2.0, 0, 0, 0),
	}
	res, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Metrics[data.MetricLatency] != 0 {
		t.Errorf("expected 0 latency with no successes, got %v", res.Metrics[data.MetricLatency])
	}
	if res.Metrics[data.MetricFailedRequests] != 2 {
		t.Errorf("expected 2 failed requests, got %v", res.Metrics[data.MetricFailedRequests])
	}
}

// FAILED_REQUESTS_PER_HOUR must span the all-measurements set, not just
// successes — an all-failed experiment still has a nonzero duration.
func TestFailedRequestsPerHourUsesAllMeasurementsDuration(t *testing.T) {
	ms := []data.Measurement{
		data.Failed(1, 0, 1.0, 0, 0, 0),
		data.Failed(1, 0, 2.0, 0, 0, 0),
	}
	res, err := Compute(ms)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// duration = 2.0 - 0 = 2.0s; 2 failed / (2.0/3600) = 3600.
	if !closeEnough(res.Metrics[data.MetricFailedRequestsPerHour], 3600.0) {
		t.Errorf("FAILED_REQUESTS_PER_HOUR = %v, want 3600.0", res.Metrics[data.MetricFailedRequestsPerHour])
	}
}

func TestComputeWindowExcludesMeasurementsStartingBeforeWindow(t *testing.T) {
	experimentStart := time.Unix(1000, 0)
	windowSeconds := 60.0
	k := 1 // cutoff = 1060

	ms := []data.Measurement{
		data.Failed(1, 900, 950, 0, 0, 0),   // starts before the window
		data.Failed(1, 1010, 1020, 0, 0, 0), // fully inside the window
	}

	res, err := ComputeWindow(ms, experimentStart, windowSeconds, k)
	if err != nil {
		t.Fatalf("ComputeWindow: %v", err)
	}
	if res.Metrics[data.MetricFailedRequests] != 1 {
		t.Errorf("FAILED_REQUESTS = %v, want 1 (only the in-window measurement)", res.Metrics[data.MetricFailedRequests])
	}
}

func TestComputeWindowExcludesMeasurementsStillInFlightPastCutoff(t *testing.T) {
	experimentStart := time.Unix(1000, 0)
	windowSeconds := 60.0
	k := 1 // cutoff = 1060

	ms := []data.Measurement{
		data.Failed(1, 1010, 1020, 0, 0, 0), // ends before cutoff
		data.Failed(1, 1050, 1070, 0, 0, 0), // starts before cutoff but ends after it
	}

	res, err := ComputeWindow(ms, experimentStart, windowSeconds, k)
	if err != nil {
		t.Fatalf("ComputeWindow: %v", err)
	}
	if res.Metrics[data.MetricFailedRequests] != 1 {
		t.Errorf("FAILED_REQUESTS = %v, want 1 (in-flight measurement must not count yet)", res.Metrics[data.MetricFailedRequests])
	}
}

func TestComputeWindowEmptyReturnsError(t *testing.T) {
	experimentStart := time.Unix(1000, 0)
	ms := []data.Measurement{
		data.Failed(1, 900, 950, 0, 0, 0),
	}
	if _, err := ComputeWindow(ms, experimentStart, 60.0, 1); err == nil {
		t.Fatalf("expected error when no measurements fall in window")
	}
}
