// Package data defines the core entities persisted by the store: experiments,
// run parameters, raw measurements, and computed metrics.
package data

import (
	"strconv"
	"time"
)

// Status is the terminal outcome of one inference request.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// MetricName identifies a row in the metric catalog. It is a closed set of
// well-known values, but the zero-value contract tolerates arbitrary strings
// so that stress-mode window suffixes (`_window_<k>`) and any metric name a
// future analyzer version introduces round-trip through storage unchanged.
type MetricName string

const (
	MetricTTFT                   MetricName = "TTFT"
	MetricTTFT95                 MetricName = "TTFT_95"
	MetricTop5TTFT               MetricName = "TOP_5_TTFT"
	MetricLatency                MetricName = "LATENCY"
	MetricLatency95              MetricName = "LATENCY_95"
	MetricTop5Latency            MetricName = "TOP_5_LATENCY"
	MetricTPOT                   MetricName = "TPOT"
	MetricThroughput             MetricName = "THROUGHPUT"
	MetricThroughputInputTokens  MetricName = "THROUGHPUT_INPUT_TOKENS"
	MetricThroughputOutputTokens MetricName = "THROUGHPUT_OUTPUT_TOKENS"
	MetricRPS                    MetricName = "RPS"
	MetricLongerThan60Latency    MetricName = "LONGER_THAN_60_LATENCY"
	MetricLongerThan120Latency   MetricName = "LONGER_THAN_120_LATENCY"
	MetricLongerThan180Latency   MetricName = "LONGER_THAN_180_LATENCY"
	MetricFailedRequests         MetricName = "FAILED_REQUESTS"
	MetricFailedRequestsPerHour  MetricName = "FAILED_REQUESTS_PER_HOUR"
)

// WindowSuffix returns the metric name suffixed for stress-mode window k.
func (m MetricName) WindowSuffix(k int) string {
	return string(m) + "_window_" + strconv.Itoa(k)
}

// Experiment is a single run's identity. Created once at run start and
// never mutated; every other entity references it by ExperimentID.
type Experiment struct {
	ID          int64
	Name        string
	CreatedAt   time.Time
	Description string
}

// Parameter is a key/value configuration or derived-statistic row scoped to
// one experiment. Written during setup and again during analysis.
type Parameter struct {
	ID           int64
	ExperimentID int64
	Key          string
	Value        string
}

// Measurement is the outcome of exactly one inference request.
type Measurement struct {
	ID           int64
	ExperimentID int64
	NInput       int
	NOutput      int
	TTFT         float64
	StartTime    float64 // seconds since epoch
	EndTime      float64 // seconds since epoch
	Status       Status
}

// Failed constructs a Measurement with status=failed, preserving whatever
// token counts and TTFT had already been captured before the failure.
func Failed(experimentID int64, start, end float64, nInput, nOutput int, ttft float64) Measurement {
	return Measurement{
		ExperimentID: experimentID,
		NInput:       nInput,
		NOutput:      nOutput,
		TTFT:         ttft,
		StartTime:    start,
		EndTime:      end,
		Status:       StatusFailed,
	}
}

// Succeeded constructs a Measurement with status=success.
func Succeeded(experimentID int64, start, end float64, nInput, nOutput int, ttft float64) Measurement {
	return Measurement{
		ExperimentID: experimentID,
		NInput:       nInput,
		NOutput:      nOutput,
		TTFT:         ttft,
		StartTime:    start,
		EndTime:      end,
		Status:       StatusSuccess,
	}
}

// Metric is one computed value from the analyzer's catalog.
type Metric struct {
	ID           int64
	ExperimentID int64
	Name         string
	Value        float64
	Timestamp    time.Time
}
