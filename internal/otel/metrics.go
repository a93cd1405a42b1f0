// Package otel provides OpenTelemetry metrics integration for the load
// generator.
package otel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "compressa-perf",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics functionality with load-generator
// instruments: TTFT, per-request latency, throughput, and failure counts.
type Metrics struct {
	config              *MetricsConfig
	meterProvider       *sdkmetric.MeterProvider
	meter               metric.Meter
	shutdown            func(context.Context) error
	mu                  sync.RWMutex
	currentActiveWorker atomic.Int64
	activeCallback      metric.Int64ObservableGauge
	activeCallbackReg   metric.Registration

	// Metric instruments
	ttftHistogram    metric.Float64Histogram
	latencyHistogram metric.Float64Histogram
	requestCounter   metric.Int64Counter
	failureCounter   metric.Int64Counter
	tokenCounter     metric.Int64Counter
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		// Use no-op meter when disabled
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	// Create exporter based on type
	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	// Create resource with service information
	res, err := m.createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	// Create meter provider
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	// Register metric instruments
	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// createResource creates the OpenTelemetry resource with service information.
func (m *Metrics) createResource(cfg *MetricsConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	// Add custom attributes
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	// Time-to-first-token histogram (in seconds)
	m.ttftHistogram, err = m.meter.Float64Histogram(
		"perfcore.request.ttft",
		metric.WithDescription("Time to first streamed token per request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ttft histogram: %w", err)
	}

	// End-to-end latency histogram (in seconds)
	m.latencyHistogram, err = m.meter.Float64Histogram(
		"perfcore.request.latency",
		metric.WithDescription("End-to-end latency per request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create latency histogram: %w", err)
	}

	// Request counter with status attribute
	m.requestCounter, err = m.meter.Int64Counter(
		"perfcore.requests",
		metric.WithDescription("Count of completed requests by status"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request counter: %w", err)
	}

	// Failure counter with category attribute
	m.failureCounter, err = m.meter.Int64Counter(
		"perfcore.failures",
		metric.WithDescription("Count of failed requests by error category"),
	)
	if err != nil {
		return fmt.Errorf("failed to create failure counter: %w", err)
	}

	// Token counter with direction attribute (input/output)
	m.tokenCounter, err = m.meter.Int64Counter(
		"perfcore.tokens",
		metric.WithDescription("Count of tokens processed by direction"),
	)
	if err != nil {
		return fmt.Errorf("failed to create token counter: %w", err)
	}

	// Active worker observable gauge
	m.activeCallback, err = m.meter.Int64ObservableGauge(
		"perfcore.workers.active",
		metric.WithDescription("Current number of dispatching worker goroutines"),
	)
	if err != nil {
		return fmt.Errorf("failed to create active worker gauge: %w", err)
	}

	// Register callback for active worker gauge
	m.activeCallbackReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.activeCallback, m.currentActiveWorker.Load())
			return nil
		},
		m.activeCallback,
	)
	if err != nil {
		return fmt.Errorf("failed to register active worker gauge callback: %w", err)
	}

	return nil
}

// RecordRequest records the TTFT, end-to-end latency, and token counts of
// one completed request.
func (m *Metrics) RecordRequest(ctx context.Context, success bool, ttftSeconds, latencySeconds float64, nInput, nOutput int) {
	status := "failed"
	if success {
		status = "success"
	}

	if m.requestCounter != nil {
		m.requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	if !success {
		return
	}

	if m.ttftHistogram != nil {
		m.ttftHistogram.Record(ctx, ttftSeconds)
	}
	if m.latencyHistogram != nil {
		m.latencyHistogram.Record(ctx, latencySeconds)
	}
	if m.tokenCounter != nil {
		m.tokenCounter.Add(ctx, int64(nInput), metric.WithAttributes(attribute.String("direction", "input")))
		m.tokenCounter.Add(ctx, int64(nOutput), metric.WithAttributes(attribute.String("direction", "output")))
	}
}

// RecordFailure increments the failure counter with the given category
// (e.g. "transport", "protocol").
func (m *Metrics) RecordFailure(ctx context.Context, category string) {
	if m.failureCounter == nil {
		return
	}

	m.failureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

// SetActiveWorkers sets the current worker count for the observable gauge.
// This is thread-safe and will be read by the gauge callback.
func (m *Metrics) SetActiveWorkers(n int) {
	m.currentActiveWorker.Store(int64(n))
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Unregister callback if registered
	if m.activeCallbackReg != nil {
		if err := m.activeCallbackReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister active worker callback: %w", err)
		}
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m

	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}

// GetGlobalMetrics returns the global metrics instance.
// Returns a no-op metrics instance if none has been set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()

	if globalMetrics == nil {
		// Return a no-op metrics instance
		cfg := DefaultMetricsConfig()
		m := &Metrics{
			config:        cfg,
			meterProvider: sdkmetric.NewMeterProvider(),
			shutdown:      func(context.Context) error { return nil },
		}
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		return m
	}

	return globalMetrics
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	cfg := DefaultMetricsConfig()
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}
