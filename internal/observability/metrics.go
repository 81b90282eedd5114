package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long API calls and whole exports take
// - Traffic: Export and poll throughput
// - Errors: Rate of failed API calls and exports
// - Saturation: Exports currently in flight
type Metrics struct {
	meter metric.Meter

	// Reporting API call metrics (Latency, Traffic, Errors)
	APIRequestDuration metric.Float64Histogram
	APIRequestsTotal   metric.Int64Counter
	APIErrorsTotal     metric.Int64Counter

	// Export lifecycle metrics (Latency, Traffic, Errors, Saturation)
	ExportDuration    metric.Float64Histogram
	ExportsTotal      metric.Int64Counter
	ExportErrorsTotal metric.Int64Counter
	ExportsActive     metric.Int64UpDownCounter
	AttemptsTotal     metric.Int64Counter
	PollsTotal        metric.Int64Counter

	// Batch run metrics
	BatchExported metric.Int64Counter
	BatchFailed   metric.Int64Counter
	BatchSkipped  metric.Int64Counter

	// Notification metrics
	NotifyDuration  metric.Float64Histogram
	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("reportexporter")
	m := &Metrics{meter: meter}

	// Reporting API call metrics
	m.APIRequestDuration, err = meter.Float64Histogram(
		"api_request_duration_seconds",
		metric.WithDescription("Reporting API request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.APIRequestsTotal, err = meter.Int64Counter(
		"api_requests_total",
		metric.WithDescription("Total number of reporting API requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.APIErrorsTotal, err = meter.Int64Counter(
		"api_errors_total",
		metric.WithDescription("Total number of failed reporting API requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Export lifecycle metrics
	m.ExportDuration, err = meter.Float64Histogram(
		"export_duration_seconds",
		metric.WithDescription("End-to-end export duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ExportsTotal, err = meter.Int64Counter(
		"exports_total",
		metric.WithDescription("Total number of exports started"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ExportErrorsTotal, err = meter.Int64Counter(
		"export_errors_total",
		metric.WithDescription("Total number of exports that ended in failure"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ExportsActive, err = meter.Int64UpDownCounter(
		"exports_active",
		metric.WithDescription("Number of exports currently in flight (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.AttemptsTotal, err = meter.Int64Counter(
		"export_attempts_total",
		metric.WithDescription("Total number of export submissions, including retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"export_polls_total",
		metric.WithDescription("Total number of export status polls"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Batch run metrics
	m.BatchExported, err = meter.Int64Counter(
		"batch_reports_exported_total",
		metric.WithDescription("Reports exported and saved during batch runs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.BatchFailed, err = meter.Int64Counter(
		"batch_reports_failed_total",
		metric.WithDescription("Reports that failed during batch runs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.BatchSkipped, err = meter.Int64Counter(
		"batch_reports_skipped_total",
		metric.WithDescription("Reports skipped because the circuit to the service was open"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Notification metrics
	m.NotifyDuration, err = meter.Float64Histogram(
		"notify_duration_seconds",
		metric.WithDescription("Completion webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDelivered, err = meter.Int64Counter(
		"notify_delivered_total",
		metric.WithDescription("Completion notifications successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyFailed, err = meter.Int64Counter(
		"notify_failed_total",
		metric.WithDescription("Completion notifications failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordAPIRequest records a reporting API call.
func (m *Metrics) RecordAPIRequest(ctx context.Context, op string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		opAttr(op),
		statusAttr(statusCode),
	)

	m.APIRequestDuration.Record(ctx, durationSeconds, attrs)
	m.APIRequestsTotal.Add(ctx, 1, attrs)

	if statusCode == 0 || statusCode >= 400 {
		m.APIErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordExportStarted records a new export invocation.
func (m *Metrics) RecordExportStarted(ctx context.Context, format string) {
	attrs := metric.WithAttributes(formatAttr(format))
	m.ExportsTotal.Add(ctx, 1, attrs)
	m.ExportsActive.Add(ctx, 1, attrs)
}

// RecordExportCompleted records an export resolving (artifact or failure).
func (m *Metrics) RecordExportCompleted(ctx context.Context, format string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(formatAttr(format), successAttr(success))
	m.ExportDuration.Record(ctx, durationSeconds, attrs)
	m.ExportsActive.Add(ctx, -1, metric.WithAttributes(formatAttr(format)))

	if !success {
		m.ExportErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordAttempt records one export submission.
func (m *Metrics) RecordAttempt(ctx context.Context, format string) {
	m.AttemptsTotal.Add(ctx, 1, metric.WithAttributes(formatAttr(format)))
}

// RecordPoll records one status poll.
func (m *Metrics) RecordPoll(ctx context.Context) {
	m.PollsTotal.Add(ctx, 1)
}

// RecordBatchExported records a report exported and saved during a batch run.
func (m *Metrics) RecordBatchExported(ctx context.Context) {
	m.BatchExported.Add(ctx, 1)
}

// RecordBatchFailed records a report that failed during a batch run.
func (m *Metrics) RecordBatchFailed(ctx context.Context) {
	m.BatchFailed.Add(ctx, 1)
}

// RecordBatchSkipped records a report skipped due to an open circuit.
func (m *Metrics) RecordBatchSkipped(ctx context.Context) {
	m.BatchSkipped.Add(ctx, 1)
}

// RecordNotifyDelivered records a successful webhook delivery with its duration.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifyDelivered.Add(ctx, 1)
	m.NotifyDuration.Record(ctx, durationSeconds)
}

// RecordNotifyFailed records a webhook delivery that failed after retries.
func (m *Metrics) RecordNotifyFailed(ctx context.Context) {
	m.NotifyFailed.Add(ctx, 1)
}
