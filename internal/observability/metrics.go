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
// - Latency: How long requests/note jobs take
// - Traffic: Request/submission throughput
// - Errors: Rate of failed jobs and stages
// - Saturation: Active jobs, open progress streams, runner queue depth
//
// All Record methods are safe on a nil *Metrics.
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Note job metrics (Latency, Traffic, Errors, Saturation)
	NotesSubmitted    metric.Int64Counter
	NoteJobDuration   metric.Float64Histogram
	NoteJobsActive    metric.Int64UpDownCounter
	NoteStageFailures metric.Int64Counter
	NoteWritesStale   metric.Int64Counter

	// Progress stream metrics (Saturation)
	WatchersActive metric.Int64UpDownCounter

	// Runner metrics (Saturation, Errors)
	RunnerQueueSize metric.Int64Gauge
	RunnerRejected  metric.Int64Counter
	RunnerPanics    metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("studynotes")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Note job metrics
	m.NotesSubmitted, err = meter.Int64Counter(
		"notes_submitted_total",
		metric.WithDescription("Total number of accepted note submissions"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NoteJobDuration, err = meter.Float64Histogram(
		"note_job_duration_seconds",
		metric.WithDescription("Note generation job duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NoteJobsActive, err = meter.Int64UpDownCounter(
		"note_jobs_active",
		metric.WithDescription("Number of note jobs currently executing (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NoteStageFailures, err = meter.Int64Counter(
		"note_stage_failures_total",
		metric.WithDescription("Total number of note jobs failed, by pipeline stage"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NoteWritesStale, err = meter.Int64Counter(
		"note_writes_stale_total",
		metric.WithDescription("Total number of job writes skipped because a newer submission replaced the record"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Progress stream metrics
	m.WatchersActive, err = meter.Int64UpDownCounter(
		"note_watchers_active",
		metric.WithDescription("Number of open progress streams (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Runner metrics
	m.RunnerQueueSize, err = meter.Int64Gauge(
		"runner_queue_size",
		metric.WithDescription("Current number of note jobs waiting for a worker (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunnerRejected, err = meter.Int64Counter(
		"runner_rejected_total",
		metric.WithDescription("Total number of note jobs rejected (queue full or closed)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunnerPanics, err = meter.Int64Counter(
		"runner_panics_total",
		metric.WithDescription("Total number of recovered panics in background tasks"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordNoteSubmitted records an accepted submission.
func (m *Metrics) RecordNoteSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.NotesSubmitted.Add(ctx, 1)
}

// RecordJobStarted records a note job beginning execution.
func (m *Metrics) RecordJobStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.NoteJobsActive.Add(ctx, 1)
}

// RecordJobFinished records a note job leaving execution with the given outcome.
func (m *Metrics) RecordJobFinished(ctx context.Context, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.NoteJobsActive.Add(ctx, -1)
	m.NoteJobDuration.Record(ctx, durationSeconds, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordStageFailure records a job failing in the named stage.
func (m *Metrics) RecordStageFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.NoteStageFailures.Add(ctx, 1, metric.WithAttributes(stageAttr(stage)))
}

// RecordStaleWrite records a job write skipped after resubmission.
func (m *Metrics) RecordStaleWrite(ctx context.Context) {
	if m == nil {
		return
	}
	m.NoteWritesStale.Add(ctx, 1)
}

// RecordWatchStarted records a progress stream opening.
func (m *Metrics) RecordWatchStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.WatchersActive.Add(ctx, 1)
}

// RecordWatchFinished records a progress stream closing.
func (m *Metrics) RecordWatchFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.WatchersActive.Add(ctx, -1)
}

// RecordRunnerQueueSize records the current runner queue depth.
func (m *Metrics) RecordRunnerQueueSize(ctx context.Context, size int64) {
	if m == nil {
		return
	}
	m.RunnerQueueSize.Record(ctx, size)
}

// RecordRunnerRejected records a task the runner refused.
func (m *Metrics) RecordRunnerRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunnerRejected.Add(ctx, 1)
}

// RecordRunnerPanic records a recovered task panic.
func (m *Metrics) RecordRunnerPanic(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunnerPanics.Add(ctx, 1)
}
