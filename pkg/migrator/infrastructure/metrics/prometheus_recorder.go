package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	metrics "github.com/tigerroll/dbmigrator/pkg/migrator/core/metrics"
	logger "github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobRuns            *prometheus.CounterVec
	jobDurationSeconds *prometheus.HistogramVec
	records            *prometheus.CounterVec
	batches            *prometheus.CounterVec
	batchSize          *prometheus.HistogramVec
	errors             *prometheus.CounterVec
	transactions       *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrator_job_runs_total",
			Help: "Total number of job runs by final status.",
		}, []string{"job_name", "kind", "status"}),
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "migrator_job_duration_seconds",
			Help:    "Duration of job runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "kind", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrator_records_total",
			Help: "Total source records by outcome.",
		}, []string{"job_name", "outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrator_batches_total",
			Help: "Total executed write batches.",
		}, []string{"job_name"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "migrator_batch_entries",
			Help:    "Entries per executed write batch.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"job_name"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrator_errors_total",
			Help: "Total classified errors by category.",
		}, []string{"job_name", "category"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migrator_transaction_calls_total",
			Help: "Total commits, rollbacks and savepoint calls on destination connections.",
		}, []string{"job_name", "operation"}),
	}

	registry.MustRegister(r.jobRuns, r.jobDurationSeconds, r.records, r.batches, r.batchSize, r.errors, r.transactions)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler returns the HTTP handler exposing the registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordJobStart logs the start; runs are counted when they end.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, job, kind string) {
	logger.Debugf("Metrics: %s job '%s' started.", kind, job)
}

// RecordJobEnd records the final status and duration of a job.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, job, kind, status string, duration time.Duration) {
	r.jobRuns.WithLabelValues(job, kind, status).Inc()
	r.jobDurationSeconds.WithLabelValues(job, kind, status).Observe(duration.Seconds())
	logger.Debugf("Metrics: %s job '%s' ended with %s. Duration: %.3fs", kind, job, status, duration.Seconds())
}

// RecordRecord counts one record by outcome.
func (r *PrometheusRecorder) RecordRecord(ctx context.Context, job, outcome string) {
	r.records.WithLabelValues(job, outcome).Inc()
}

// RecordBatch counts one executed batch.
func (r *PrometheusRecorder) RecordBatch(ctx context.Context, job string, size int) {
	r.batches.WithLabelValues(job).Inc()
	r.batchSize.WithLabelValues(job).Observe(float64(size))
}

// RecordError counts one classified error.
func (r *PrometheusRecorder) RecordError(ctx context.Context, job, category string) {
	r.errors.WithLabelValues(job, category).Inc()
}

// RecordTransactions adds the transaction calls of one migration run.
func (r *PrometheusRecorder) RecordTransactions(ctx context.Context, job string, commits, rollbacks, savepointReleases, savepointRollbacks int) {
	r.transactions.WithLabelValues(job, "commit").Add(float64(commits))
	r.transactions.WithLabelValues(job, "rollback").Add(float64(rollbacks))
	r.transactions.WithLabelValues(job, "savepoint_release").Add(float64(savepointReleases))
	r.transactions.WithLabelValues(job, "savepoint_rollback").Add(float64(savepointRollbacks))
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
