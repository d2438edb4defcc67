package metrics

import (
	"context"
	"time"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(ctx context.Context, job, kind string) {}
func (r *NoOpMetricRecorder) RecordJobEnd(ctx context.Context, job, kind, status string, duration time.Duration) {
}
func (r *NoOpMetricRecorder) RecordRecord(ctx context.Context, job, outcome string) {}
func (r *NoOpMetricRecorder) RecordBatch(ctx context.Context, job string, size int) {}
func (r *NoOpMetricRecorder) RecordError(ctx context.Context, job, category string) {}
func (r *NoOpMetricRecorder) RecordTransactions(ctx context.Context, job string, commits, rollbacks, savepointReleases, savepointRollbacks int) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, job, kind string) (context.Context, func()) {
	return ctx, func() {}
}
func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
