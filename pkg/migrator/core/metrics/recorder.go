// Package metrics defines the observability ports of the migrator: a MetricRecorder for counters
// and durations, and a Tracer for spans. Engines depend only on these interfaces.
package metrics

import (
	"context"
	"time"
)

// Record outcomes.
const (
	OutcomeWritten  = "written"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeMatched  = "matched"
	OutcomeMismatch = "mismatch"
	OutcomeNotFound = "not_found"
)

// MetricRecorder records the progress of migration and reconciliation jobs.
type MetricRecorder interface {
	// RecordJobStart records that a job of the given kind started.
	RecordJobStart(ctx context.Context, job, kind string)
	// RecordJobEnd records the final status and duration of a job.
	RecordJobEnd(ctx context.Context, job, kind, status string, duration time.Duration)
	// RecordRecord records one source record and what became of it.
	RecordRecord(ctx context.Context, job, outcome string)
	// RecordBatch records one executed write batch of size entries.
	RecordBatch(ctx context.Context, job string, size int)
	// RecordError records a classified error.
	RecordError(ctx context.Context, job, category string)
	// RecordTransactions records the transaction calls a migration issued on its destination.
	RecordTransactions(ctx context.Context, job string, commits, rollbacks, savepointReleases, savepointRollbacks int)
}
