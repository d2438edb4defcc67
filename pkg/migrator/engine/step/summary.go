// Package step holds the control skeleton shared by the migration and reconciliation engines:
// acquiring both connections, the pre-flight count, opening the source cursor, and releasing
// everything exactly once.
package step

import (
	"time"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/count"
)

// Status is the final state of one job run.
type Status string

const (
	// StatusCompleted means the cursor was exhausted.
	StatusCompleted Status = "COMPLETED"
	// StatusNothingToDo means the count query returned zero and no record was read.
	StatusNothingToDo Status = "NOTHING_TO_DO"
	// StatusAborted means a Fatal-Abort stopped the record loop.
	StatusAborted Status = "ABORTED"
	// StatusFailed means a job-level failure ended the run before or after the loop.
	StatusFailed Status = "FAILED"
)

// Summary reports what one job run did.
type Summary struct {
	Job         string
	Kind        string
	Status      Status
	Expectation count.Expectation
	// Processed is the number of records the cursor yielded.
	Processed int
	// Succeeded counts records that were written (migration) or matched (reconciliation).
	Succeeded int
	// Skipped counts records whose write or lookup a hook suppressed.
	Skipped int
	// Rejected counts records a hook refused, including reconciliation mismatches.
	Rejected int
	// Failed counts records that ended in a recoverable error.
	Failed int
	// NotFound counts reconciliation records without a destination row.
	NotFound int
	// Batches counts executed write batches.
	Batches   int
	Tx        tx.Stats
	StartTime time.Time
	EndTime   time.Time
	// Err is the job-level error that ended the run, if any.
	Err error
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Finish stamps the end of the run.
func (s *Summary) Finish(status Status, err error) {
	s.Status = status
	s.Err = err
	s.EndTime = time.Now()
}
