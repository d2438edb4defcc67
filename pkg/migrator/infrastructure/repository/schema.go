package repository

import (
	"time"

	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step"
)

// JobRunEntity is one row of the run history.
type JobRunEntity struct {
	ID                     string     `gorm:"column:id;primaryKey"`
	JobName                string     `gorm:"column:job_name"`
	Kind                   string     `gorm:"column:kind"`
	Status                 string     `gorm:"column:status"`
	TransactionMode        string     `gorm:"column:transaction_mode"`
	ExpectedCount          *int64     `gorm:"column:expected_count"`
	ProcessedCount         int64      `gorm:"column:processed_count"`
	SucceededCount         int64      `gorm:"column:succeeded_count"`
	SkippedCount           int64      `gorm:"column:skipped_count"`
	RejectedCount          int64      `gorm:"column:rejected_count"`
	FailedCount            int64      `gorm:"column:failed_count"`
	NotFoundCount          int64      `gorm:"column:not_found_count"`
	BatchCount             int64      `gorm:"column:batch_count"`
	CommitCount            int64      `gorm:"column:commit_count"`
	RollbackCount          int64      `gorm:"column:rollback_count"`
	SavepointReleaseCount  int64      `gorm:"column:savepoint_release_count"`
	SavepointRollbackCount int64      `gorm:"column:savepoint_rollback_count"`
	ErrorMessage           *string    `gorm:"column:error_message"`
	StartTime              *time.Time `gorm:"column:start_time"`
	EndTime                *time.Time `gorm:"column:end_time"`
}

func (JobRunEntity) TableName() string {
	return "migrator_job_run"
}

// StatusStarted marks a run that has not finished yet, or whose process died.
const StatusStarted = "STARTED"

// Run identifies a job run when it starts.
type Run struct {
	ID              string
	JobName         string
	Kind            string
	TransactionMode string
	StartTime       time.Time
}

func newRunEntity(run Run) *JobRunEntity {
	start := run.StartTime
	return &JobRunEntity{
		ID:              run.ID,
		JobName:         run.JobName,
		Kind:            run.Kind,
		Status:          StatusStarted,
		TransactionMode: run.TransactionMode,
		StartTime:       &start,
	}
}

// summaryColumns maps a finished Summary onto the columns updated at the end of a run.
func summaryColumns(sum step.Summary) map[string]interface{} {
	cols := map[string]interface{}{
		"status":                   string(sum.Status),
		"processed_count":          sum.Processed,
		"succeeded_count":          sum.Succeeded,
		"skipped_count":            sum.Skipped,
		"rejected_count":           sum.Rejected,
		"failed_count":             sum.Failed,
		"not_found_count":          sum.NotFound,
		"batch_count":              sum.Batches,
		"commit_count":             sum.Tx.Commits,
		"rollback_count":           sum.Tx.Rollbacks,
		"savepoint_release_count":  sum.Tx.SavepointReleases,
		"savepoint_rollback_count": sum.Tx.SavepointRollbacks,
		"end_time":                 sum.EndTime,
	}
	if sum.Expectation.Present {
		cols["expected_count"] = sum.Expectation.Expected
	}
	if sum.Err != nil {
		cols["error_message"] = sum.Err.Error()
	}
	return cols
}
