// Package repository persists one history row per job run.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
)

const moduleName = "repository"

// History records when job runs start and how they end.
type History interface {
	RecordStart(ctx context.Context, run Run) error
	RecordEnd(ctx context.Context, id string, sum step.Summary) error
	// FindRuns returns the latest runs of job, newest first.
	FindRuns(ctx context.Context, job string, limit int) ([]JobRunEntity, error)
}

// GormHistory stores the history with GORM.
type GormHistory struct {
	db *gorm.DB
}

var _ History = (*GormHistory)(nil)

// NewGormHistory opens a GORM session on dialector.
//
// Parameters:
//
//	dialector: The dialector of the history datasource.
//	logLevel: The system log level, used to configure GORM's own logging.
//
// Returns:
//
//	A new GormHistory, or an error if GORM cannot initialize the dialector.
func NewGormHistory(dialector gorm.Dialector, logLevel string) (*GormHistory, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(logLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, exception.New(exception.KindConnectionAcquisition, moduleName, "failed to open the run history", err)
	}
	return &GormHistory{db: db}, nil
}

// RecordStart inserts the run with status STARTED.
func (h *GormHistory) RecordStart(ctx context.Context, run Run) error {
	if err := h.db.WithContext(ctx).Create(newRunEntity(run)).Error; err != nil {
		return fmt.Errorf("failed to record start of run %s (job %s): %w", run.ID, run.JobName, err)
	}
	return nil
}

// RecordEnd stores the final counters and status of the run.
func (h *GormHistory) RecordEnd(ctx context.Context, id string, sum step.Summary) error {
	res := h.db.WithContext(ctx).Model(&JobRunEntity{}).Where("id = ?", id).Updates(summaryColumns(sum))
	if res.Error != nil {
		return fmt.Errorf("failed to record end of run %s (job %s): %w", id, sum.Job, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s (job %s) is not in the history", id, sum.Job)
	}
	return nil
}

// FindRuns implements History.
func (h *GormHistory) FindRuns(ctx context.Context, job string, limit int) ([]JobRunEntity, error) {
	var runs []JobRunEntity
	q := h.db.WithContext(ctx).Where("job_name = ?", job).Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to read runs of job %s: %w", job, err)
	}
	return runs, nil
}

// NoOpHistory discards everything. It is used when the history is disabled.
type NoOpHistory struct{}

var _ History = NoOpHistory{}

func (NoOpHistory) RecordStart(ctx context.Context, run Run) error                   { return nil }
func (NoOpHistory) RecordEnd(ctx context.Context, id string, sum step.Summary) error { return nil }
func (NoOpHistory) FindRuns(ctx context.Context, job string, limit int) ([]JobRunEntity, error) {
	return nil, nil
}
