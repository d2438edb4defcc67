package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
	"github.com/tigerroll/dbmigrator/pkg/migrator/component/writer"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/hook"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/metrics"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/classify"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/diag"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

const moduleName = "migration"

// Kind is the job kind handled by this package.
const Kind = config.KindMigration

// Queries locates the query texts of a migration.
type Queries struct {
	// Count is optional. Without it the processed count is not validated.
	Count  string
	Select string
	Write  string
}

// Job is everything one migration run needs. A Job is not reused across runs.
type Job struct {
	Config      config.JobConfig
	Definition  Definition
	Queries     Queries
	Source      tx.Acquirer
	Destination tx.Acquirer
	// NoSavepointRelease is set for destinations without RELEASE SAVEPOINT (Oracle).
	NoSavepointRelease bool
	// Opener opens the source cursor. Nil means reader.StreamingOpener.
	Opener reader.Opener
	Loader step.QueryLoader
	// Classifier defaults to classify.New().
	Classifier *classify.Classifier
	Log        logger.Logger
	Observers  step.Observers
}

// run is the state of one execution of a Job.
type run struct {
	job     *Job
	rep     *diag.Reporter
	session *step.Session
	scope   *tx.Scope
	batch   *writer.Batch
	obs     step.Observers
	sum     step.Summary
}

// Run executes the migration until the cursor is exhausted or a Fatal-Abort stops it.
// Record-level failures are logged and never returned.
//
// Returns:
//
//	The Summary of the run, and the job-level error that ended it, if any.
func (j *Job) Run(ctx context.Context) (step.Summary, error) {
	r := &run{
		job: j,
		rep: diag.NewReporter(j.logger()),
		obs: j.Observers.OrNoOp(),
		sum: step.Summary{Job: j.Config.Name, Kind: Kind, StartTime: time.Now()},
	}
	ctx, end := r.obs.Tracer.StartJobSpan(ctx, j.Config.Name, Kind)
	defer end()
	r.obs.Metrics.RecordJobStart(ctx, j.Config.Name, Kind)

	status, err := r.execute(ctx)
	r.sum.Finish(status, err)
	if err != nil {
		r.obs.Tracer.RecordError(ctx, moduleName, err)
		r.rep.Logger().Errorf("migration ended: %v", err)
	}
	r.obs.Metrics.RecordTransactions(ctx, j.Config.Name, r.sum.Tx.Commits, r.sum.Tx.Rollbacks, r.sum.Tx.SavepointReleases, r.sum.Tx.SavepointRollbacks)
	r.obs.Metrics.RecordJobEnd(ctx, j.Config.Name, Kind, string(status), r.sum.Duration())
	r.rep.Logger().Infof("migration finished: status=%s processed=%d written=%d skipped=%d rejected=%d failed=%d",
		status, r.sum.Processed, r.sum.Succeeded, r.sum.Skipped, r.sum.Rejected, r.sum.Failed)
	return r.sum, err
}

func (j *Job) logger() logger.Logger {
	if j.Log != nil {
		return j.Log
	}
	return logger.For(j.Config.Name)
}

func (r *run) execute(ctx context.Context) (step.Status, error) {
	j := r.job
	r.rep.Logger().Infof("migration started: mode=%s batch=%d fetch=%d", j.Config.Mode, j.Config.BatchSize(), j.Config.SourceFetchSize)

	session, err := step.Open(ctx, r.rep, j.Source, j.Destination)
	if err != nil {
		return step.StatusFailed, err
	}
	r.session = session
	defer r.cleanup(ctx)

	exp, status, err := session.Preflight(ctx, j.Loader, j.Queries.Count)
	r.sum.Expectation = exp
	if status != step.StatusCompleted {
		return status, err
	}

	selectQuery, err := step.LoadQuery(ctx, j.Loader, j.Queries.Select)
	if err != nil {
		return step.StatusFailed, err
	}
	r.rep.Logger().Debugf("select query: %s", selectQuery)
	writeQuery, err := step.LoadQuery(ctx, j.Loader, j.Queries.Write)
	if err != nil {
		return step.StatusFailed, err
	}
	r.rep.Logger().Debugf("write statement: %s", writeQuery)

	opener := j.Opener
	if opener == nil {
		opener = reader.StreamingOpener{}
	}
	if err := session.OpenCursor(ctx, opener, selectQuery, j.Config.SourceFetchSize); err != nil {
		return step.StatusFailed, fmt.Errorf("failed to open source query: %w", err)
	}

	r.batch = writer.NewBatch(writeQuery, j.Config.BatchSize())
	var opts []tx.ScopeOption
	if j.NoSavepointRelease {
		opts = append(opts, tx.WithoutRelease())
	}
	r.scope = tx.NewScope(j.Config.Mode, session.Destination, opts...)
	if err := r.scope.Begin(ctx); err != nil {
		return step.StatusFailed, err
	}

	if aborted := r.loop(ctx); aborted {
		return step.StatusAborted, nil
	}
	if err := session.Cursor.Err(); err != nil {
		return r.sourceFailed(ctx, err)
	}
	if aborted := r.flush(ctx); aborted {
		return step.StatusAborted, nil
	}
	if err := r.scope.Finish(ctx); err != nil {
		return step.StatusFailed, err
	}
	r.rep.Verdict(r.sum.Processed)
	return step.StatusCompleted, nil
}

// loop processes every record. It reports whether a Fatal-Abort stopped it.
func (r *run) loop(ctx context.Context) bool {
	cur := r.session.Cursor
	for cur.Next() {
		ordinal := cur.Count()
		r.sum.Processed = ordinal
		rec := cur.Record()

		if err := r.scope.BeginRecord(ctx, ordinal); err != nil {
			if r.fail(ctx, ordinal, "", err) {
				return true
			}
			continue
		}
		// With a count, the record at the expected total closes its batch. Anything staged after
		// that, or without a count, is drained by flush.
		last := r.sum.Expectation.Present && ordinal >= r.sum.Expectation.Expected
		id, res, err := r.process(ctx, ordinal, rec, last)
		switch {
		case err != nil:
			if r.fail(ctx, ordinal, id, err) {
				return true
			}
		case res.Rejected():
			r.sum.Rejected++
			r.rep.Rejected(ordinal, id, res.Reason)
			r.obs.Metrics.RecordRecord(ctx, r.job.Config.Name, metrics.OutcomeRejected)
			if r.endRecord(ctx, ordinal, id, false) {
				return true
			}
		default:
			if res.Action == hook.ActionSkipWrite {
				r.sum.Skipped++
				r.obs.Metrics.RecordRecord(ctx, r.job.Config.Name, metrics.OutcomeSkipped)
			} else {
				r.sum.Succeeded++
				r.obs.Metrics.RecordRecord(ctx, r.job.Config.Name, metrics.OutcomeWritten)
			}
			if r.endRecord(ctx, ordinal, id, true) {
				return true
			}
		}
	}
	return false
}

// process runs the hooks of one record and stages or executes its write.
func (r *run) process(ctx context.Context, ordinal int, rec reader.Record, last bool) (string, hook.Result, error) {
	def := r.job.Definition
	other, err := def.OtherWork(ctx, rec, r.scope.Executor())
	if err != nil {
		return "", other, err
	}
	if other.Rejected() {
		return "", other, nil
	}
	bound, args, err := def.Bind(ctx, rec)
	id := def.Identifier(rec)
	if err != nil {
		return id, bound, err
	}
	res := hook.Merge(other, bound)
	if res.Rejected() {
		return id, res, nil
	}

	if r.batch.Size() > 1 {
		if res.Action != hook.ActionSkipWrite {
			r.batch.Add(args...)
		}
		r.rep.Staged(ordinal, res.Note, id)
		if r.batch.Due(ordinal, last) {
			if err := r.executeBatch(ctx, ordinal); err != nil {
				return id, res, err
			}
		}
		return id, res, nil
	}

	if res.Action != hook.ActionSkipWrite {
		if _, err := r.batch.ExecuteOne(ctx, r.scope.Executor(), args...); err != nil {
			return id, res, err
		}
	}
	r.rep.Inserted(ordinal, res.Note, id)
	return id, res, nil
}

// executeBatch runs the pending batch, if it holds anything.
func (r *run) executeBatch(ctx context.Context, ordinal int) error {
	pending := r.batch.Pending()
	if pending == 0 {
		return nil
	}
	if _, err := r.batch.Execute(ctx, r.scope.Executor()); err != nil {
		return err
	}
	r.sum.Batches = r.batch.Executions()
	r.obs.Metrics.RecordBatch(ctx, r.job.Config.Name, pending)
	r.rep.BatchExecuted(ordinal)
	return nil
}

// endRecord commits, releases or rolls back the record's transaction state. A failure there is
// classified like any other record failure. It reports whether the loop must stop.
func (r *run) endRecord(ctx context.Context, ordinal int, id string, ok bool) bool {
	if err := r.scope.EndRecord(ctx, ok); err != nil {
		c := r.classify(ctx, err)
		if c.Category == classify.FatalAbort {
			r.abort(ctx, ordinal, id, err)
			return true
		}
		r.rep.Failed(ordinal, id, c, err)
	}
	return false
}

// fail handles an error raised while processing a record. It reports whether the loop must stop.
func (r *run) fail(ctx context.Context, ordinal int, id string, err error) bool {
	c := r.classify(ctx, err)
	switch c.Category {
	case classify.FatalAbort:
		r.sum.Failed++
		r.obs.Metrics.RecordRecord(ctx, r.job.Config.Name, metrics.OutcomeFailed)
		r.abort(ctx, ordinal, id, err)
		return true
	case classify.RecoverableSkip:
		r.sum.Rejected++
		r.obs.Metrics.RecordRecord(ctx, r.job.Config.Name, metrics.OutcomeRejected)
		r.rep.Rejected(ordinal, id, exception.ExtractErrorMessage(err))
	default:
		r.sum.Failed++
		r.obs.Metrics.RecordRecord(ctx, r.job.Config.Name, metrics.OutcomeFailed)
		r.rep.Failed(ordinal, id, c, err)
	}
	return r.endRecord(ctx, ordinal, id, false)
}

func (r *run) classify(ctx context.Context, err error) classify.Classification {
	cl := r.job.Classifier
	if cl == nil {
		cl = classify.New()
	}
	c := cl.Classify(err)
	r.obs.Metrics.RecordError(ctx, r.job.Config.Name, c.Category.String())
	r.obs.Tracer.RecordEvent(ctx, "record.failed", map[string]interface{}{
		"category": c.Category.String(),
		"state":    c.Status.State,
	})
	if c.Deadlock() {
		r.rep.Logger().Debugf("deadlock reported by destination: %v", err)
	}
	return c
}

// abort logs the Fatal-Abort and rolls back whatever transaction is still open.
func (r *run) abort(ctx context.Context, ordinal int, id string, err error) {
	r.rep.ConnectionBroken(ordinal, id, err)
	r.obs.Tracer.RecordError(ctx, moduleName, err)
	if rbErr := r.scope.Abort(ctx); rbErr != nil {
		r.rep.Logger().Debugf("rollback after abort: %v", rbErr)
	}
}

// flush executes writes still pending after the last record, which happens when the last
// record was rejected or failed before its batch was due. It reports whether a Fatal-Abort
// occurred.
func (r *run) flush(ctx context.Context) bool {
	if r.batch.Pending() == 0 {
		return false
	}
	ordinal := r.sum.Processed
	err := r.scope.BeginFlush(ctx)
	if err == nil {
		err = r.executeBatch(ctx, ordinal)
		if endErr := r.scope.EndFlush(ctx, err == nil); err == nil {
			err = endErr
		}
	}
	if err == nil {
		return false
	}
	c := r.classify(ctx, err)
	if c.Category == classify.FatalAbort {
		r.abort(ctx, ordinal, "pending batch", err)
		return true
	}
	r.rep.Failed(ordinal, "pending batch", c, err)
	return false
}

// sourceFailed handles an error raised by the source cursor while advancing.
func (r *run) sourceFailed(ctx context.Context, err error) (step.Status, error) {
	c := r.classify(ctx, err)
	if c.Category == classify.FatalAbort {
		r.abort(ctx, r.sum.Processed+1, "", err)
		return step.StatusAborted, nil
	}
	if rbErr := r.scope.Abort(ctx); rbErr != nil {
		r.rep.Logger().Debugf("rollback after source failure: %v", rbErr)
	}
	return step.StatusFailed, fmt.Errorf("source query failed after record %d: %w", r.sum.Processed, err)
}

// cleanup rolls back a transaction left open and releases the session.
func (r *run) cleanup(ctx context.Context) {
	if r.scope != nil {
		if err := r.scope.Abort(ctx); err != nil {
			r.rep.CloseFailed("destination transaction", err)
		}
		r.sum.Tx = r.scope.Stats()
	}
	r.session.Release()
}
