package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/dbmigrator/pkg/migrator/component/reader"
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

const moduleName = "reconcile"

// Kind is the job kind handled by this package.
const Kind = config.KindReconciliation

// Queries locates the query texts of a reconciliation.
type Queries struct {
	Count  string
	Select string
	// Lookup selects the destination row paired with a source record. Only its first row is used.
	Lookup string
}

// Job is everything one reconciliation run needs.
type Job struct {
	Config      config.JobConfig
	Check       Check
	Queries     Queries
	Source      tx.Acquirer
	Destination tx.Acquirer
	// Opener opens the source cursor. Nil means reader.StreamingOpener.
	Opener reader.Opener
	Loader step.QueryLoader
	// Classifier defaults to classify.New().
	Classifier *classify.Classifier
	Log        logger.Logger
	Observers  step.Observers
}

type run struct {
	job     *Job
	rep     *diag.Reporter
	session *step.Session
	lookup  string
	obs     step.Observers
	sum     step.Summary
}

// Run compares every source record with its destination row. It never writes.
// Mismatches and missing targets are logged and the loop continues; only a Fatal-Abort stops it.
func (j *Job) Run(ctx context.Context) (step.Summary, error) {
	log := j.Log
	if log == nil {
		log = logger.For(j.Config.Name)
	}
	r := &run{
		job: j,
		rep: diag.NewReporter(log),
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
		log.Errorf("reconciliation ended: %v", err)
	}
	r.obs.Metrics.RecordJobEnd(ctx, j.Config.Name, Kind, string(status), r.sum.Duration())
	log.Infof("reconciliation finished: status=%s processed=%d matched=%d mismatched=%d not_found=%d skipped=%d failed=%d",
		status, r.sum.Processed, r.sum.Succeeded, r.sum.Rejected, r.sum.NotFound, r.sum.Skipped, r.sum.Failed)
	return r.sum, err
}

func (r *run) execute(ctx context.Context) (step.Status, error) {
	j := r.job
	r.rep.Logger().Infof("reconciliation started: fetch=%d lookup fetch=%d", j.Config.SourceFetchSize, j.Config.DestinationFetchSize)

	session, err := step.Open(ctx, r.rep, j.Source, j.Destination)
	if err != nil {
		return step.StatusFailed, err
	}
	r.session = session
	defer session.Release()

	exp, status, err := session.Preflight(ctx, j.Loader, j.Queries.Count)
	r.sum.Expectation = exp
	if status != step.StatusCompleted {
		return status, err
	}

	selectQuery, err := step.LoadQuery(ctx, j.Loader, j.Queries.Select)
	if err != nil {
		return step.StatusFailed, err
	}
	r.lookup, err = step.LoadQuery(ctx, j.Loader, j.Queries.Lookup)
	if err != nil {
		return step.StatusFailed, err
	}
	r.rep.Logger().Debugf("select query: %s", selectQuery)
	r.rep.Logger().Debugf("lookup query: %s", r.lookup)

	opener := j.Opener
	if opener == nil {
		opener = reader.StreamingOpener{}
	}
	if err := session.OpenCursor(ctx, opener, selectQuery, j.Config.SourceFetchSize); err != nil {
		return step.StatusFailed, fmt.Errorf("failed to open source query: %w", err)
	}

	cur := session.Cursor
	for cur.Next() {
		ordinal := cur.Count()
		r.sum.Processed = ordinal
		src := cur.Record()
		if err := r.check(ctx, ordinal, src); err != nil {
			if r.fail(ctx, ordinal, j.Check.SourceIdentifier(src), err) {
				return step.StatusAborted, nil
			}
		}
	}
	if err := cur.Err(); err != nil {
		c := r.classify(ctx, err)
		if c.Category == classify.FatalAbort {
			r.rep.ConnectionBroken(r.sum.Processed+1, "", err)
			return step.StatusAborted, nil
		}
		return step.StatusFailed, fmt.Errorf("source query failed after record %d: %w", r.sum.Processed, err)
	}
	r.rep.Verdict(r.sum.Processed)
	return step.StatusCompleted, nil
}

// check looks up and compares one source record. Outcomes other than errors are logged here.
func (r *run) check(ctx context.Context, ordinal int, src reader.Record) error {
	c := r.job.Check
	name := r.job.Config.Name
	res, args, err := c.PrepareLookup(ctx, src)
	if err != nil {
		return err
	}
	srcID := c.SourceIdentifier(src)
	switch res.Action {
	case hook.ActionReject:
		r.sum.Rejected++
		r.rep.Rejected(ordinal, srcID, res.Reason)
		r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeRejected)
		return nil
	case hook.ActionSkipWrite:
		r.sum.Skipped++
		r.rep.LookupSkipped(ordinal, res.Note, srcID)
		r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeSkipped)
		return nil
	}

	dst, found, err := r.fetchTarget(ctx, args)
	if err != nil {
		return err
	}
	if !found {
		r.sum.NotFound++
		r.rep.TargetNotFound(ordinal, srcID)
		r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeNotFound)
		return nil
	}

	cmp, err := c.Compare(ctx, src, dst)
	if err != nil {
		return err
	}
	if cmp.Rejected() {
		r.sum.Rejected++
		r.rep.Mismatch(ordinal, srcID, cmp.Reason)
		r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeMismatch)
		return nil
	}
	r.sum.Succeeded++
	r.rep.Checked(ordinal, res.Note+cmp.Note, srcID, c.DestinationIdentifier(dst))
	r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeMatched)
	return nil
}

// fetchTarget runs the lookup on the destination and returns its first row.
func (r *run) fetchTarget(ctx context.Context, args []any) (reader.Record, bool, error) {
	cur, err := reader.StreamingOpener{}.Open(ctx, r.session.Destination, r.lookup, r.job.Config.DestinationFetchSize, args...)
	if err != nil {
		return reader.Record{}, false, err
	}
	defer func() {
		if err := cur.Close(); err != nil {
			r.rep.CloseFailed("lookup cursor", err)
		}
	}()
	if !cur.Next() {
		return reader.Record{}, false, cur.Err()
	}
	return cur.Record(), true, nil
}

// fail handles an error raised while checking a record. It reports whether the loop must stop.
func (r *run) fail(ctx context.Context, ordinal int, id string, err error) bool {
	name := r.job.Config.Name
	c := r.classify(ctx, err)
	switch c.Category {
	case classify.FatalAbort:
		r.sum.Failed++
		r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeFailed)
		r.rep.ConnectionBroken(ordinal, id, err)
		r.obs.Tracer.RecordError(ctx, moduleName, err)
		return true
	case classify.RecoverableSkip:
		r.sum.Rejected++
		r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeMismatch)
		r.rep.Mismatch(ordinal, id, exception.ExtractErrorMessage(err))
	default:
		r.sum.Failed++
		r.obs.Metrics.RecordRecord(ctx, name, metrics.OutcomeFailed)
		r.rep.Failed(ordinal, id, c, err)
	}
	return false
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
	return c
}
