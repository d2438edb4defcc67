// Package diag formats the per-record progress and failure diagnostics of a job.
// Every line carries the record's ordinal and the expected count ("-" when no count query ran).
package diag

import (
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/classify"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/count"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// Reporter writes a job's diagnostics to an injected logger.
type Reporter struct {
	log      logger.Logger
	expected count.Expectation
}

// NewReporter creates a Reporter writing to log.
func NewReporter(log logger.Logger) *Reporter {
	return &Reporter{log: log}
}

// SetExpectation records the expected count printed on every following line.
func (r *Reporter) SetExpectation(e count.Expectation) {
	r.expected = e
}

// Logger returns the underlying logger.
func (r *Reporter) Logger() logger.Logger {
	return r.log
}

// Columns logs the source column names at DEBUG.
func (r *Reporter) Columns(describe string) {
	r.log.Debugf("source columns: %s", describe)
}

// CountSkipped logs that no count query is configured.
func (r *Reporter) CountSkipped() {
	r.log.Debugf("no count query configured; processed count will not be validated")
}

// CountEmpty logs that the count query returned zero and the job ends without reading.
func (r *Reporter) CountEmpty() {
	r.log.Infof("count is 0; nothing to process")
}

// CountFailed logs an unusable count result. The job ends without reading.
func (r *Reporter) CountFailed(err error) {
	r.log.Errorf("count query failed: %v", err)
}

// Staged logs a record added to a pending batch.
func (r *Reporter) Staged(ordinal int, note, id string) {
	r.log.Infof("process:%d / %s%s inserting reserved %s", ordinal, r.expected, note, id)
}

// BatchExecuted logs a successful batch execution.
func (r *Reporter) BatchExecuted(ordinal int) {
	r.log.Infof("batch executed process:%d / %s", ordinal, r.expected)
}

// Inserted logs a record written immediately (batch size 1).
func (r *Reporter) Inserted(ordinal int, note, id string) {
	r.log.Infof("process:%d%s / %s inserted %s", ordinal, note, r.expected, id)
}

// Checked logs a successful comparison.
func (r *Reporter) Checked(ordinal int, note, sourceID, destinationID string) {
	r.log.Infof("check OK %d / %s%s %s %s", ordinal, r.expected, note, sourceID, destinationID)
}

// TargetNotFound logs a source record whose destination lookup returned no rows.
func (r *Reporter) TargetNotFound(ordinal int, sourceID string) {
	r.log.Errorf("comparison target not found process:%d / %s %s", ordinal, r.expected, sourceID)
}

// LookupSkipped logs a source record whose lookup a hook suppressed.
func (r *Reporter) LookupSkipped(ordinal int, note, sourceID string) {
	r.log.Infof("check skipped %d / %s%s %s", ordinal, r.expected, note, sourceID)
}

// Rejected logs a record a migration hook refused.
func (r *Reporter) Rejected(ordinal int, id, reason string) {
	r.log.Warnf("process:%d / %s skipped %s: %s", ordinal, r.expected, id, reason)
}

// Mismatch logs a comparison hook's rejection.
func (r *Reporter) Mismatch(ordinal int, sourceID, reason string) {
	r.log.Errorf("check NG %d / %s %s: %s", ordinal, r.expected, sourceID, reason)
}

// Failed logs a recoverable per-record failure with its status code, if any.
func (r *Reporter) Failed(ordinal int, id string, c classify.Classification, err error) {
	if c.HasStatus {
		r.log.Errorf("process:%d / %s failed [%s] state=%s code=%s id=%s: %s",
			ordinal, r.expected, c.Category, c.Status.State, c.Status.Code, id, exception.ExtractErrorMessage(err))
		return
	}
	r.log.Errorf("process:%d / %s failed [%s] id=%s: %s", ordinal, r.expected, c.Category, id, exception.ExtractErrorMessage(err))
}

// ConnectionBroken logs the Fatal-Abort that stops the loop.
func (r *Reporter) ConnectionBroken(ordinal int, id string, err error) {
	r.log.Fatalf("Exit because connection has broken. process:%d / %s id=%s: %v", ordinal, r.expected, id, err)
}

// Verdict logs the comparison of processed and expected counts. It logs nothing when no count
// query ran.
func (r *Reporter) Verdict(processed int) {
	v, ok := r.expected.Compare(processed)
	if !ok {
		return
	}
	if v == count.Match {
		r.log.Infof("%s: processed %d / count %d", v, processed, r.expected.Expected)
		return
	}
	r.log.Warnf("%s: processed %d / count %d", v, processed, r.expected.Expected)
}

// CloseFailed logs an error raised while releasing a resource.
func (r *Reporter) CloseFailed(what string, err error) {
	r.log.Warnf("failed to close %s: %v", what, err)
}
