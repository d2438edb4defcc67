// Package classify decides what a failure raised while processing one record means for the job.
package classify

import (
	"context"
	"errors"

	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
)

// Category is the outcome of classifying a record-level failure.
type Category int

const (
	// RecoverableLog is any other failure. It is logged with the record's position and the loop continues.
	RecoverableLog Category = iota
	// RecoverableSkip is a hook's rejection of an invalid record. The loop continues.
	RecoverableSkip
	// FatalAbort means the connection itself failed. The loop stops immediately.
	FatalAbort
)

func (c Category) String() string {
	switch c {
	case RecoverableLog:
		return "Recoverable-Log"
	case RecoverableSkip:
		return "Recoverable-Skip"
	case FatalAbort:
		return "Fatal-Abort"
	default:
		return "Unknown"
	}
}

// Classification is the result of Classify.
type Classification struct {
	Category Category
	// Status is set when the failure came from the database layer.
	Status    exception.Status
	HasStatus bool
}

// Deadlock reports whether the failure carries the deadlock status code.
// Deadlocks are classified like any other recoverable database failure.
func (c Classification) Deadlock() bool {
	return c.HasStatus && c.Status.State == exception.SQLStateDeadlock
}

// Classifier maps record-level failures onto a Category.
type Classifier struct {
	fatalStates map[string]bool
}

// DefaultFatalStates lists the status codes treated as a lost connection when none are configured.
var DefaultFatalStates = []string{exception.SQLStateConnectionFailure}

// New creates a Classifier. States listed in fatalStates trigger FatalAbort; if none are given,
// DefaultFatalStates applies.
func New(fatalStates ...string) *Classifier {
	if len(fatalStates) == 0 {
		fatalStates = DefaultFatalStates
	}
	states := make(map[string]bool, len(fatalStates))
	for _, s := range fatalStates {
		states[s] = true
	}
	return &Classifier{fatalStates: states}
}

// Classify categorizes err, raised while processing a single record.
//
// Parameters:
//
//	err: The failure. Must not be nil.
//
// Returns:
//
//	The Classification. Record validation errors are RecoverableSkip. A lost connection, any
//	job-level MigrationError (query load, connection acquisition, configuration), a configured
//	fatal status code or a cancelled context is FatalAbort. Everything else is RecoverableLog.
func (c *Classifier) Classify(err error) Classification {
	status, hasStatus := exception.StatusOf(err)
	out := Classification{Category: RecoverableLog, Status: status, HasStatus: hasStatus}

	if kind, ok := exception.KindOf(err); ok && kind == exception.KindRecordValidation {
		out.Category = RecoverableSkip
		return out
	}
	if exception.IsJobFatal(err) {
		out.Category = FatalAbort
		return out
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		out.Category = FatalAbort
		return out
	}
	if hasStatus && c.fatalStates[status.State] {
		out.Category = FatalAbort
	}
	return out
}
