// Package exception provides the error types shared by the migration and reconciliation engines.
// Every failure the engines report is a MigrationError carrying a Kind, so callers can decide
// whether it ends the process, the job, or only the current record.
package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind categorizes a MigrationError by the scope it affects.
type Kind int

const (
	// KindRecord is a generic per-record database or runtime failure. The loop continues.
	KindRecord Kind = iota
	// KindRecordValidation is raised by a hook to reject the current record. The loop continues.
	KindRecordValidation
	// KindConnectionLost means the connection underneath the job is gone. The loop stops.
	KindConnectionLost
	// KindQueryLoad means the query text could not be loaded. The job stops before the loop.
	KindQueryLoad
	// KindConnectionAcquisition means a source or destination connection could not be opened.
	// The job stops before the loop.
	KindConnectionAcquisition
	// KindConfiguration means a required setting is missing or invalid. The process exits.
	KindConfiguration
)

// String returns the name of the kind as used in log output.
func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "RecordError"
	case KindRecordValidation:
		return "RecordValidationError"
	case KindConnectionLost:
		return "ConnectionLostError"
	case KindQueryLoad:
		return "QueryLoadError"
	case KindConnectionAcquisition:
		return "ConnectionAcquisitionError"
	case KindConfiguration:
		return "ConfigurationError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinel errors matching each Kind, usable with errors.Is.
var (
	ErrRecord                = errors.New(KindRecord.String())
	ErrRecordValidation      = errors.New(KindRecordValidation.String())
	ErrConnectionLost        = errors.New(KindConnectionLost.String())
	ErrQueryLoad             = errors.New(KindQueryLoad.String())
	ErrConnectionAcquisition = errors.New(KindConnectionAcquisition.String())
	ErrConfiguration         = errors.New(KindConfiguration.String())
)

var sentinels = map[Kind]error{
	KindRecord:                ErrRecord,
	KindRecordValidation:      ErrRecordValidation,
	KindConnectionLost:        ErrConnectionLost,
	KindQueryLoad:             ErrQueryLoad,
	KindConnectionAcquisition: ErrConnectionAcquisition,
	KindConfiguration:         ErrConfiguration,
}

// MigrationError is the error type produced by the engines and their collaborators.
// It holds the module where the error occurred, a message, the wrapped original error and its Kind.
type MigrationError struct {
	// Module indicates where the error occurred (e.g., "config", "reader", "writer", "reconcile").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// Kind is the scope of the failure.
	Kind Kind
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// New creates a new MigrationError.
//
// Parameters:
//
//	kind: The scope of the failure.
//	module: The module where the error occurred.
//	message: The error message.
//	originalErr: The original error to wrap. May be nil.
//
// Returns:
//
//	A new MigrationError instance.
func New(kind Kind, module, message string, originalErr error) *MigrationError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &MigrationError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        kind,
		StackTrace:  string(buf[:n]),
	}
}

// Newf creates a new MigrationError with a formatted message.
// If the last argument is an error it is wrapped instead of being passed to fmt.Sprintf.
//
// Example:
//
//	Newf(KindQueryLoad, "storage", "failed to read '%s'", path, err)
func Newf(kind Kind, module, format string, a ...interface{}) *MigrationError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return New(kind, module, fmt.Sprintf(format, args...), originalErr)
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *MigrationError) Unwrap() error {
	return e.OriginalErr
}

// Is reports whether target is the sentinel error for this error's Kind.
func (e *MigrationError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the Kind of the first MigrationError in err's chain.
// The second return value is false if the chain holds no MigrationError.
func KindOf(err error) (Kind, bool) {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return KindRecord, false
}

// IsJobFatal reports whether err ends the job (or the process) rather than a single record.
func IsJobFatal(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind >= KindConnectionLost
}

// ExtractErrorMessage returns the message of a MigrationError, or err.Error() for any other error.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Message
	}
	return err.Error()
}
