// Package hook defines the tagged result returned by the per-record hooks of a migration or
// reconciliation definition.
package hook

// Action tells the engine what to do with the current record after a hook returns.
type Action int

const (
	// ActionProceed continues normal processing.
	ActionProceed Action = iota
	// ActionSkipWrite keeps the record but suppresses its write. The record still counts as a success.
	ActionSkipWrite
	// ActionReject abandons the record with a reason. The loop continues with the next record.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionProceed:
		return "Proceed"
	case ActionSkipWrite:
		return "SkipWrite"
	case ActionReject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// Result is returned by every hook.
type Result struct {
	Action Action
	// Reason is the message logged for a rejected record.
	Reason string
	// Note is appended to the progress line of the current record. It never outlives the record.
	Note string
}

// Proceed returns a Result that lets processing continue.
func Proceed() Result {
	return Result{Action: ActionProceed}
}

// SkipWrite returns a Result that suppresses exactly one write.
func SkipWrite() Result {
	return Result{Action: ActionSkipWrite}
}

// Reject returns a Result that abandons the current record.
func Reject(reason string) Result {
	return Result{Action: ActionReject, Reason: reason}
}

// WithNote returns a copy of r carrying note.
func (r Result) WithNote(note string) Result {
	r.Note = note
	return r
}

// Rejected reports whether the record was abandoned.
func (r Result) Rejected() bool {
	return r.Action == ActionReject
}

// Merge combines the results of two hooks run on the same record. A rejection wins, then a
// suppressed write. Notes are concatenated.
func Merge(a, b Result) Result {
	out := a
	if b.Action > out.Action {
		out.Action = b.Action
		out.Reason = b.Reason
	}
	out.Note = a.Note + b.Note
	return out
}
