package metrics

import "context"

// Tracer starts spans around jobs and annotates them.
type Tracer interface {
	// StartJobSpan starts a span for one job run. The returned function ends it.
	StartJobSpan(ctx context.Context, job, kind string) (context.Context, func())
	// RecordError records err on the current span.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
