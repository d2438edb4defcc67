package step

import (
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/metrics"
)

// Observers receives the metrics and spans of a run. Nil members fall back to no-ops.
type Observers struct {
	Metrics metrics.MetricRecorder
	Tracer  metrics.Tracer
}

// OrNoOp returns o with every nil member replaced by a no-op.
func (o Observers) OrNoOp() Observers {
	if o.Metrics == nil {
		o.Metrics = metrics.NewNoOpMetricRecorder()
	}
	if o.Tracer == nil {
		o.Tracer = metrics.NewNoOpTracer()
	}
	return o
}
