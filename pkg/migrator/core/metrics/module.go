package metrics

import (
	"go.uber.org/fx"
)

// Module provides the no-op recorder and tracer. The infrastructure layer decorates them with real
// implementations when it is part of the application.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
