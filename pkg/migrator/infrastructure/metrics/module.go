package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	metrics "github.com/tigerroll/dbmigrator/pkg/migrator/core/metrics"
)

// Module replaces the no-op recorder and tracer of the core metrics module with Prometheus and
// OpenTelemetry, and runs the /metrics endpoint and trace export for the application's lifetime.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Decorate(func(_ metrics.MetricRecorder, r *PrometheusRecorder) metrics.MetricRecorder {
		return r
	}),
	fx.Decorate(func(_ metrics.Tracer) metrics.Tracer {
		return NewOpenTelemetryTracer()
	}),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, recorder *PrometheusRecorder) {
	m := cfg.Migrator
	var shutdown ShutdownFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = SetupTelemetry(ctx, m.Telemetry)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
	if m.Metrics.ListenAddress == "" {
		return
	}
	srv := NewServer(m.Metrics.ListenAddress, recorder)
	lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Stop})
}
