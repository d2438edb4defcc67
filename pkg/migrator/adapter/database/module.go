package database

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// Module provides the datasource Provider and closes its pools when the application stops.
var Module = fx.Options(
	fx.Provide(NewProvider),
	fx.Invoke(func(lc fx.Lifecycle, p *Provider) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				logger.Debugf("Closing datasources.")
				return p.CloseAll()
			},
		})
	}),
)
