package repository

import (
	"go.uber.org/fx"

	"github.com/tigerroll/dbmigrator/pkg/migrator/adapter/database"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// NewHistory returns the run history configured by migrator.history. When it is enabled the
// schema is migrated before the store is handed out.
func NewHistory(cfg *config.Config, provider *database.Provider) (History, error) {
	hc := cfg.Migrator.History
	if !hc.Enabled {
		logger.Debugf("Run history is disabled.")
		return NoOpHistory{}, nil
	}
	_, dc, err := provider.DB(hc.DatasourceRef)
	if err != nil {
		return nil, err
	}
	m, err := NewSchemaMigrator(dc)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil {
		return nil, err
	}
	dialector, _, err := provider.Dialector(hc.DatasourceRef)
	if err != nil {
		return nil, err
	}
	logger.Infof("Run history stored in datasource '%s'.", hc.DatasourceRef)
	return NewGormHistory(dialector, cfg.Migrator.System.Logging.Level)
}

// Module provides the History.
var Module = fx.Options(
	fx.Provide(NewHistory),
)
