package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Migrator.System.Logging
}

// Module provides configuration-related components to Fx. The *Config itself is supplied by
// main after LoadConfig, so that configuration errors can end the process with ExitCodeConfig
// before any component starts.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
