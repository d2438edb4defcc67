// Command migrator runs the migration and reconciliation jobs declared in its configuration.
// Jobs reference the built-in "passthrough" definition and "columns" check; programs with
// table-specific hooks register them on their own launcher.Registry (see example/employees).
package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/launcher"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// embeddedConfig is used when MIGRATOR_CONFIG_PATH is not set.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Running jobs abort at their next database call.", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	cfg, err := config.LoadConfig(config.Source{
		EnvFilePath: envFilePath,
		Path:        os.Getenv("MIGRATOR_CONFIG_PATH"),
		Embedded:    config.EmbeddedConfig(embeddedConfig),
	})
	if err != nil {
		logger.Exitf(config.ExitCodeConfig, "Failed to load configuration: %v", err)
	}

	logger.Configure(os.Stderr, cfg.Migrator.System.Logging.Format)
	logger.SetLogLevel(cfg.Migrator.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Migrator.System.Logging.Level)

	return launcher.RunApplication(ctx, cfg, launcher.NewRegistry(), launcher.ParseJobNames(os.Getenv(launcher.JobsEnv)))
}
