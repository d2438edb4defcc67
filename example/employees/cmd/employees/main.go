package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/dbmigrator/example/employees/internal/employee"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/launcher"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// embeddedConfig declares the datasources and the employee jobs.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// main migrates the legacy EMP table and then reconciles the result.
// Query files are read from MIGRATOR_STORAGE_BASE_DIR (default: example/employees/cmd/employees/resources).
func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the jobs...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	cfg, err := config.LoadConfig(config.Source{
		EnvFilePath: envFilePath,
		Embedded:    config.EmbeddedConfig(embeddedConfig),
	})
	if err != nil {
		cancel()
		logger.Exitf(config.ExitCodeConfig, "Failed to load configuration: %v", err)
	}
	logger.Configure(os.Stderr, cfg.Migrator.System.Logging.Format)
	logger.SetLogLevel(cfg.Migrator.System.Logging.Level)

	registry := launcher.NewRegistry()
	registry.RegisterMigration(employee.MigrationKey, employee.NewDefinition())
	registry.RegisterCheck(employee.CheckKey, employee.NewCheck())

	jobs := launcher.ParseJobNames(os.Getenv(launcher.JobsEnv))
	if len(jobs) == 0 {
		// The check only makes sense once the migration has finished.
		jobs = []string{"employee-migration"}
		if code := launcher.RunApplication(ctx, cfg, registry, jobs); code != config.ExitCodeOK {
			cancel()
			os.Exit(code)
		}
		jobs = []string{"employee-check"}
	}
	code := launcher.RunApplication(ctx, cfg, registry, jobs)
	cancel()
	os.Exit(code)
}
