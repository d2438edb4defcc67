package launcher

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/dbmigrator/pkg/migrator/adapter/database"
	"github.com/tigerroll/dbmigrator/pkg/migrator/adapter/storage"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	coremetrics "github.com/tigerroll/dbmigrator/pkg/migrator/core/metrics"
	inframetrics "github.com/tigerroll/dbmigrator/pkg/migrator/infrastructure/metrics"
	"github.com/tigerroll/dbmigrator/pkg/migrator/infrastructure/repository"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

// Module provides the Launcher.
var Module = fx.Options(
	fx.Provide(NewLauncher),
)

// Options wires the Launcher with every component it depends on. cfg must already be validated.
func Options(cfg *config.Config, registry *Registry) fx.Option {
	return fx.Options(
		fx.Supply(cfg, registry),
		logger.Module,
		config.Module,
		database.Module,
		storage.Module,
		coremetrics.Module,
		inframetrics.Module,
		repository.Module,
		Module,
	)
}

// RunApplication runs the jobs named in jobs (all when empty) inside an Fx application and
// returns the process exit code. Job failures are reported through the log only; the exit code
// reflects configuration and startup problems.
//
// Parameters:
//
//	appCtx: Cancelled on SIGINT/SIGTERM. Running jobs abort at their next database call.
//	cfg: The loaded and validated configuration.
//	registry: The hook definitions referenced by the configured jobs.
//	jobs: The job names selected with MIGRATOR_JOBS.
//
// Returns:
//
//	config.ExitCodeOK, config.ExitCodeConfig or config.ExitCodeSystem.
func RunApplication(appCtx context.Context, cfg *config.Config, registry *Registry, jobs []string) int {
	app := fx.New(
		Options(cfg, registry),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, l *Launcher) {
			lc.Append(fx.Hook{OnStart: func(context.Context) error {
				go runJobs(appCtx, shutdowner, l, jobs)
				return nil
			}})
		}),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application start failed: %v", err)
		if IsConfigurationError(err) {
			return config.ExitCodeConfig
		}
		return config.ExitCodeSystem
	}

	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application stop reported: %v", err)
	}
	return sig.ExitCode
}

// runJobs is the body of the application. It always requests shutdown when it returns.
func runJobs(ctx context.Context, shutdowner fx.Shutdowner, l *Launcher, jobs []string) {
	code := config.ExitCodeOK
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic recovered in job execution: %v", r)
			code = config.ExitCodeSystem
		}
		logger.Infof("Requesting application shutdown after job completion.")
		if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
			logger.Errorf("Failed to shutdown application: %v", err)
		}
	}()

	results, err := l.Run(ctx, jobs)
	if err != nil {
		logger.Errorf("Jobs could not be started: %v", err)
		code = config.ExitCodeSystem
		if IsConfigurationError(err) {
			code = config.ExitCodeConfig
		}
		return
	}
	for _, r := range results {
		s := r.Summary
		logger.Infof("[%s] %s %s: processed=%d succeeded=%d skipped=%d rejected=%d failed=%d not_found=%d (%v)",
			r.RunID, s.Job, s.Status, s.Processed, s.Succeeded, s.Skipped, s.Rejected, s.Failed, s.NotFound, s.Duration())
	}
	if Failed(results) {
		logger.Warnf("At least one job did not complete; see the log above.")
	}
}
