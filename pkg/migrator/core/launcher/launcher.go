// Package launcher builds the configured jobs from their definitions and runs them side by side.
// Every job owns its connections, cursor and batch; the log sink is the only thing they share.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/dbmigrator/pkg/migrator/adapter/database"
	"github.com/tigerroll/dbmigrator/pkg/migrator/adapter/storage"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/config"
	"github.com/tigerroll/dbmigrator/pkg/migrator/core/metrics"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/classify"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/migration"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/reconcile"
	"github.com/tigerroll/dbmigrator/pkg/migrator/infrastructure/repository"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/exception"
	"github.com/tigerroll/dbmigrator/pkg/migrator/support/util/logger"
)

const moduleName = "launcher"

// JobsEnv selects a subset of the configured jobs by name, comma separated.
const JobsEnv = "MIGRATOR_JOBS"

// Runner is one ready-to-run job. *migration.Job and *reconcile.Job implement it.
type Runner interface {
	Run(ctx context.Context) (step.Summary, error)
}

// Result is the outcome of one job run.
type Result struct {
	RunID   string
	Summary step.Summary
}

// Params holds the dependencies of a Launcher.
type Params struct {
	fx.In
	Config   *config.Config
	Registry *Registry
	Provider *database.Provider
	Loader   storage.QueryLoader
	History  repository.History
	Metrics  metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// Launcher runs the jobs declared under migrator.jobs.
type Launcher struct {
	cfg        *config.Config
	registry   *Registry
	provider   *database.Provider
	loader     storage.QueryLoader
	history    repository.History
	observers  step.Observers
	classifier *classify.Classifier
	newID      func() string
}

// NewLauncher creates a Launcher.
func NewLauncher(p Params) *Launcher {
	history := p.History
	if history == nil {
		history = repository.NoOpHistory{}
	}
	return &Launcher{
		cfg:        p.Config,
		registry:   p.Registry,
		provider:   p.Provider,
		loader:     p.Loader,
		history:    history,
		observers:  step.Observers{Metrics: p.Metrics, Tracer: p.Tracer}.OrNoOp(),
		classifier: classify.New(p.Config.Migrator.Classify.FatalStates...),
		newID:      uuid.NewString,
	}
}

// ParseJobNames splits a MIGRATOR_JOBS value into job names.
func ParseJobNames(v string) []string {
	var names []string
	for _, n := range strings.Split(v, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Select returns the job definitions named in names, in configuration order. No names selects
// every job.
func (l *Launcher) Select(names []string) ([]config.JobDefinition, error) {
	jobs := l.cfg.Migrator.Jobs
	if len(names) == 0 {
		return jobs, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := l.cfg.Job(n); !ok {
			return nil, exception.Newf(exception.KindConfiguration, moduleName, "job '%s' is not configured", n)
		}
		wanted[n] = true
	}
	var out []config.JobDefinition
	for _, j := range jobs {
		if wanted[j.Name] {
			out = append(out, j)
		}
	}
	return out, nil
}

// Build turns a job definition into a Runner. Errors are ConfigurationErrors: an unknown
// definition key, an invalid override or a datasource that cannot serve the job.
func (l *Launcher) Build(def config.JobDefinition) (Runner, error) {
	jc, err := l.cfg.JobConfig(def)
	if err != nil {
		return nil, exception.New(exception.KindConfiguration, moduleName, err.Error(), err)
	}
	opener, err := l.provider.Opener(def.Source)
	if err != nil {
		return nil, exception.Newf(exception.KindConfiguration, moduleName, "job '%s': source '%s' is unusable", def.Name, def.Source, err)
	}
	_, dst, err := l.provider.DB(def.Destination)
	if err != nil {
		return nil, exception.Newf(exception.KindConfiguration, moduleName, "job '%s': destination '%s' is unusable", def.Name, def.Destination, err)
	}
	log := logger.For(def.Name)

	switch def.Kind {
	case config.KindMigration:
		d, err := l.registry.Migration(def.Definition)
		if err != nil {
			return nil, exception.New(exception.KindConfiguration, moduleName, fmt.Sprintf("job '%s': %v", def.Name, err), err)
		}
		return &migration.Job{
			Config:             jc,
			Definition:         d,
			Queries:            migration.Queries{Count: def.Queries.Count, Select: def.Queries.Select, Write: def.Queries.Write},
			Source:             l.provider.Acquirer(def.Source, jc.SourceFetchSize),
			Destination:        l.provider.Acquirer(def.Destination, 0),
			NoSavepointRelease: dst.Type == database.TypeOracle,
			Opener:             opener,
			Loader:             l.loader,
			Classifier:         l.classifier,
			Log:                log,
			Observers:          l.observers,
		}, nil
	case config.KindReconciliation:
		c, err := l.registry.Check(def.Definition)
		if err != nil {
			return nil, exception.New(exception.KindConfiguration, moduleName, fmt.Sprintf("job '%s': %v", def.Name, err), err)
		}
		return &reconcile.Job{
			Config:      jc,
			Check:       c,
			Queries:     reconcile.Queries{Count: def.Queries.Count, Select: def.Queries.Select, Lookup: def.Queries.Lookup},
			Source:      l.provider.Acquirer(def.Source, jc.SourceFetchSize),
			Destination: l.provider.Acquirer(def.Destination, jc.DestinationFetchSize),
			Opener:      opener,
			Loader:      l.loader,
			Classifier:  l.classifier,
			Log:         log,
			Observers:   l.observers,
		}, nil
	default:
		return nil, exception.Newf(exception.KindConfiguration, moduleName, "job '%s' has unknown kind '%s'", def.Name, def.Kind)
	}
}

// Run builds every selected job, then runs them concurrently, at most migrator.exec.parallelism at
// a time. A job's own failure is reported in its Result and never stops the others.
//
// Parameters:
//
//	ctx: Cancelling it makes every running job abort at its next database call.
//	names: The jobs to run. Empty runs every configured job.
//
// Returns:
//
//	One Result per job in configuration order, or a ConfigurationError if any selected job cannot
//	be built. In that case no job runs.
func (l *Launcher) Run(ctx context.Context, names []string) ([]Result, error) {
	defs, err := l.Select(names)
	if err != nil {
		return nil, err
	}
	runners := make([]Runner, len(defs))
	var buildErr *multierror.Error
	for i, def := range defs {
		r, err := l.Build(def)
		if err != nil {
			buildErr = multierror.Append(buildErr, err)
			continue
		}
		runners[i] = r
	}
	if err := buildErr.ErrorOrNil(); err != nil {
		return nil, exception.New(exception.KindConfiguration, moduleName, "jobs cannot be built", err)
	}
	if len(defs) == 0 {
		logger.Warnf("No jobs configured; nothing to run.")
		return nil, nil
	}

	results := make([]Result, len(defs))
	var g errgroup.Group
	if p := l.cfg.Migrator.Exec.Parallelism; p > 0 {
		g.SetLimit(p)
	}
	logger.Infof("Launching %d job(s).", len(defs))
	for i := range defs {
		i := i
		g.Go(func() error {
			results[i] = l.runOne(ctx, defs[i], runners[i])
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// runOne runs a single job and records it in the history. History failures are logged only.
func (l *Launcher) runOne(ctx context.Context, def config.JobDefinition, r Runner) Result {
	id := l.newID()
	mode := l.cfg.Migrator.Exec.TransactionMode
	if def.TransactionMode != "" {
		mode = def.TransactionMode
	}
	if mode == "" {
		mode = "None"
	}
	l.reportPreviousRun(ctx, def.Name)
	if err := l.history.RecordStart(ctx, repository.Run{
		ID: id, JobName: def.Name, Kind: def.Kind, TransactionMode: mode, StartTime: time.Now(),
	}); err != nil {
		logger.Warnf("Job '%s' (run %s): %v", def.Name, id, err)
	}

	logger.Infof("Job '%s' (%s) started. Run ID: %s", def.Name, def.Kind, id)
	sum, err := l.safeRun(ctx, def.Name, r)

	// The history outlives a cancelled run context.
	if herr := l.history.RecordEnd(context.WithoutCancel(ctx), id, sum); herr != nil {
		logger.Warnf("Job '%s' (run %s): %v", def.Name, id, herr)
	}
	if err != nil {
		logger.Errorf("Job '%s' (run %s) ended with status %s: %v", def.Name, id, sum.Status, err)
	} else {
		logger.Infof("Job '%s' (run %s) ended with status %s in %v.", def.Name, id, sum.Status, sum.Duration())
	}
	return Result{RunID: id, Summary: sum}
}

// reportPreviousRun logs how the last recorded run of job ended. A run still marked as started
// was interrupted, so its destination may hold a partial load.
func (l *Launcher) reportPreviousRun(ctx context.Context, job string) {
	runs, err := l.history.FindRuns(ctx, job, 1)
	if err != nil {
		logger.Warnf("Job '%s': previous runs unavailable: %v", job, err)
		return
	}
	if len(runs) == 0 {
		return
	}
	prev := runs[0]
	if prev.Status == repository.StatusStarted {
		logger.Warnf("Job '%s': previous run %s did not finish.", job, prev.ID)
		return
	}
	if prev.EndTime != nil {
		logger.Infof("Job '%s': previous run %s ended with status %s at %s.", job, prev.ID, prev.Status, prev.EndTime.Format(time.RFC3339))
	}
}

// safeRun contains a panic raised by a hook to the job that raised it.
func (l *Launcher) safeRun(ctx context.Context, job string, r Runner) (sum step.Summary, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
			if sum.Job == "" {
				sum = step.Summary{Job: job, StartTime: time.Now()}
			}
			sum.Finish(step.StatusFailed, err)
		}
	}()
	return r.Run(ctx)
}

// Failed reports whether any result ended with a job-level error.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Summary.Err != nil || r.Summary.Status == step.StatusFailed {
			return true
		}
	}
	return false
}

// IsConfigurationError reports whether err must end the process with config.ExitCodeConfig.
func IsConfigurationError(err error) bool {
	return errors.Is(err, exception.ErrConfiguration)
}
