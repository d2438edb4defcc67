package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/tigerroll/dbmigrator/pkg/migrator/core/tx"
)

// Job kinds.
const (
	KindMigration      = "migration"
	KindReconciliation = "reconciliation"
)

// Validate checks every required setting and every job declaration, reporting all problems at once.
func Validate(cfg *Config) error {
	var result *multierror.Error
	m := cfg.Migrator

	if strings.TrimSpace(m.File.Encoding) == "" {
		result = multierror.Append(result, fmt.Errorf("migrator.file.encoding is required"))
	} else if _, err := htmlindex.Get(m.File.Encoding); err != nil {
		result = multierror.Append(result, fmt.Errorf("migrator.file.encoding '%s' is not a known encoding", m.File.Encoding))
	}
	result = requirePositive(result, "migrator.file.buffer", m.File.Buffer)
	result = requirePositive(result, "migrator.exec.select_chunk_size", m.Exec.SelectChunkSize)
	result = requirePositive(result, "migrator.exec.batch_chunk_size", m.Exec.BatchChunkSize)
	result = requirePositive(result, "migrator.check.select_source_chunk_size", m.Check.SelectSourceChunkSize)
	result = requirePositive(result, "migrator.check.select_destination_chunk_size", m.Check.SelectDestinationChunkSize)

	if m.Exec.Parallelism < 0 {
		result = multierror.Append(result, fmt.Errorf("migrator.exec.parallelism must not be negative"))
	}
	if _, err := tx.ParseMode(m.Exec.TransactionMode); err != nil {
		result = multierror.Append(result, fmt.Errorf("migrator.exec.transaction_mode: %w", err))
	}
	if m.History.Enabled {
		if _, ok := m.Datasources[m.History.DatasourceRef]; !ok {
			result = multierror.Append(result, fmt.Errorf("migrator.history.datasource_ref '%s' is not a configured datasource", m.History.DatasourceRef))
		}
	}
	switch strings.ToLower(m.Telemetry.Exporter) {
	case "", "none", "otlp-grpc", "otlp-http":
	default:
		result = multierror.Append(result, fmt.Errorf("migrator.telemetry.exporter '%s' is not supported", m.Telemetry.Exporter))
	}

	seen := map[string]bool{}
	for i, job := range m.Jobs {
		result = validateJob(result, m, i, job, seen)
	}
	return result.ErrorOrNil()
}

func validateJob(result *multierror.Error, m MigratorConfig, i int, job JobDefinition, seen map[string]bool) *multierror.Error {
	where := fmt.Sprintf("migrator.jobs[%d]", i)
	if job.Name == "" {
		result = multierror.Append(result, fmt.Errorf("%s.name is required", where))
	} else {
		if seen[job.Name] {
			result = multierror.Append(result, fmt.Errorf("%s.name '%s' is declared twice", where, job.Name))
		}
		seen[job.Name] = true
		where = fmt.Sprintf("job '%s'", job.Name)
	}
	if job.Definition == "" {
		result = multierror.Append(result, fmt.Errorf("%s: definition is required", where))
	}
	for _, ref := range []struct{ key, name string }{{"source", job.Source}, {"destination", job.Destination}} {
		if ref.name == "" {
			result = multierror.Append(result, fmt.Errorf("%s: %s is required", where, ref.key))
		} else if _, ok := m.Datasources[ref.name]; !ok {
			result = multierror.Append(result, fmt.Errorf("%s: %s '%s' is not a configured datasource", where, ref.key, ref.name))
		}
	}
	if job.Queries.Select == "" {
		result = multierror.Append(result, fmt.Errorf("%s: queries.select is required", where))
	}
	switch job.Kind {
	case KindMigration:
		if job.Queries.Write == "" {
			result = multierror.Append(result, fmt.Errorf("%s: queries.write is required for a migration", where))
		}
	case KindReconciliation:
		if job.Queries.Lookup == "" {
			result = multierror.Append(result, fmt.Errorf("%s: queries.lookup is required for a reconciliation", where))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("%s: kind '%s' must be '%s' or '%s'", where, job.Kind, KindMigration, KindReconciliation))
	}
	if _, err := tx.ParseMode(job.TransactionMode); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", where, err))
	}
	if job.BatchChunkSize < 0 || job.SelectChunkSize < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: chunk size overrides must not be negative", where))
	}
	return result
}

func requirePositive(result *multierror.Error, key string, v int) *multierror.Error {
	if v <= 0 {
		return multierror.Append(result, fmt.Errorf("%s is required and must be positive", key))
	}
	return result
}
